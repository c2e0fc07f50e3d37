package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-harvest/app/api"
	"github.com/lysyi3m/rss-harvest/app/cache"
	"github.com/lysyi3m/rss-harvest/app/cfg"
	"github.com/lysyi3m/rss-harvest/app/content"
	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/feed"
	"github.com/lysyi3m/rss-harvest/app/fetch"
	"github.com/lysyi3m/rss-harvest/app/images"
	"github.com/lysyi3m/rss-harvest/app/ingest"
	"github.com/lysyi3m/rss-harvest/app/metrics"
	"github.com/lysyi3m/rss-harvest/app/mirror"
	"github.com/lysyi3m/rss-harvest/app/subscriptions"
	"github.com/lysyi3m/rss-harvest/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting RSS Harvest server", "version", appCfg.Version, "transport", appCfg.Transport)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepository(db)
	articleRepo := database.NewArticleRepository(db)

	fetchOpts := fetch.Options{
		Timeout:    appCfg.FetchTimeout,
		Retries:    appCfg.FetchRetries,
		RetryDelay: appCfg.FetchRetryDelay,
	}
	client := fetch.NewClient(&http.Client{}, fetch.Config{
		UserAgent:    appCfg.UserAgent,
		RelayURL:     appCfg.RelayURL,
		RelayHosts:   appCfg.RelayHosts,
		HostInterval: appCfg.HostInterval,
		Defaults:     fetchOpts,
	})

	transport, err := buildTransport(appCfg, client, fetchOpts)
	if err != nil {
		slog.Error("Failed to configure transport", "error", err)
		os.Exit(1)
	}

	normalizer := content.NewNormalizer(client, fetchOpts)
	if !appCfg.IgnoreRobots {
		normalizer = normalizer.WithRobots(fetch.NewRobotsChecker(client, appCfg.UserAgent, fetch.DefaultRobotsCacheSize, fetch.DefaultRobotsTTL))
	}

	parser := feed.NewParser()
	ingestor := ingest.NewIngestor(ingest.Deps{
		Transport:  transport,
		Resolver:   mirror.NewResolver(client, appCfg.Mirrors),
		Parser:     parser,
		Normalizer: normalizer,
		Images:     images.NewSelector(images.DefaultConfig()),
		Articles:   articleRepo,
		Sources:    sourceRepo,
		OnState: func(_ database.Source, state ingest.State) {
			metrics.RecordIngestState(string(state))
		},
	})
	orchestrator := tasks.NewOrchestrator(ingestor, sourceRepo)

	subsCache := subscriptions.NewCache(appCfg.FeedsDir)
	if err := subsCache.Run(); err != nil {
		slog.Error("Failed to load subscriptions", "dir", appCfg.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Subscriptions loaded", "dir", appCfg.FeedsDir, "count", subsCache.Count())
	syncer := subscriptions.NewSyncer(subsCache, sourceRepo)

	scheduler, err := tasks.NewScheduler(orchestrator, sourceRepo, syncer, appCfg.RefreshSchedule, appCfg.MaxConcurrent)
	if err != nil {
		slog.Error("Failed to create scheduler", "schedule", appCfg.RefreshSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if !appCfg.NoWatch {
		watcher, err := subscriptions.NewWatcher(appCfg.FeedsDir, syncer, subscriptions.DefaultDebounce)
		if err != nil {
			slog.Warn("Subscription watcher disabled", "dir", appCfg.FeedsDir, "error", err)
		} else {
			go watcher.Run(watchCtx)
		}
	}

	relayOpts := api.RelayOptions{
		Fetch:    fetchOpts,
		FeedTTL:  appCfg.RelayFeedTTL,
		ImageTTL: appCfg.RelayImageTTL,
	}
	if appCfg.RedisURL != "" {
		relayCache, err := cache.NewCache(context.Background(), appCfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect relay cache", "error", err)
			os.Exit(1)
		}
		defer relayCache.Close()
		relayOpts.Cache = relayCache
	}

	publicURL := appCfg.PublicURL
	if publicURL == "" {
		publicURL = "http://localhost:" + appCfg.Port
	}
	relayOpts.PublicURL = publicURL
	relay := api.NewRelay(client, parser, feed.NewGenerator(appCfg.Version), relayOpts)
	handler := api.NewHandler(sourceRepo, articleRepo, orchestrator, scheduler, transport.Name(), appCfg.Version)
	server := api.NewServer(handler, relay, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "public_url", publicURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("RSS Harvest server shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func buildTransport(appCfg *cfg.Cfg, client *fetch.Client, opts fetch.Options) (ingest.Transport, error) {
	if appCfg.Transport == cfg.TransportProxy {
		return ingest.NewRelayTransport(client, appCfg.ProxyURL, opts)
	}
	return ingest.NewDirectTransport(client, opts), nil
}
