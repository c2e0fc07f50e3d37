package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath   string `long:"db-path" env:"DB_PATH" default:"./data/harvest.db" description:"SQLite database file"`
	FeedsDir string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing subscription files"`

	// HTTP server configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	PublicURL    string `long:"public-url" env:"PUBLIC_URL" description:"Public base URL used when rewriting relayed image URLs"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Refresh configuration
	MaxConcurrent   int    `long:"max-concurrent" env:"MAX_CONCURRENT" default:"3" description:"Maximum number of sources refreshed at once"`
	RefreshSchedule string `long:"refresh-schedule" env:"REFRESH_SCHEDULE" default:"@every 30m" description:"Cron spec for periodic refresh (empty disables)"`

	// Fetch configuration
	FetchTimeout    time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15s" description:"Per-attempt fetch timeout"`
	FetchRetries    int           `long:"fetch-retries" env:"FETCH_RETRIES" default:"3" description:"Retries after the first failed attempt"`
	FetchRetryDelay time.Duration `long:"fetch-retry-delay" env:"FETCH_RETRY_DELAY" default:"2s" description:"Base delay for exponential backoff"`
	HostInterval    time.Duration `long:"host-interval" env:"HOST_INTERVAL" default:"500ms" description:"Minimum interval between requests to one host"`
	UserAgent       string        `long:"user-agent" env:"USER_AGENT" default:"RSS Harvest/1.0" description:"User agent string for feed requests"`
	RelayURL        string        `long:"relay-url" env:"RELAY_URL" description:"CORS-style relay base URL; the target is passed as ?url="`
	RelayHosts      string        `long:"relay-hosts" env:"RELAY_HOSTS" description:"Comma separated hostname substrings fetched through the relay"`
	Transport       string        `long:"transport" env:"TRANSPORT" default:"direct" choice:"direct" choice:"proxy" description:"Feed transport strategy"`
	ProxyURL        string        `long:"proxy-url" env:"PROXY_URL" description:"Remote relay base URL used by the proxy transport"`
	Mirrors         string        `long:"mirrors" env:"MIRRORS" default:"https://rsshub.app,https://rsshub.rssforever.com,https://hub.slarker.me" description:"Comma separated mirror instances for rsshub:// sources"`
	IgnoreRobots    bool          `long:"ignore-robots" env:"IGNORE_ROBOTS" description:"Backfill article pages even when robots.txt disallows them"`

	// Relay cache configuration
	RedisURL      string        `long:"redis-url" env:"REDIS_URL" description:"Redis URL for caching relayed responses (optional)"`
	RelayFeedTTL  time.Duration `long:"relay-feed-ttl" env:"RELAY_FEED_TTL" default:"5m" description:"How long relayed feeds stay cached"`
	RelayImageTTL time.Duration `long:"relay-image-ttl" env:"RELAY_IMAGE_TTL" default:"24h" description:"How long relayed images stay cached"`

	// Subscription configuration
	NoWatch bool `long:"no-watch" env:"NO_WATCH" description:"Do not watch the feeds directory for changes"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads an optional .env file, then parses flags and environment.
// Variables already set in the environment win over the file.
// It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	if err := loadDotenv(".env"); err != nil {
		return nil, err
	}
	return parse(nil)
}

func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:          raw.DBPath,
		FeedsDir:        raw.FeedsDir,
		Port:            raw.Port,
		PublicURL:       strings.TrimRight(raw.PublicURL, "/"),
		APIAccessKey:    raw.APIAccessKey,
		MaxConcurrent:   raw.MaxConcurrent,
		RefreshSchedule: raw.RefreshSchedule,
		FetchTimeout:    raw.FetchTimeout,
		FetchRetries:    raw.FetchRetries,
		FetchRetryDelay: raw.FetchRetryDelay,
		HostInterval:    raw.HostInterval,
		UserAgent:       raw.UserAgent,
		RelayURL:        raw.RelayURL,
		RelayHosts:      splitList(raw.RelayHosts),
		Transport:       TransportMode(raw.Transport),
		ProxyURL:        strings.TrimRight(raw.ProxyURL, "/"),
		Mirrors:         splitList(raw.Mirrors),
		IgnoreRobots:    raw.IgnoreRobots,
		RedisURL:        raw.RedisURL,
		RelayFeedTTL:    raw.RelayFeedTTL,
		RelayImageTTL:   raw.RelayImageTTL,
		NoWatch:         raw.NoWatch,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Transport == TransportProxy && cfg.ProxyURL == "" {
		return nil, fmt.Errorf("proxy transport requires --proxy-url")
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
