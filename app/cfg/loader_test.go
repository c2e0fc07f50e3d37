package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.MaxConcurrent != 3 {
		t.Errorf("Expected max concurrent 3, got %d", cfg.MaxConcurrent)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("Expected fetch timeout 15s, got %s", cfg.FetchTimeout)
	}
	if cfg.FetchRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.FetchRetries)
	}
	if cfg.FetchRetryDelay != 2*time.Second {
		t.Errorf("Expected retry delay 2s, got %s", cfg.FetchRetryDelay)
	}
	if cfg.Transport != TransportDirect {
		t.Errorf("Expected direct transport, got %s", cfg.Transport)
	}
	if len(cfg.Mirrors) != 3 {
		t.Errorf("Expected 3 default mirrors, got %d", len(cfg.Mirrors))
	}
	if cfg.RelayFeedTTL != 5*time.Minute || cfg.RelayImageTTL != 24*time.Hour {
		t.Errorf("Unexpected relay cache TTLs: %s, %s", cfg.RelayFeedTTL, cfg.RelayImageTTL)
	}
	if cfg.RedisURL != "" || cfg.NoWatch || cfg.IgnoreRobots {
		t.Error("Expected redis, no-watch and ignore-robots to be off by default")
	}
}

func TestParseLists(t *testing.T) {
	cfg, err := parse([]string{"--relay-hosts", " cloudflare.example , , blocked.test", "--max-concurrent", "0"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(cfg.RelayHosts) != 2 || cfg.RelayHosts[0] != "cloudflare.example" || cfg.RelayHosts[1] != "blocked.test" {
		t.Errorf("Unexpected relay hosts: %v", cfg.RelayHosts)
	}
	if cfg.MaxConcurrent != 1 {
		t.Errorf("Expected max concurrent clamped to 1, got %d", cfg.MaxConcurrent)
	}
}

func TestParseProxyRequiresURL(t *testing.T) {
	if _, err := parse([]string{"--transport", "proxy"}); err == nil {
		t.Error("Expected error when proxy transport has no proxy URL")
	}

	cfg, err := parse([]string{"--transport", "proxy", "--proxy-url", "https://relay.example/"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.ProxyURL != "https://relay.example" {
		t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.ProxyURL)
	}
}

func TestLoadDotenv(t *testing.T) {
	if err := loadDotenv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing .env to be ignored, got: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("HARVEST_TEST_PORT=9191\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("HARVEST_TEST_PORT") })

	if err := loadDotenv(path); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := os.Getenv("HARVEST_TEST_PORT"); got != "9191" {
		t.Errorf("Expected HARVEST_TEST_PORT=9191, got '%s'", got)
	}
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("RELAY_FEED_TTL", "90s")
	t.Setenv("NO_WATCH", "true")

	cfg, err := parse([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Errorf("Unexpected redis url '%s'", cfg.RedisURL)
	}
	if cfg.RelayFeedTTL != 90*time.Second {
		t.Errorf("Expected feed TTL 90s, got %s", cfg.RelayFeedTTL)
	}
	if !cfg.NoWatch {
		t.Error("Expected NoWatch from environment")
	}
}
