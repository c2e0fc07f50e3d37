package cfg

import "time"

type TransportMode string

const (
	TransportDirect TransportMode = "direct"
	TransportProxy  TransportMode = "proxy"
)

type Cfg struct {
	// Storage
	DBPath   string
	FeedsDir string

	// HTTP server
	Port         string
	PublicURL    string
	APIAccessKey string

	// Refresh
	MaxConcurrent   int
	RefreshSchedule string

	// Fetching
	FetchTimeout    time.Duration
	FetchRetries    int
	FetchRetryDelay time.Duration
	HostInterval    time.Duration
	UserAgent       string
	RelayURL        string
	RelayHosts      []string
	Transport       TransportMode
	ProxyURL        string
	Mirrors         []string
	IgnoreRobots    bool

	// Relay cache
	RedisURL      string
	RelayFeedTTL  time.Duration
	RelayImageTTL time.Duration

	// Subscriptions
	NoWatch bool

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
