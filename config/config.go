package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Crawl     CrawlConfig
	Frontier  FrontierConfig
	Transport TransportConfig
	Readiness ReadinessConfig
	Analysis  AnalysisConfig
	Log       LogConfig
}

// ServerConfig controls the readiness HTTP surface.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// CrawlConfig controls the worker pool and politeness pacing.
type CrawlConfig struct {
	// MaxConcurrentCrawlers is the worker pool size.
	MaxConcurrentCrawlers int // default: 10

	// CrawlDelay is the post-fetch politeness wait applied per site.
	CrawlDelay time.Duration // default: 3s

	// SkipRecentCrawls gates dispatch of sites crawled within RecentCrawlWindow.
	SkipRecentCrawls bool // default: true

	// RecentCrawlWindow is the recency gate lookback.
	RecentCrawlWindow time.Duration // default: 24h
}

// FrontierConfig controls the per-site intra-site link frontier.
type FrontierConfig struct {
	MaxLinksPerPage int // default: 50
	MaxQueueSize    int // default: 500
	MaxCrawlDepth   int // default: 10
	MaxOffsiteDepth int // default: 1
}

// TransportConfig controls the proxy endpoints and fetch limits.
type TransportConfig struct {
	TorProxyHostPort      string // e.g. "127.0.0.1:9050"
	I2PProxyHostPort      string // e.g. "127.0.0.1:4444"
	I2PInternalProxies    []string
	UseI2PInternalProxies bool // default: true

	// MaxRedirects caps the redirect chain a Fetcher will follow.
	MaxRedirects int // default: 5

	// MaxBodyBytes caps the number of response bytes read per fetch.
	MaxBodyBytes int64 // default: 10 MiB
}

// ReadinessConfig controls the bootstrap window and I2P quorum.
type ReadinessConfig struct {
	BootstrapDuration time.Duration // default: 1800s
	MinActiveI2P      int           // default: 5

	// RequireI2PConjunction keeps ready_for_crawling a strict conjunction
	// of (tor_ready, i2p_http_ready, i2p_sufficient) when true.
	RequireI2PConjunction bool // default: true

	// RefreshPollInterval is how often the background ticker forces a
	// probe refresh, independent of reader-triggered refreshes.
	RefreshPollInterval time.Duration // default: 60s
}

// AnalysisConfig is passed through to the out-of-scope analysis adapters
// without being interpreted by this core.
type AnalysisConfig struct {
	ModerationThreshold   int      // default: 30
	MaxImageSizeMB        int      // default: 10
	SupportedImageFormats []string // default: {webp,jpg,jpeg,png,gif,bmp,tiff,svg}
	MediaQueueMaxSize     int      // default: 100
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("NOCTIPEDE_HOST", "0.0.0.0"),
			Port: envIntOr("NOCTIPEDE_PORT", 8080),
			Mode: envOr("NOCTIPEDE_MODE", "release"),
		},
		Crawl: CrawlConfig{
			MaxConcurrentCrawlers: envIntOr("MAX_CONCURRENT_CRAWLERS", 10),
			CrawlDelay:            envDurationOr("CRAWL_DELAY_SECONDS", 3*time.Second),
			SkipRecentCrawls:      envBoolOr("SKIP_RECENT_CRAWLS", true),
			RecentCrawlWindow:     envHoursOr("RECENT_CRAWL_HOURS", 24*time.Hour),
		},
		Frontier: FrontierConfig{
			MaxLinksPerPage: envIntOr("MAX_LINKS_PER_PAGE", 50),
			MaxQueueSize:    envIntOr("MAX_QUEUE_SIZE", 500),
			MaxCrawlDepth:   envIntOr("MAX_CRAWL_DEPTH", 10),
			MaxOffsiteDepth: envIntOr("MAX_OFFSITE_DEPTH", 1),
		},
		Transport: TransportConfig{
			TorProxyHostPort:      envOr("TOR_PROXY_HOST_PORT", ""),
			I2PProxyHostPort:      envOr("I2P_PROXY_HOST_PORT", ""),
			I2PInternalProxies:    envSliceOr("I2P_INTERNAL_PROXIES", nil),
			UseI2PInternalProxies: envBoolOr("USE_I2P_INTERNAL_PROXIES", true),
			MaxRedirects:          envIntOr("MAX_REDIRECTS", 5),
			MaxBodyBytes:          envInt64Or("MAX_BODY_BYTES", 10*1024*1024),
		},
		Readiness: ReadinessConfig{
			BootstrapDuration:     envDurationOr("BOOTSTRAP_DURATION", 1800*time.Second),
			MinActiveI2P:          envIntOr("MIN_ACTIVE_I2P", 5),
			RequireI2PConjunction: envBoolOr("REQUIRE_I2P_CONJUNCTION", true),
			RefreshPollInterval:   envDurationOr("REFRESH_POLL_INTERVAL_SECONDS", 60*time.Second),
		},
		Analysis: AnalysisConfig{
			ModerationThreshold: envIntOr("MODERATION_THRESHOLD", 30),
			MaxImageSizeMB:      envIntOr("MAX_IMAGE_SIZE_MB", 10),
			SupportedImageFormats: envSliceOr("SUPPORTED_IMAGE_FORMATS", []string{
				"webp", "jpg", "jpeg", "png", "gif", "bmp", "tiff", "svg",
			}),
			MediaQueueMaxSize: envIntOr("AI_QUEUE_MAX_SIZE", 100),
		},
		Log: LogConfig{
			Level:  envOr("NOCTIPEDE_LOG_LEVEL", "info"),
			Format: envOr("NOCTIPEDE_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func envHoursOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
