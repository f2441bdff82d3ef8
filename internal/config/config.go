package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName    = "Newsfeed"
	AppVersion = "1.0.0"
	AppRepo    = "https://github.com/newsfeed/newsfeed"
)

// DefaultUserAgent identifies the crawler to feed servers.
var DefaultUserAgent = "Mozilla/5.0 (compatible; " + AppName + "/" + AppVersion + "; +" + AppRepo + ")"

// Chrome headers for TLS fingerprinting (must match azuretls Chrome profile version)
const (
	ChromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	ChromeSecChUa   = `"Google Chrome";v="135", "Chromium";v="135", "Not-A.Brand";v="8"`
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	FetchClientStandard = "standard"
	FetchClientBrowser  = "browser"

	EnhancerNone        = "none"
	EnhancerMarkdown    = "markdown"
	EnhancerReadability = "readability"
	EnhancerAI          = "ai"
)

type Config struct {
	Addr      string
	DataDir   string
	DBDriver  string
	DBPath    string
	DBURL     string
	LogLevel  string
	LogFormat string
	NodeID    int64

	RefreshInterval time.Duration
	RefreshWorkers  int

	Fetch   FetchConfig
	Enhance EnhanceConfig
	AI      AIConfig
	Redis   RedisConfig
}

type FetchConfig struct {
	Client         string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxBytes       int64
	ProxyURL       string
}

type EnhanceConfig struct {
	Mode                string
	Timeout             time.Duration
	Workers             int
	SummaryMaxChars     int
	ReadabilityMinChars int
}

type AIConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Language  string
	RateLimit int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LinkTTL  time.Duration
}

// Enabled reports whether a Redis link cache should be used.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is loaded first without overriding variables that
// are already set.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getString("NEWSFEED_DATA_DIR", "./data")
	dbPath := getString("NEWSFEED_DB_PATH", filepath.Join(dataDir, "newsfeed.db"))

	return Config{
		Addr:      getString("NEWSFEED_ADDR", ":8080"),
		DataDir:   filepath.Clean(dataDir),
		DBDriver:  strings.ToLower(getString("NEWSFEED_DB_DRIVER", DriverSQLite)),
		DBPath:    filepath.Clean(dbPath),
		DBURL:     getString("NEWSFEED_DATABASE_URL", ""),
		LogLevel:  getString("NEWSFEED_LOG_LEVEL", "info"),
		LogFormat: getString("NEWSFEED_LOG_FORMAT", "text"),
		NodeID:    int64(getInt("NEWSFEED_NODE_ID", 1)),

		RefreshInterval: getDuration("NEWSFEED_REFRESH_INTERVAL", 15*time.Minute),
		RefreshWorkers:  getInt("NEWSFEED_REFRESH_WORKERS", 4),

		Fetch: FetchConfig{
			Client:         strings.ToLower(getString("NEWSFEED_FETCH_CLIENT", FetchClientStandard)),
			Timeout:        getDuration("NEWSFEED_FETCH_TIMEOUT", 30*time.Second),
			ConnectTimeout: getDuration("NEWSFEED_FETCH_CONNECT_TIMEOUT", 10*time.Second),
			MaxBytes:       int64(getInt("NEWSFEED_FETCH_MAX_BYTES", 10<<20)),
			ProxyURL:       getString("NEWSFEED_PROXY_URL", ""),
		},
		Enhance: EnhanceConfig{
			Mode:                strings.ToLower(getString("NEWSFEED_ENHANCER", EnhancerMarkdown)),
			Timeout:             getDuration("NEWSFEED_ENHANCE_TIMEOUT", 20*time.Second),
			Workers:             getInt("NEWSFEED_ENHANCE_WORKERS", 4),
			SummaryMaxChars:     getInt("NEWSFEED_SUMMARY_MAX_CHARS", 1200),
			ReadabilityMinChars: getInt("NEWSFEED_READABILITY_MIN_CHARS", 280),
		},
		AI: AIConfig{
			Provider:  getString("NEWSFEED_AI_PROVIDER", "openai"),
			APIKey:    getString("NEWSFEED_AI_API_KEY", ""),
			BaseURL:   getString("NEWSFEED_AI_BASE_URL", ""),
			Model:     getString("NEWSFEED_AI_MODEL", ""),
			Language:  getString("NEWSFEED_AI_LANGUAGE", "en-US"),
			RateLimit: getInt("NEWSFEED_AI_RATE_LIMIT", 10),
		},
		Redis: RedisConfig{
			Addr:     getString("NEWSFEED_REDIS_ADDR", ""),
			Password: getString("NEWSFEED_REDIS_PASSWORD", ""),
			DB:       getInt("NEWSFEED_REDIS_DB", 0),
			LinkTTL:  getDuration("NEWSFEED_REDIS_LINK_TTL", 30*24*time.Hour),
		},
	}
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
