package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	TargetReviews         int
	PageTimeout           time.Duration
	ElementTimeout        time.Duration
	PollInterval          time.Duration
	MaxAttempts           int
	RetryBackoff          time.Duration
	RetryBackoffMax       time.Duration
	DistributionTolerance float64
	Workers               int
	RateLimitMin          time.Duration
	RateLimitMax          time.Duration
	DebugDir              string
	AllowedHosts          []string
}

type BrowserConfig struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			TargetReviews:         getIntOrDefault("SCRAPER_TARGET_REVIEWS", 30),
			PageTimeout:           getDurationOrDefault("SCRAPER_PAGE_TIMEOUT", 30*time.Second),
			ElementTimeout:        getDurationOrDefault("SCRAPER_ELEMENT_TIMEOUT", 5*time.Second),
			PollInterval:          getDurationOrDefault("SCRAPER_POLL_INTERVAL", 250*time.Millisecond),
			MaxAttempts:           getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			RetryBackoff:          getDurationOrDefault("SCRAPER_RETRY_BACKOFF", 500*time.Millisecond),
			RetryBackoffMax:       getDurationOrDefault("SCRAPER_RETRY_BACKOFF_MAX", 5*time.Second),
			DistributionTolerance: getFloatOrDefault("SCRAPER_DISTRIBUTION_TOLERANCE", 2.0),
			Workers:               getIntOrDefault("SCRAPER_WORKERS", 2),
			RateLimitMin:          getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 1*time.Second),
			RateLimitMax:          getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 3*time.Second),
			DebugDir:              getEnvOrDefault("SCRAPER_DEBUG_DIR", ""),
			AllowedHosts:          getStringSliceOrDefault("SCRAPER_ALLOWED_HOSTS", nil),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ko-KR,ko;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Seoul"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ko-KR"),
		},
		Database: DatabaseConfig{
			Host:        getEnvOrDefault("DB_HOST", "localhost"),
			Port:        getIntOrDefault("DB_PORT", 5432),
			User:        getEnvOrDefault("DB_USER", "postgres"),
			Password:    getEnvOrDefault("DB_PASSWORD", ""),
			Name:        getEnvOrDefault("DB_NAME", "review_scraper"),
			SSLMode:     getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:    int32(getIntOrDefault("DB_MAX_CONNS", 10)),
			AutoMigrate: getBoolOrDefault("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", true),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.TargetReviews < 1 {
		return fmt.Errorf("SCRAPER_TARGET_REVIEWS must be at least 1")
	}

	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.PageTimeout <= 0 || c.Scraper.ElementTimeout <= 0 {
		return fmt.Errorf("SCRAPER_PAGE_TIMEOUT and SCRAPER_ELEMENT_TIMEOUT must be positive")
	}

	if c.Scraper.RetryBackoff > c.Scraper.RetryBackoffMax {
		return fmt.Errorf("SCRAPER_RETRY_BACKOFF cannot be greater than SCRAPER_RETRY_BACKOFF_MAX")
	}

	if c.Scraper.DistributionTolerance < 0 {
		return fmt.Errorf("SCRAPER_DISTRIBUTION_TOLERANCE cannot be negative")
	}

	if c.Scraper.Workers < 1 {
		return fmt.Errorf("SCRAPER_WORKERS must be at least 1")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	return nil
}

// DSN returns the postgres connection string for the configured database.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getStringSliceOrDefault splits a comma-separated value, dropping blanks.
func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
