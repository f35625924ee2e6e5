package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the sketchforge server.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Status   StatusConfig
	Database DatabaseConfig
	Quota    QuotaConfig
	AI       AIConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           string
	RateLimitPerMinute int
	TrustedProxies     []string
}

// RedisConfig addresses the queue broker. URL, when set, wins over the
// individual host/port/credential fields.
type RedisConfig struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	ProbeTimeout time.Duration
}

// Addr returns host:port for the broker.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type QueueConfig struct {
	Prefix       string
	TickInterval time.Duration
	BatchSize    int
	Retention    time.Duration
	PollTimeout  time.Duration
}

type StatusConfig struct {
	Store string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type QuotaConfig struct {
	DailyLimit   int
	MonthlyLimit int
}

type AIConfig struct {
	Provider string
	Timeout  time.Duration
	Gemini   GeminiConfig
}

type GeminiConfig struct {
	APIKey     string
	TextModel  string
	ImageModel string
}

type AuthConfig struct {
	AdminTokenHash string
}

var validProviders = map[string]bool{
	"mock":   true,
	"gemini": true,
}

var validStores = map[string]bool{
	"memory":   true,
	"postgres": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SKETCHFORGE_PORT", 8080),
			Env:                envString("SKETCHFORGE_ENV", "development"),
			LogLevel:           strings.ToLower(envString("LOG_LEVEL", "info")),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
			TrustedProxies:     envList("TRUSTED_PROXIES"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Host:         envString("REDIS_HOST", "localhost"),
			Port:         envInt("REDIS_PORT", 6379),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           envInt("REDIS_DB", 0),
			ProbeTimeout: envDuration("REDIS_PROBE_TIMEOUT", 2*time.Second),
		},
		Queue: QueueConfig{
			Prefix:       envString("QUEUE_PREFIX", "sketchforge"),
			TickInterval: envDuration("QUEUE_TICK_INTERVAL", time.Second),
			BatchSize:    envInt("QUEUE_BATCH_SIZE", 5),
			Retention:    envDuration("QUEUE_RETENTION", 5*time.Minute),
			PollTimeout:  envDuration("QUEUE_POLL_TIMEOUT", time.Second),
		},
		Status: StatusConfig{
			Store: strings.ToLower(envString("STATUS_STORE", "memory")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Quota: QuotaConfig{
			DailyLimit:   envInt("QUOTA_DAILY_LIMIT", 10),
			MonthlyLimit: envInt("QUOTA_MONTHLY_LIMIT", 100),
		},
		AI: AIConfig{
			Provider: envString("AI_PROVIDER", "mock"),
			Timeout:  envDurationSecs("AI_TIMEOUT_SECS", 120*time.Second),
			Gemini: GeminiConfig{
				APIKey:     os.Getenv("GEMINI_API_KEY"),
				TextModel:  envString("GEMINI_TEXT_MODEL", "gemini-2.0-flash"),
				ImageModel: envString("GEMINI_IMAGE_MODEL", "imagen-3.0-generate-002"),
			},
		},
		Auth: AuthConfig{
			AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SKETCHFORGE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB)
	}

	if c.Queue.TickInterval <= 0 {
		return fmt.Errorf("QUEUE_TICK_INTERVAL must be positive")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be positive, got %d", c.Queue.BatchSize)
	}

	if !validStores[c.Status.Store] {
		return fmt.Errorf("STATUS_STORE must be one of memory, postgres; got %q", c.Status.Store)
	}
	if c.Status.Store == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STATUS_STORE is postgres")
	}

	if c.Quota.DailyLimit <= 0 || c.Quota.MonthlyLimit <= 0 {
		return fmt.Errorf("QUOTA_DAILY_LIMIT and QUOTA_MONTHLY_LIMIT must be positive")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of mock, gemini; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
