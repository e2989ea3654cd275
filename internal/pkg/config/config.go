package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// DefaultEndpoint is the collector address used when none is configured.
const DefaultEndpoint = "http://localhost:8080/entries"

// Config holds the reporting client configuration.
type Config struct {
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	APIKey             string        `env:"FAULTLINE_API_KEY"`
	Endpoint           string        `env:"FAULTLINE_ENDPOINT" envDefault:"http://localhost:8080/entries"`
	ApplicationVersion string        `env:"FAULTLINE_APP_VERSION"`
	SpoolDir           string        `env:"FAULTLINE_SPOOL_DIR"`
	SpoolCapacity      int           `env:"FAULTLINE_SPOOL_CAPACITY" envDefault:"10"`
	ReplayInterval     time.Duration `env:"FAULTLINE_REPLAY_INTERVAL" envDefault:"30s"`
	SendTimeout        time.Duration `env:"FAULTLINE_SEND_TIMEOUT" envDefault:"10s"`
	WaitTimeout        time.Duration `env:"FAULTLINE_WAIT_TIMEOUT" envDefault:"3s"`
	RateLimit          float64       `env:"FAULTLINE_RATE_LIMIT" envDefault:"20"`
	RateBurst          int           `env:"FAULTLINE_RATE_BURST" envDefault:"40"`
	BreakerFailures    uint32        `env:"FAULTLINE_BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout     time.Duration `env:"FAULTLINE_BREAKER_TIMEOUT" envDefault:"30s"`

	IgnoreHeaders         []string `env:"FAULTLINE_IGNORE_HEADERS" envDefault:"Authorization" envSeparator:","`
	IgnoreFormFields      []string `env:"FAULTLINE_IGNORE_FORM" envDefault:"password" envSeparator:","`
	IgnoreCookies         []string `env:"FAULTLINE_IGNORE_COOKIES" envSeparator:","`
	IgnoreServerVariables []string `env:"FAULTLINE_IGNORE_SERVER_VARIABLES" envDefault:"HTTP_AUTHORIZATION" envSeparator:","`
}

// CollectorConfig holds configuration for the collector and consumer binaries.
type CollectorConfig struct {
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	MaxReportSize        int64         `env:"MAX_REPORT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	RedisAddr            string        `env:"REDIS_ADDR,required,notEmpty"`
	RedisDLQStream       string        `env:"REDIS_DLQ_STREAM" envDefault:"fault_reports_dlq"`
	PostgresURL          string        `env:"POSTGRES_URL,required,notEmpty"`
	APIKeyCacheTTL       time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"5m"`
	BootstrapAPIKey      string        `env:"BOOTSTRAP_API_KEY"`
	CollectorServerAddr  string        `env:"COLLECTOR_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr      string        `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	ConsumerAdminAddr    string        `env:"CONSUMER_ADMIN_ADDR" envDefault:":9092"`
	ConsumerBatchSize    int           `env:"CONSUMER_BATCH_SIZE" envDefault:"500"`
	ConsumerRetryCount   int           `env:"CONSUMER_RETRY_COUNT" envDefault:"3"`
	ConsumerRetryBackoff time.Duration `env:"CONSUMER_RETRY_BACKOFF" envDefault:"1s"`
}

// Load reads client configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadCollector reads collector configuration from environment variables.
func LoadCollector() (*CollectorConfig, error) {
	_ = godotenv.Load()

	cfg := &CollectorConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the client configuration with every default applied and no
// environment consulted.
func Default() *Config {
	cfg := &Config{}
	// Parsing an empty environment only fills envDefault values.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SpoolDir == "" {
		c.SpoolDir = filepath.Join(os.TempDir(), "faultline-spool")
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.SpoolCapacity <= 0 {
		c.SpoolCapacity = 10
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 3 * time.Second
	}
}
