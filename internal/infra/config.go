package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"

	QuotaSQL       = "sql"
	QuotaUnlimited = "unlimited"
)

// ProviderConfig carries the credentials and endpoint of one upstream provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Config represents application configuration loaded from environment variables.
// It is built once at process start and injected; nothing reads the
// environment after LoadConfig returns.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	LedgerBackend    string
	JWTSecret        string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	PublicBaseURL       string
	WebhookSecret       string
	PrimaryTimeout      time.Duration
	ProviderHTTPTimeout time.Duration
	Sora                ProviderConfig
	Seedance            ProviderConfig
	Kling               ProviderConfig

	QuotaMode         string
	QuotaDailyDefault int

	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	StallTimeout  time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	RedisAddr     string
	SweepLeaseKey string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LedgerBackend:    strings.ToLower(getEnv("LEDGER_BACKEND", LedgerPostgres)),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		PublicBaseURL:       strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		WebhookSecret:       strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),
		PrimaryTimeout:      time.Millisecond * time.Duration(getEnvInt("PRIMARY_TIMEOUT_MS", 4000)),
		ProviderHTTPTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_HTTP_TIMEOUT_SECONDS", 60)),
		Sora: ProviderConfig{
			APIKey:  strings.TrimSpace(os.Getenv("SORA_API_KEY")),
			BaseURL: getEnv("SORA_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("SORA_MODEL", "sora-2"),
		},
		Seedance: ProviderConfig{
			APIKey:  strings.TrimSpace(os.Getenv("SEEDANCE_API_KEY")),
			BaseURL: getEnv("SEEDANCE_BASE_URL", "https://api.replicate.com/v1"),
			Model:   getEnv("SEEDANCE_MODEL", "bytedance/seedance-1-lite"),
		},
		Kling: ProviderConfig{
			APIKey:  strings.TrimSpace(os.Getenv("KLING_API_KEY")),
			BaseURL: getEnv("KLING_BASE_URL", "https://api.klingai.com"),
			Model:   getEnv("KLING_MODEL", "kling-v1-6"),
		},

		QuotaMode:         strings.ToLower(getEnv("QUOTA_MODE", QuotaSQL)),
		QuotaDailyDefault: getEnvInt("QUOTA_DAILY_DEFAULT", 5),

		AMQPURL:        strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "media"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "media.video.ready"),

		StallTimeout:  time.Minute * time.Duration(getEnvInt("STALL_TIMEOUT_MINUTES", 30)),
		SweepInterval: time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),
		SweepBatch:    getEnvInt("SWEEP_BATCH", 100),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		SweepLeaseKey: getEnv("SWEEP_LEASE_KEY", "vidgen:sweep:lease"),
	}

	switch cfg.LedgerBackend {
	case LedgerPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case LedgerMemory:
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND must be %q or %q", LedgerPostgres, LedgerMemory)
	}

	switch cfg.QuotaMode {
	case QuotaSQL:
		if cfg.LedgerBackend != LedgerPostgres {
			return nil, fmt.Errorf("QUOTA_MODE=sql requires LEDGER_BACKEND=postgres")
		}
	case QuotaUnlimited:
	default:
		return nil, fmt.Errorf("QUOTA_MODE must be %q or %q", QuotaSQL, QuotaUnlimited)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PrimaryTimeout <= 0 {
		return nil, fmt.Errorf("PRIMARY_TIMEOUT_MS must be positive")
	}

	return cfg, nil
}

// WebhookURL is the provider-facing callback endpoint without correlation parameters.
func (c *Config) WebhookURL() string {
	return c.PublicBaseURL + "/v1/webhooks/video"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
