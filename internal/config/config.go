// Package config provides environment-aware configuration management.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Defaults for tunables documented in the operations guide.
const (
	DefaultHTTPPort          = 8080
	DefaultBodyLimitBytes    = 1 << 20 // 1 MiB
	DefaultRequestTimeout    = 30 * time.Second
	DefaultJWTExpiry         = 24 * time.Hour
	DefaultRateLimitRPS      = 50
	DefaultRateLimitBurst    = 100
	DefaultCacheTier1Size    = 1024
	DefaultCacheTier1TTL     = 5 * time.Minute
	DefaultCacheTier2TTL     = 30 * time.Minute
	DefaultConnectorTTL      = 15 * time.Minute
	DefaultConnectorCacheMax = 256
	DefaultWebhookWorkers    = 8
	DefaultWebhookBase       = time.Second
	DefaultWebhookCap        = 60 * time.Second
	DefaultWebhookAttempts   = 3
	DefaultWebhookJitter     = 0.2
	DefaultWebhookRateLimit  = 10 // deliveries/sec per webhook
	DefaultWebhookTimeout    = 10 * time.Second
	DefaultNotifyWorkers     = 4 // per channel
	DefaultNotifyTimeout     = 15 * time.Second
	DefaultNotifyRetryCap    = 3
	DefaultBrokerQueueDepth  = 1024
	DefaultBrokerHandlers    = 16
	DefaultPublishBlock      = 200 * time.Millisecond
	DefaultReportWorkers     = 4
	DefaultReportGrace       = 30 * time.Second
	DefaultReportOutputDir   = "artifacts"
)

// Config holds all application configuration
type Config struct {
	Env Environment

	// HTTP
	HTTPPort       int
	BodyLimitBytes int64
	RequestTimeout time.Duration
	CORSOrigins    []string

	// Logging
	LogLevel  string
	LogFormat string

	// Auth
	JWTSecret string
	JWTExpiry time.Duration

	// Rate limiting (API boundary)
	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	// Persistence
	DatabaseURL string // empty selects the in-memory store

	// Cache
	CacheEnabled   bool
	RedisAddr      string // empty disables tier 2
	RedisPassword  string
	CacheTier1Size int
	CacheTier1TTL  time.Duration
	CacheTier2TTL  time.Duration
	CachePolicyPath string

	// Integration engine
	ConnectorIdleTTL  time.Duration
	ConnectorCacheMax int

	// Webhook delivery
	WebhookWorkers     int
	WebhookRetryBase   time.Duration
	WebhookRetryCap    time.Duration
	WebhookMaxAttempts int
	WebhookJitter      float64
	WebhookRateLimit   float64
	WebhookTimeout     time.Duration

	// Notification engine
	NotifyWorkersPerChannel int
	NotifyChannelTimeout    time.Duration
	NotifyRetryCap          int

	// Notification transports
	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	ChatGatewayURL   string
	ChatGatewayToken string
	SMSGatewayURL    string
	SMSGatewayToken  string
	PushGatewayURL   string
	PushGatewayToken string

	// Event broker
	BrokerQueueDepth    int
	BrokerHandlerPool   int
	BrokerPublishBlock  time.Duration

	// Report scheduler
	ReportWorkers   int
	ReportOutputDir string
	ReportGrace     time.Duration
}

// Load loads configuration based on the VERTEX_ENV environment variable.
// An optional config/<env>.env file is merged before reading the process
// environment.
func Load() (*Config, error) {
	envStr := strings.TrimSpace(os.Getenv("VERTEX_ENV"))
	if envStr == "" {
		envStr = string(Development)
	}

	env := Environment(strings.ToLower(envStr))
	switch env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid VERTEX_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(configFile); err != nil {
		// Config file is optional; only surface parse errors.
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{
		Env:            env,
		HTTPPort:       getInt("HTTP_PORT", DefaultHTTPPort),
		BodyLimitBytes: int64(getInt("BODY_LIMIT_BYTES", DefaultBodyLimitBytes)),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		CORSOrigins:    getList("CORS_ORIGINS", []string{"*"}),

		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: getString("LOG_FORMAT", "json"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpiry: getDuration("JWT_EXPIRY", DefaultJWTExpiry),

		RateLimitEnabled: getBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getInt("RATE_LIMIT_RPS", DefaultRateLimitRPS),
		RateLimitBurst:   getInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		CacheEnabled:    getBool("CACHE_ENABLED", true),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		CacheTier1Size:  getInt("CACHE_TIER1_SIZE", DefaultCacheTier1Size),
		CacheTier1TTL:   getDuration("CACHE_TIER1_TTL", DefaultCacheTier1TTL),
		CacheTier2TTL:   getDuration("CACHE_TIER2_TTL", DefaultCacheTier2TTL),
		CachePolicyPath: getString("CACHE_POLICY_PATH", ""),

		ConnectorIdleTTL:  getDuration("CONNECTOR_IDLE_TTL", DefaultConnectorTTL),
		ConnectorCacheMax: getInt("CONNECTOR_CACHE_MAX", DefaultConnectorCacheMax),

		WebhookWorkers:     getInt("WEBHOOK_WORKERS", DefaultWebhookWorkers),
		WebhookRetryBase:   getDuration("WEBHOOK_RETRY_BASE", DefaultWebhookBase),
		WebhookRetryCap:    getDuration("WEBHOOK_RETRY_CAP", DefaultWebhookCap),
		WebhookMaxAttempts: getInt("WEBHOOK_MAX_ATTEMPTS", DefaultWebhookAttempts),
		WebhookJitter:      getFloat("WEBHOOK_JITTER", DefaultWebhookJitter),
		WebhookRateLimit:   getFloat("WEBHOOK_RATE_LIMIT", DefaultWebhookRateLimit),
		WebhookTimeout:     getDuration("WEBHOOK_TIMEOUT", DefaultWebhookTimeout),

		NotifyWorkersPerChannel: getInt("NOTIFY_WORKERS", DefaultNotifyWorkers),
		NotifyChannelTimeout:    getDuration("NOTIFY_TIMEOUT", DefaultNotifyTimeout),
		NotifyRetryCap:          getInt("NOTIFY_RETRY_CAP", DefaultNotifyRetryCap),

		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getInt("SMTP_PORT", 587),
		SMTPFrom:         getString("SMTP_FROM", "noreply@vertex.local"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		ChatGatewayURL:   os.Getenv("CHAT_GATEWAY_URL"),
		ChatGatewayToken: os.Getenv("CHAT_GATEWAY_TOKEN"),
		SMSGatewayURL:    os.Getenv("SMS_GATEWAY_URL"),
		SMSGatewayToken:  os.Getenv("SMS_GATEWAY_TOKEN"),
		PushGatewayURL:   os.Getenv("PUSH_GATEWAY_URL"),
		PushGatewayToken: os.Getenv("PUSH_GATEWAY_TOKEN"),

		BrokerQueueDepth:   getInt("BROKER_QUEUE_DEPTH", DefaultBrokerQueueDepth),
		BrokerHandlerPool:  getInt("BROKER_HANDLER_POOL", DefaultBrokerHandlers),
		BrokerPublishBlock: getDuration("BROKER_PUBLISH_BLOCK", DefaultPublishBlock),

		ReportWorkers:   getInt("REPORT_WORKERS", DefaultReportWorkers),
		ReportOutputDir: getString("REPORT_OUTPUT_DIR", DefaultReportOutputDir),
		ReportGrace:     getDuration("REPORT_GRACE", DefaultReportGrace),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env == Production && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.WebhookMaxAttempts < 1 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be >= 1")
	}
	if c.WebhookJitter < 0 || c.WebhookJitter > 1 {
		return fmt.Errorf("WEBHOOK_JITTER must be within [0, 1]")
	}
	if c.BrokerQueueDepth < 1 {
		return fmt.Errorf("BROKER_QUEUE_DEPTH must be >= 1")
	}
	return nil
}

// IsDevelopment reports whether the development environment is active.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsProduction reports whether the production environment is active.
func (c *Config) IsProduction() bool { return c.Env == Production }

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
