// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// AuthConfig provides settings needed by the operator auth service.
type AuthConfig interface {
	JWTConfig
	GetAccessTokenTTL() time.Duration
	GetOperatorEmail() string
	GetOperatorPasswordHash() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// WhatsAppConfig provides settings for the outbound WhatsApp channel.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// FunnelConfig provides the re-engagement campaign policy knobs.
type FunnelConfig interface {
	// GetFunnelStepDelays returns the delay before each follow-up step.
	// Index 0 is the delay between the checkout link and follow_up_1.
	GetFunnelStepDelays() []time.Duration
	GetReconcileInterval() time.Duration
	GetBulkDelayMin() time.Duration
	GetBulkDelayMax() time.Duration
}

// GatewayConfig provides payment gateway checkout settings.
type GatewayConfig interface {
	GetCheckoutGateway() string
	GetCaktoBaseURL() string
	GetCaktoProductSlug() string
	GetHotmartBaseURL() string
	GetHotmartProductID() string
}

// EmailConfig provides settings for operator alert emails.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromAddress() string
	GetAlertRecipient() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	DatabaseURL       string
	JWTAccessSecret   string
	AccessTokenTTL    time.Duration
	CORSAllowAll      bool
	CORSOrigins       []string
	CORSAllowCreds    bool
	OperatorEmail     string
	OperatorPassHash  string
	WhatsAppURL       string
	WhatsAppKey       string
	WhatsAppDeviceID  string
	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	FunnelStepDelays  []time.Duration
	ReconcileInterval time.Duration
	BulkDelayMin      time.Duration
	BulkDelayMax      time.Duration
	CheckoutGateway   string
	CaktoBaseURL      string
	CaktoProductSlug  string
	HotmartBaseURL    string
	HotmartProductID  string
	EmailEnabled      bool
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	EmailFromAddress  string
	AlertRecipient    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig / AuthConfig implementation
func (c *Config) GetJWTAccessSecret() string       { return c.JWTAccessSecret }
func (c *Config) GetAccessTokenTTL() time.Duration { return c.AccessTokenTTL }
func (c *Config) GetOperatorEmail() string         { return c.OperatorEmail }
func (c *Config) GetOperatorPasswordHash() string  { return c.OperatorPassHash }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// FunnelConfig implementation
func (c *Config) GetFunnelStepDelays() []time.Duration { return c.FunnelStepDelays }
func (c *Config) GetReconcileInterval() time.Duration  { return c.ReconcileInterval }
func (c *Config) GetBulkDelayMin() time.Duration       { return c.BulkDelayMin }
func (c *Config) GetBulkDelayMax() time.Duration       { return c.BulkDelayMax }

// GatewayConfig implementation
func (c *Config) GetCheckoutGateway() string  { return c.CheckoutGateway }
func (c *Config) GetCaktoBaseURL() string     { return c.CaktoBaseURL }
func (c *Config) GetCaktoProductSlug() string { return c.CaktoProductSlug }
func (c *Config) GetHotmartBaseURL() string   { return c.HotmartBaseURL }
func (c *Config) GetHotmartProductID() string { return c.HotmartProductID }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAlertRecipient() string   { return c.AlertRecipient }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the environment, optionally seeded from .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTAccessSecret:   os.Getenv("JWT_ACCESS_SECRET"),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 12*time.Hour),
		CORSAllowAll:      getBool("CORS_ALLOW_ALL", false),
		CORSOrigins:       getList("CORS_ORIGINS"),
		CORSAllowCreds:    getBool("CORS_ALLOW_CREDENTIALS", true),
		OperatorEmail:     os.Getenv("OPERATOR_EMAIL"),
		OperatorPassHash:  os.Getenv("OPERATOR_PASSWORD_HASH"),
		WhatsAppURL:       os.Getenv("WHATSAPP_URL"),
		WhatsAppKey:       os.Getenv("WHATSAPP_KEY"),
		WhatsAppDeviceID:  os.Getenv("WHATSAPP_DEVICE_ID"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisTLSInsecure:  getBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "funnel"),
		AsynqConcurrency:  getInt("ASYNQ_CONCURRENCY", 10),
		FunnelStepDelays:  getDurationList("FUNNEL_STEP_DELAYS", []time.Duration{30 * time.Minute, 24 * time.Hour, 48 * time.Hour}),
		ReconcileInterval: getDuration("FUNNEL_RECONCILE_INTERVAL", 30*time.Second),
		BulkDelayMin:      getDuration("FUNNEL_BULK_DELAY_MIN", 3*time.Second),
		BulkDelayMax:      getDuration("FUNNEL_BULK_DELAY_MAX", 6*time.Second),
		CheckoutGateway:   getEnv("CHECKOUT_GATEWAY", "cakto"),
		CaktoBaseURL:      getEnv("CAKTO_BASE_URL", "https://pay.cakto.com.br"),
		CaktoProductSlug:  os.Getenv("CAKTO_PRODUCT_SLUG"),
		HotmartBaseURL:    getEnv("HOTMART_BASE_URL", "https://pay.hotmart.com"),
		HotmartProductID:  os.Getenv("HOTMART_PRODUCT_ID"),
		EmailEnabled:      getBool("EMAIL_ENABLED", false),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getInt("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", "ops@serenata.app"),
		AlertRecipient:    os.Getenv("ALERT_RECIPIENT"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.BulkDelayMax < cfg.BulkDelayMin {
		return nil, fmt.Errorf("FUNNEL_BULK_DELAY_MAX must be >= FUNNEL_BULK_DELAY_MIN")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getDurationList(key string, fallback []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	items := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		parsed, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		items = append(items, parsed)
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
