// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings for background jobs.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ReferralConfig provides the referral lifecycle timing settings.
type ReferralConfig interface {
	GetReferralTTL() time.Duration
	GetReferralSweepInterval() time.Duration
	GetReferralSweepBatchSize() int
	GetReferralSweepConcurrency() int
	GetReferralReminderLead() time.Duration
}

// EmailConfig provides settings for SMTP email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetBrevoAPIKey() string
}

// SMSConfig provides settings for the SMS gateway.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
	GetSMSSender() string
	GetSMSDefaultRegion() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetOpsAlertEmail() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	AppBaseURL               string
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	ReferralTTL              time.Duration
	ReferralSweepInterval    time.Duration
	ReferralSweepBatchSize   int
	ReferralSweepConcurrency int
	ReferralReminderLead     time.Duration
	EmailEnabled             bool
	SMTPHost                 string
	SMTPPort                 int
	SMTPUsername             string
	SMTPPassword             string
	EmailFromName            string
	EmailFromAddress         string
	BrevoAPIKey              string
	SMSGatewayURL            string
	SMSGatewayKey            string
	SMSSender                string
	SMSDefaultRegion         string
	OpsAlertEmail            string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// ReferralConfig implementation
func (c *Config) GetReferralTTL() time.Duration           { return c.ReferralTTL }
func (c *Config) GetReferralSweepInterval() time.Duration { return c.ReferralSweepInterval }
func (c *Config) GetReferralSweepBatchSize() int          { return c.ReferralSweepBatchSize }
func (c *Config) GetReferralSweepConcurrency() int        { return c.ReferralSweepConcurrency }
func (c *Config) GetReferralReminderLead() time.Duration  { return c.ReferralReminderLead }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string    { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string    { return c.SMSGatewayKey }
func (c *Config) GetSMSSender() string        { return c.SMSSender }
func (c *Config) GetSMSDefaultRegion() string { return c.SMSDefaultRegion }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string    { return c.AppBaseURL }
func (c *Config) GetOpsAlertEmail() string { return c.OpsAlertEmail }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	var env envParser
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:               getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:         env.integer("ASYNQ_CONCURRENCY", "10"),
		ReferralTTL:              env.duration("REFERRAL_TTL", "48h"),
		ReferralSweepInterval:    env.duration("REFERRAL_SWEEP_INTERVAL", "5m"),
		ReferralSweepBatchSize:   env.integer("REFERRAL_SWEEP_BATCH_SIZE", "200"),
		ReferralSweepConcurrency: env.integer("REFERRAL_SWEEP_CONCURRENCY", "8"),
		ReferralReminderLead:     env.duration("REFERRAL_REMINDER_LEAD", "6h"),
		EmailEnabled:             emailEnabled && (smtpHost != "" || brevoAPIKey != ""),
		SMTPHost:                 smtpHost,
		SMTPPort:                 env.integer("SMTP_PORT", "587"),
		SMTPUsername:             getEnv("SMTP_USERNAME", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		EmailFromName:            getEnv("EMAIL_FROM_NAME", "Broker Portal"),
		EmailFromAddress:         getEnv("EMAIL_FROM_ADDRESS", ""),
		BrevoAPIKey:              brevoAPIKey,
		SMSGatewayURL:            getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey:            getEnv("SMS_GATEWAY_KEY", ""),
		SMSSender:                getEnv("SMS_SENDER", ""),
		SMSDefaultRegion:         getEnv("SMS_DEFAULT_REGION", "US"),
		OpsAlertEmail:            getEnv("OPS_ALERT_EMAIL", ""),
	}

	if env.err != nil {
		return nil, env.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.ReferralTTL <= 0 {
		return fmt.Errorf("REFERRAL_TTL must be a positive duration")
	}
	if c.ReferralSweepInterval <= 0 {
		return fmt.Errorf("REFERRAL_SWEEP_INTERVAL must be a positive duration")
	}
	// Bounds how long an overdue referral can sit unnoticed.
	if c.ReferralSweepInterval > c.ReferralTTL/10 {
		return fmt.Errorf("REFERRAL_SWEEP_INTERVAL (%s) must not exceed REFERRAL_TTL/10 (%s)",
			c.ReferralSweepInterval, c.ReferralTTL/10)
	}
	if c.ReferralReminderLead < 0 || c.ReferralReminderLead >= c.ReferralTTL {
		return fmt.Errorf("REFERRAL_REMINDER_LEAD must be between 0 and REFERRAL_TTL")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// envParser reads typed env values and collects every malformed key.
type envParser struct {
	err error
}

func (p *envParser) duration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		p.err = errors.Join(p.err, fmt.Errorf("%s: invalid duration %q", key, raw))
		return 0
	}
	return d
}

func (p *envParser) integer(key, fallback string) int {
	raw := getEnv(key, fallback)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.err = errors.Join(p.err, fmt.Errorf("%s: invalid integer %q", key, raw))
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
