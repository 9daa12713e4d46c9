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
	GetDatabaseMaxConns() int
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
	GetAgentGroup() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ScheduleConfig provides the cron specs of the periodic sweeps.
type ScheduleConfig interface {
	GetHourlySweepSpec() string
	GetDailySweepSpec() string
	GetSweepTimezone() *time.Location
}

// KafkaConfig provides message bus settings.
type KafkaConfig interface {
	GetKafkaBrokers() []string
	GetKafkaGroupID() string
	GetQuestionnaireTopic() string
	GetSalesforcePushTopic() string
	IsKafkaEnabled() bool
}

// MailerConfig provides settings for the mailer sink.
type MailerConfig interface {
	GetHubspotToken() string
	GetHubspotBaseURL() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetMailFromAddress() string
	GetMailFromName() string
	GetArchiveBCC() string
	GetMailerRatePerSecond() float64
}

// NotificationConfig provides settings for the notification dispatcher.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetValuationsDeskEmail() string
	GetReferralsDeskEmail() string
	GetArchiveBCC() string
	GetMailFromAddress() string
}

// SalesforceConfig provides CRM credentials and limits.
type SalesforceConfig interface {
	GetSalesforceLoginURL() string
	GetSalesforceClientID() string
	GetSalesforceClientSecret() string
	GetSalesforceUsername() string
	GetSalesforcePassword() string
	GetSalesforceAPIVersion() string
	GetSalesforceRatePerSecond() float64
	IsSalesforceEnabled() bool
}

// TaskConfig provides Task Engine settings.
type TaskConfig interface {
	GetMortgageTaskStates() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	DatabaseMaxConns        int
	MigrationsEnabled       bool
	JWTAccessSecret         string
	AgentGroup              string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	AppBaseURL              string
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	HourlySweepSpec         string
	DailySweepSpec          string
	SweepTimezone           *time.Location
	KafkaBrokers            []string
	KafkaGroupID            string
	QuestionnaireTopic      string
	SalesforcePushTopic     string
	HubspotToken            string
	HubspotBaseURL          string
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	MailFromAddress         string
	MailFromName            string
	ArchiveBCC              string
	MailerRatePerSecond     float64
	ValuationsDeskEmail     string
	ReferralsDeskEmail      string
	SalesforceLoginURL      string
	SalesforceClientID      string
	SalesforceClientSecret  string
	SalesforceUsername      string
	SalesforcePassword      string
	SalesforceAPIVersion    string
	SalesforceRatePerSecond float64
	MortgageTaskStates      []string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }
func (c *Config) GetAgentGroup() string      { return c.AgentGroup }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// ScheduleConfig implementation
func (c *Config) GetHourlySweepSpec() string       { return c.HourlySweepSpec }
func (c *Config) GetDailySweepSpec() string        { return c.DailySweepSpec }
func (c *Config) GetSweepTimezone() *time.Location { return c.SweepTimezone }

// KafkaConfig implementation
func (c *Config) GetKafkaBrokers() []string      { return c.KafkaBrokers }
func (c *Config) GetKafkaGroupID() string        { return c.KafkaGroupID }
func (c *Config) GetQuestionnaireTopic() string  { return c.QuestionnaireTopic }
func (c *Config) GetSalesforcePushTopic() string { return c.SalesforcePushTopic }
func (c *Config) IsKafkaEnabled() bool           { return len(c.KafkaBrokers) > 0 }

// MailerConfig implementation
func (c *Config) GetHubspotToken() string         { return c.HubspotToken }
func (c *Config) GetHubspotBaseURL() string       { return c.HubspotBaseURL }
func (c *Config) GetSMTPHost() string             { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string         { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string         { return c.SMTPPassword }
func (c *Config) GetMailFromAddress() string      { return c.MailFromAddress }
func (c *Config) GetMailFromName() string         { return c.MailFromName }
func (c *Config) GetArchiveBCC() string           { return c.ArchiveBCC }
func (c *Config) GetMailerRatePerSecond() float64 { return c.MailerRatePerSecond }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string          { return c.AppBaseURL }
func (c *Config) GetValuationsDeskEmail() string { return c.ValuationsDeskEmail }
func (c *Config) GetReferralsDeskEmail() string  { return c.ReferralsDeskEmail }

// SalesforceConfig implementation
func (c *Config) GetSalesforceLoginURL() string       { return c.SalesforceLoginURL }
func (c *Config) GetSalesforceClientID() string       { return c.SalesforceClientID }
func (c *Config) GetSalesforceClientSecret() string   { return c.SalesforceClientSecret }
func (c *Config) GetSalesforceUsername() string       { return c.SalesforceUsername }
func (c *Config) GetSalesforcePassword() string       { return c.SalesforcePassword }
func (c *Config) GetSalesforceAPIVersion() string     { return c.SalesforceAPIVersion }
func (c *Config) GetSalesforceRatePerSecond() float64 { return c.SalesforceRatePerSecond }
func (c *Config) IsSalesforceEnabled() bool {
	return c.SalesforceLoginURL != "" && c.SalesforceClientID != ""
}

// TaskConfig implementation
func (c *Config) GetMortgageTaskStates() []string { return c.MortgageTaskStates }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	tz, err := time.LoadLocation(getEnv("SWEEP_TIMEZONE", "America/Chicago"))
	if err != nil {
		return nil, fmt.Errorf("SWEEP_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:        mustInt(getEnv("DATABASE_MAX_CONNS", "25")),
		MigrationsEnabled:       strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		AgentGroup:              getEnv("AGENT_GROUP", "agent"),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:              getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		HourlySweepSpec:         getEnv("SWEEP_HOURLY_SPEC", "5 * * * *"),
		DailySweepSpec:          getEnv("SWEEP_DAILY_SPEC", "0 9 * * *"),
		SweepTimezone:           tz,
		KafkaBrokers:            splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "bbys-backend"),
		QuestionnaireTopic:      getEnv("KAFKA_QUESTIONNAIRE_TOPIC", "questionnaire-response"),
		SalesforcePushTopic:     getEnv("KAFKA_SALESFORCE_PUSH_TOPIC", "salesforce-push"),
		HubspotToken:            getEnv("HUBSPOT_TOKEN", ""),
		HubspotBaseURL:          getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		MailFromAddress:         getEnv("MAIL_FROM_ADDRESS", "hello@example.com"),
		MailFromName:            getEnv("MAIL_FROM_NAME", "Homeward"),
		ArchiveBCC:              getEnv("MAIL_ARCHIVE_BCC", ""),
		MailerRatePerSecond:     mustFloat(getEnv("MAILER_RATE_PER_SECOND", "5")),
		ValuationsDeskEmail:     getEnv("VALUATIONS_DESK_EMAIL", ""),
		ReferralsDeskEmail:      getEnv("REFERRALS_DESK_EMAIL", ""),
		SalesforceLoginURL:      getEnv("SALESFORCE_LOGIN_URL", ""),
		SalesforceClientID:      getEnv("SALESFORCE_CLIENT_ID", ""),
		SalesforceClientSecret:  getEnv("SALESFORCE_CLIENT_SECRET", ""),
		SalesforceUsername:      getEnv("SALESFORCE_USERNAME", ""),
		SalesforcePassword:      getEnv("SALESFORCE_PASSWORD", ""),
		SalesforceAPIVersion:    getEnv("SALESFORCE_API_VERSION", "v52.0"),
		SalesforceRatePerSecond: mustFloat(getEnv("SALESFORCE_RATE_PER_SECOND", "10")),
		MortgageTaskStates:      splitCSV(getEnv("MORTGAGE_TASK_STATES", "CO")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
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
