package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	AuthJWTSecret    string
	InternalAPIToken string

	CORSAllowedOrigins []string

	RateLimitPerSecond float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	QueuesTable          string
	TokensTable          string
	SubscriptionsTable   string
	ProcessedEventsTable string
	BillingEnforced      bool

	NotificationQueueURL string
	UseMemoryRelay       bool
	WorkerCount          int

	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	SnapshotCacheTTL time.Duration

	ArchiveBucket string

	ClinicTimezone       string
	QueueOpensAt         string
	QueueClosesAt        string
	LunchBreakStart      string
	LunchBreakEnd        string
	ConsultationDuration time.Duration
	DefaultMaxTokens     int

	WhatsAppBaseURL       string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppEnabled       bool

	SESFromEmail string
	SESFromName  string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		AuthJWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
		InternalAPIToken: getEnv("INTERNAL_API_TOKEN", ""),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 0),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		QueuesTable:          getEnv("QUEUES_TABLE", "pulseops-queues"),
		TokensTable:          getEnv("TOKENS_TABLE", "pulseops-tokens"),
		SubscriptionsTable:   getEnv("SUBSCRIPTIONS_TABLE", "pulseops-subscriptions"),
		ProcessedEventsTable: getEnv("PROCESSED_EVENTS_TABLE", "pulseops-processed-events"),
		BillingEnforced:      getEnvAsBool("BILLING_ENFORCED", false),

		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
		UseMemoryRelay:       getEnvAsBool("USE_MEMORY_RELAY", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		SnapshotCacheTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", 60*time.Second),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		ClinicTimezone:       getEnv("CLINIC_TIMEZONE", "Asia/Kolkata"),
		QueueOpensAt:         getEnv("QUEUE_OPENS_AT", "09:00"),
		QueueClosesAt:        getEnv("QUEUE_CLOSES_AT", "17:00"),
		LunchBreakStart:      getEnv("LUNCH_BREAK_START", "13:00"),
		LunchBreakEnd:        getEnv("LUNCH_BREAK_END", "14:00"),
		ConsultationDuration: getEnvAsDuration("CONSULTATION_DURATION", 15*time.Minute),
		DefaultMaxTokens:     getEnvAsInt("DEFAULT_MAX_TOKENS", 0),

		WhatsAppBaseURL:       getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com/v17.0"),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppEnabled:       getEnvAsBool("WHATSAPP_ENABLED", false),

		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "PulseOps"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "PulseOps"),
	}
}

// Validate reports configuration that would make a production deployment
// unusable. Development keeps every fallback.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	var missing []string
	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if strings.TrimSpace(c.NotificationQueueURL) == "" && !c.UseMemoryRelay {
		missing = append(missing, "NOTIFICATION_QUEUE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// splitCSV turns "a, b,c" into ["a" "b" "c"], dropping blanks.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
