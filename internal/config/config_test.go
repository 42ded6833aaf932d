package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("QUEUES_TABLE", "")
	t.Setenv("SNAPSHOT_CACHE_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.AWSRegion != "ap-south-1" {
		t.Fatalf("expected default region, got %s", cfg.AWSRegion)
	}
	if cfg.QueuesTable != "pulseops-queues" {
		t.Fatalf("expected default queues table, got %s", cfg.QueuesTable)
	}
	if cfg.TokensTable != "pulseops-tokens" {
		t.Fatalf("expected default tokens table, got %s", cfg.TokensTable)
	}
	if cfg.ConsultationDuration != 15*time.Minute {
		t.Fatalf("expected default consultation duration, got %s", cfg.ConsultationDuration)
	}
	if cfg.SnapshotCacheTTL != 60*time.Second {
		t.Fatalf("expected default snapshot TTL, got %s", cfg.SnapshotCacheTTL)
	}
	if cfg.QueueOpensAt != "09:00" || cfg.QueueClosesAt != "17:00" {
		t.Fatalf("expected default queue hours, got %s-%s", cfg.QueueOpensAt, cfg.QueueClosesAt)
	}
	if cfg.LunchBreakStart != "13:00" || cfg.LunchBreakEnd != "14:00" {
		t.Fatalf("expected default lunch window, got %s-%s", cfg.LunchBreakStart, cfg.LunchBreakEnd)
	}
	if cfg.DefaultMaxTokens != 0 {
		t.Fatalf("expected unlimited default capacity, got %d", cfg.DefaultMaxTokens)
	}
	if cfg.WhatsAppEnabled {
		t.Fatalf("expected whatsapp disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("QUEUES_TABLE", "qa-queues")
	t.Setenv("CONSULTATION_DURATION", "20m")
	t.Setenv("SNAPSHOT_CACHE_TTL", "30s")
	t.Setenv("DEFAULT_MAX_TOKENS", "75")
	t.Setenv("WHATSAPP_ENABLED", "true")
	t.Setenv("USE_MEMORY_RELAY", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.QueuesTable != "qa-queues" {
		t.Fatalf("expected table override, got %s", cfg.QueuesTable)
	}
	if cfg.ConsultationDuration != 20*time.Minute {
		t.Fatalf("expected duration override, got %s", cfg.ConsultationDuration)
	}
	if cfg.SnapshotCacheTTL != 30*time.Second {
		t.Fatalf("expected TTL override, got %s", cfg.SnapshotCacheTTL)
	}
	if cfg.DefaultMaxTokens != 75 {
		t.Fatalf("expected max tokens override, got %d", cfg.DefaultMaxTokens)
	}
	if !cfg.WhatsAppEnabled {
		t.Fatalf("expected whatsapp enabled")
	}
	if !cfg.UseMemoryRelay {
		t.Fatalf("expected memory relay enabled")
	}
}

func TestValidateProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("NOTIFICATION_QUEUE_URL", "")
	t.Setenv("USE_MEMORY_RELAY", "")
	cfg := Load()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
		t.Fatalf("expected missing jwt secret named, got %v", err)
	}

	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("NOTIFICATION_QUEUE_URL", "https://sqs.ap-south-1.amazonaws.com/1/notify")
	cfg = Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestValidateDevelopmentSkips(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "")
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should not require secrets, got %v", err)
	}
}
