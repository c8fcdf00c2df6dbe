package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "carecall"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Telephony: TelephonyConfig{
			BaseURL:       "https://api.voice.example",
			APIKey:        "key",
			AgentID:       "agent_1",
			FromNumber:    "+15550000000",
			WebhookSecret: "whsec",
		},
		Understanding: UnderstandingConfig{BaseURL: "https://nlu.example"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "carecall"
	c.Auth.JWTAudience = "admin"
	c.Storage = StorageConfig{Provider: "filesystem"}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Storage.Provider != "filesystem" {
		t.Fatalf("expected filesystem storage default, got %q", c.Storage.Provider)
	}
	if c.Scheduler.TickInterval != 15*time.Minute || c.Scheduler.InterCallDelay != 30*time.Second {
		t.Fatalf("unexpected scheduler defaults: %+v", c.Scheduler)
	}
	if c.Scheduler.SafetyFloor != 8*time.Hour {
		t.Fatalf("expected 8h safety floor, got %v", c.Scheduler.SafetyFloor)
	}
	if c.Queue.Concurrency != 5 || c.Queue.MaxAttempts != 3 {
		t.Fatalf("unexpected queue defaults: %+v", c.Queue)
	}
	if c.Media.FFmpegPath != "ffmpeg" {
		t.Fatalf("expected ffmpeg default, got %q", c.Media.FFmpegPath)
	}
}

func TestValidate_WebhookSecretRequired(t *testing.T) {
	c := validConfig()
	c.Telephony.WebhookSecret = ""
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "TELEPHONY_WEBHOOK_SECRET") {
		t.Fatalf("expected webhook secret error, got %v", err)
	}
}

func TestValidate_OperatingWindowOrder(t *testing.T) {
	c := validConfig()
	c.Scheduler.OperatingStart = "20:00"
	c.Scheduler.OperatingEnd = "09:00"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected operating window error")
	}
}

func TestValidate_S3RequiresCredentials(t *testing.T) {
	c := validConfig()
	c.Storage = StorageConfig{Provider: "s3", Bucket: "recordings"}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "STORAGE_ACCESS_KEY_ID") {
		t.Fatalf("expected s3 credential error, got %v", err)
	}
}

func TestLoad_ParsesEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENV":                    "dev",
		"APP_PORT":                   "9000",
		"DB_HOST":                    "db",
		"DB_PORT":                    "5432",
		"DB_USER":                    "u",
		"DB_NAME":                    "n",
		"REDIS_HOST":                 "redis",
		"REDIS_PORT":                 "6379",
		"JWT_SECRET":                 "s",
		"TELEPHONY_BASE_URL":         "https://api.voice.example",
		"TELEPHONY_API_KEY":          "k",
		"TELEPHONY_AGENT_ID":         "a",
		"TELEPHONY_FROM_NUMBER":      "+1555",
		"TELEPHONY_WEBHOOK_SECRET":   "w",
		"TELEPHONY_RECORDING_HOSTS":  "Recordings.Voice.example, cdn.voice.example",
		"UNDERSTANDING_BASE_URL":     "https://nlu.example",
		"SCHEDULER_INTER_CALL_DELAY": "5s",
		"WORKER_CONCURRENCY":         "2",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9000 || c.Queue.Concurrency != 2 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Scheduler.InterCallDelay != 5*time.Second {
		t.Fatalf("expected 5s delay, got %v", c.Scheduler.InterCallDelay)
	}
	if len(c.Telephony.RecordingHosts) != 2 || c.Telephony.RecordingHosts[0] != "recordings.voice.example" {
		t.Fatalf("unexpected recording hosts: %v", c.Telephony.RecordingHosts)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("SCHEDULER_TICK_INTERVAL", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SCHEDULER_TICK_INTERVAL") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}
