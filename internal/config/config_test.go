package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "DB_HOST", "DB_PORT", "DB_NAME", "REDIS_ADDR", "LOG_LEVEL", "STATS_CACHE_TTL", "MQTT_ENABLED"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("Expected STORE_BACKEND default 'postgres', got '%s'", cfg.StoreBackend)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected DB_HOST default 'localhost', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected DB_PORT default 5432, got %d", cfg.Database.Port)
	}
	if cfg.Database.Database != "iuran" {
		t.Errorf("Expected DB_NAME default 'iuran', got '%s'", cfg.Database.Database)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR default 'localhost:6379', got '%s'", cfg.Redis.Addr)
	}
	if cfg.Stats.CacheTTL != 30*time.Second {
		t.Errorf("Expected STATS_CACHE_TTL default 30s, got %s", cfg.Stats.CacheTTL)
	}
	if cfg.MQTT.Enabled {
		t.Errorf("Expected MQTT disabled by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("STORE_BACKEND", "PostgREST")
	t.Setenv("POSTGREST_URL", "https://db.example.test/rest/v1")
	t.Setenv("POSTGREST_API_KEY", "anon-key")
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("STATS_CACHE_TTL", "2m")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EVENTS_STREAM", "iuran:roster:events")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendPostgREST {
		t.Errorf("Expected backend 'postgrest', got '%s'", cfg.StoreBackend)
	}
	if cfg.PostgREST.APIKey != "anon-key" {
		t.Errorf("Expected POSTGREST_API_KEY 'anon-key', got '%s'", cfg.PostgREST.APIKey)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected invalid DB_PORT to fall back to 5432, got %d", cfg.Database.Port)
	}
	if cfg.Stats.CacheTTL != 2*time.Minute {
		t.Errorf("Expected STATS_CACHE_TTL 2m, got %s", cfg.Stats.CacheTTL)
	}
	if !cfg.MQTT.Enabled {
		t.Errorf("Expected MQTT enabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected LOG_LEVEL 'debug', got '%s'", cfg.Log.Level)
	}
	if cfg.Events.Stream != "iuran:roster:events" || cfg.Events.StreamMaxLen != 10000 {
		t.Errorf("Unexpected events stream config: %+v", cfg.Events)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_PostgRESTRequiresURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgrest")
	t.Setenv("POSTGREST_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when POSTGREST_URL is missing")
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=h port=1 user=u password=p dbname=d sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	if value := getEnv("TEST_VAR", "default"); value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}
	if value := getEnv("NON_EXISTENT_VAR_IURAN", "default-value"); value != "default-value" {
		t.Errorf("Expected 'default-value', got '%s'", value)
	}
}
