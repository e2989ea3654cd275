package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoint != DefaultEndpoint {
		t.Errorf("Endpoint = %q, want %q", cfg.Endpoint, DefaultEndpoint)
	}
	if cfg.SpoolCapacity != 10 {
		t.Errorf("SpoolCapacity = %d, want 10", cfg.SpoolCapacity)
	}
	if cfg.WaitTimeout != 3*time.Second {
		t.Errorf("WaitTimeout = %v, want 3s", cfg.WaitTimeout)
	}
	if cfg.SpoolDir == "" {
		t.Error("SpoolDir should default to a temp directory")
	}
	if !reflect.DeepEqual(cfg.IgnoreFormFields, []string{"password"}) {
		t.Errorf("IgnoreFormFields = %v, want [password]", cfg.IgnoreFormFields)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("FAULTLINE_API_KEY", "key-123")
	t.Setenv("FAULTLINE_ENDPOINT", "https://collector.internal/entries")
	t.Setenv("FAULTLINE_SPOOL_CAPACITY", "25")
	t.Setenv("FAULTLINE_IGNORE_HEADERS", "Authorization,X-Session")
	t.Setenv("FAULTLINE_REPLAY_INTERVAL", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "key-123" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Endpoint != "https://collector.internal/entries" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.SpoolCapacity != 25 {
		t.Errorf("SpoolCapacity = %d, want 25", cfg.SpoolCapacity)
	}
	if cfg.ReplayInterval != 5*time.Second {
		t.Errorf("ReplayInterval = %v, want 5s", cfg.ReplayInterval)
	}
	want := []string{"Authorization", "X-Session"}
	if !reflect.DeepEqual(cfg.IgnoreHeaders, want) {
		t.Errorf("IgnoreHeaders = %v, want %v", cfg.IgnoreHeaders, want)
	}
}

func TestLoadCollector_RequiresBackends(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("POSTGRES_URL", "")
	if _, err := LoadCollector(); err == nil {
		t.Fatal("expected an error when REDIS_ADDR and POSTGRES_URL are missing")
	}

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("POSTGRES_URL", "postgres://localhost/faults")
	cfg, err := LoadCollector()
	if err != nil {
		t.Fatalf("LoadCollector() error = %v", err)
	}
	if cfg.CollectorServerAddr != ":8080" {
		t.Errorf("CollectorServerAddr = %q, want :8080", cfg.CollectorServerAddr)
	}
	if cfg.MaxReportSize != 1<<20 {
		t.Errorf("MaxReportSize = %d, want %d", cfg.MaxReportSize, 1<<20)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("FAULTLINE_SPOOL_CAPACITY", "99")
	cfg := Default()
	if cfg.SpoolCapacity != 10 {
		t.Errorf("Default() must ignore the environment, SpoolCapacity = %d", cfg.SpoolCapacity)
	}
	if cfg.RateBurst != 40 {
		t.Errorf("RateBurst = %d, want 40", cfg.RateBurst)
	}
}
