package config

import (
	"testing"
	"time"
)

func TestLoadRejectsEmptySchema(t *testing.T) {
	t.Setenv("DB_SCHEMA", "")
	cfg, err := Load()
	if err == nil {
		t.Fatalf("expected empty DB_SCHEMA to be rejected, got %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_SCHEMA", " kart ")
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("DB_MIN_CONNS", "1")
	t.Setenv("DISPLAY_NAME_TTL", "90s")
	t.Setenv("SEED_SAMPLE_DATA", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBSchema != "kart" {
		t.Errorf("expected trimmed schema, got %q", cfg.DBSchema)
	}
	if cfg.DBMaxConns != 8 || cfg.DBMinConns != 1 {
		t.Errorf("unexpected pool sizes %d/%d", cfg.DBMinConns, cfg.DBMaxConns)
	}
	if cfg.DisplayNameTTL != 90*time.Second {
		t.Errorf("unexpected ttl %s", cfg.DisplayNameTTL)
	}
	if !cfg.SeedSampleData {
		t.Error("expected seeding enabled")
	}
	if cfg.ElevatedEnabled() {
		t.Error("elevated deletes must be disabled without ADMIN_KEY_HASH")
	}
}

func TestValidateRejectsBadPoolSizes(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://x", DBSchema: "s", DBMaxConns: 2, DBMinConns: 5, DisplayNameTTL: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for min > max")
	}
}
