package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.MergeGap != 0 {
		t.Errorf("MergeGap default = %v, want 0 (merging opt-in)", cfg.Engine.MergeGap)
	}
	if cfg.Engine.StopSpeedTolerance != 2 {
		t.Errorf("StopSpeedTolerance = %.1f", cfg.Engine.StopSpeedTolerance)
	}
	if cfg.Severity.MajorExcess != 10 || cfg.Severity.CriticalExcess != 20 {
		t.Errorf("severity thresholds = %.0f/%.0f", cfg.Severity.MajorExcess, cfg.Severity.CriticalExcess)
	}
	if cfg.Stops.MinDuration != 10*time.Second {
		t.Errorf("stops MinDuration = %v", cfg.Stops.MinDuration)
	}
	if cfg.Stops.SignalRadiusM != 150 {
		t.Errorf("stops SignalRadiusM = %.0f", cfg.Stops.SignalRadiusM)
	}
	if cfg.Storage.Database == "" {
		t.Error("database path must have a default")
	}
	if cfg.Watch.ClaimTTL != 24*time.Hour {
		t.Errorf("ClaimTTL = %v", cfg.Watch.ClaimTTL)
	}
}

func TestMerge_NonZeroFieldsOnly(t *testing.T) {
	m := NewManager()

	m.merge(&Config{
		Engine:   EngineConfig{MergeGap: 30 * time.Second},
		Severity: SeverityConfig{CriticalExcess: 25},
		Storage:  StorageConfig{Database: "/tmp/test.db"},
	})

	cfg := m.Get()
	if cfg.Engine.MergeGap != 30*time.Second {
		t.Errorf("MergeGap not merged: %v", cfg.Engine.MergeGap)
	}
	if cfg.Severity.CriticalExcess != 25 {
		t.Errorf("CriticalExcess not merged: %.0f", cfg.Severity.CriticalExcess)
	}
	if cfg.Storage.Database != "/tmp/test.db" {
		t.Errorf("Database not merged: %s", cfg.Storage.Database)
	}

	// Untouched fields keep their defaults.
	if cfg.Severity.MajorExcess != 10 {
		t.Errorf("MajorExcess clobbered: %.0f", cfg.Severity.MajorExcess)
	}
	if cfg.Engine.StopSpeedTolerance != 2 {
		t.Errorf("StopSpeedTolerance clobbered: %.1f", cfg.Engine.StopSpeedTolerance)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("RAILTRACE_MERGE_GAP", "45s")
	t.Setenv("RAILTRACE_DATABASE", "/var/lib/railtrace/archive.db")
	t.Setenv("RAILTRACE_REDIS", "redis:6379")
	t.Setenv("RAILTRACE_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("RAILTRACE_MAX_CONCURRENT", "8")

	m := NewManager()
	m.loadEnv()
	cfg := m.Get()

	if cfg.Engine.MergeGap != 45*time.Second {
		t.Errorf("MergeGap = %v", cfg.Engine.MergeGap)
	}
	if cfg.Storage.Database != "/var/lib/railtrace/archive.db" {
		t.Errorf("Database = %s", cfg.Storage.Database)
	}
	if cfg.Watch.RedisAddress != "redis:6379" {
		t.Errorf("RedisAddress = %s", cfg.Watch.RedisAddress)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Engine.MaxConcurrentRuns != 8 {
		t.Errorf("MaxConcurrentRuns = %d", cfg.Engine.MaxConcurrentRuns)
	}
}

func TestLoadEnv_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("RAILTRACE_MERGE_GAP", "not-a-duration")
	t.Setenv("RAILTRACE_MAX_CONCURRENT", "many")

	m := NewManager()
	m.loadEnv()
	cfg := m.Get()

	if cfg.Engine.MergeGap != 0 {
		t.Errorf("bad duration applied: %v", cfg.Engine.MergeGap)
	}
	if cfg.Engine.MaxConcurrentRuns != 0 {
		t.Errorf("bad int applied: %d", cfg.Engine.MaxConcurrentRuns)
	}
}
