// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all RailTrace configuration.
type Config struct {
	Version int `yaml:"version"`

	Engine    EngineConfig    `yaml:"engine"`
	Severity  SeverityConfig  `yaml:"severity"`
	Stops     StopsConfig     `yaml:"stops"`
	Storage   StorageConfig   `yaml:"storage"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Watch     WatchConfig     `yaml:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig controls violation detection and aggregation.
type EngineConfig struct {
	// MergeGap merges same-kind, same-section violation intervals
	// separated by no more than this window. Zero disables merging.
	MergeGap time.Duration `yaml:"merge_gap"`

	// StopSpeedTolerance is the movement tolerance (km/h) under a
	// STOP aspect before a SIGNAL_ASPECT violation opens.
	StopSpeedTolerance float64 `yaml:"stop_speed_tolerance"`

	// MaxConcurrentRuns bounds batch parallelism. 0 = GOMAXPROCS.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// SeverityConfig holds the peak-excess classification thresholds (km/h).
// Operational values come from the reporting authority; these are knobs,
// not constants.
type SeverityConfig struct {
	MajorExcess    float64 `yaml:"major_excess"`
	CriticalExcess float64 `yaml:"critical_excess"`
}

// StopsConfig controls signal-stop detection.
type StopsConfig struct {
	SpeedThreshold float64       `yaml:"speed_threshold"`
	MinDuration    time.Duration `yaml:"min_duration"`
	SignalRadiusM  float64       `yaml:"signal_radius_m"`
}

// StorageConfig for the violation archive.
type StorageConfig struct {
	Database string `yaml:"database"`
}

// ArchiveConfig for S3 report uploads.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// WatchConfig for drop-directory processing.
type WatchConfig struct {
	Dir          string        `yaml:"dir"`
	RedisAddress string        `yaml:"redis_address"`
	RedisPrefix  string        `yaml:"redis_prefix"`
	ClaimTTL     time.Duration `yaml:"claim_ttl"`
}

// TelemetryConfig for optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	rtDir := filepath.Join(homeDir, ".railtrace")

	return &Config{
		Version: 1,
		Engine: EngineConfig{
			MergeGap:           0, // merging is opt-in
			StopSpeedTolerance: 2,
			MaxConcurrentRuns:  0,
		},
		Severity: SeverityConfig{
			MajorExcess:    10,
			CriticalExcess: 20,
		},
		Stops: StopsConfig{
			SpeedThreshold: 0,
			MinDuration:    10 * time.Second,
			SignalRadiusM:  150,
		},
		Storage: StorageConfig{
			Database: filepath.Join(rtDir, "railtrace.db"),
		},
		Archive: ArchiveConfig{
			Prefix: "reports/",
		},
		Watch: WatchConfig{
			RedisPrefix: "railtrace:runs:",
			ClaimTTL:    24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/railtrace/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".railtrace", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".railtrace.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Engine.MergeGap != 0 {
		m.config.Engine.MergeGap = src.Engine.MergeGap
	}
	if src.Engine.StopSpeedTolerance != 0 {
		m.config.Engine.StopSpeedTolerance = src.Engine.StopSpeedTolerance
	}
	if src.Engine.MaxConcurrentRuns != 0 {
		m.config.Engine.MaxConcurrentRuns = src.Engine.MaxConcurrentRuns
	}

	if src.Severity.MajorExcess != 0 {
		m.config.Severity.MajorExcess = src.Severity.MajorExcess
	}
	if src.Severity.CriticalExcess != 0 {
		m.config.Severity.CriticalExcess = src.Severity.CriticalExcess
	}

	if src.Stops.SpeedThreshold != 0 {
		m.config.Stops.SpeedThreshold = src.Stops.SpeedThreshold
	}
	if src.Stops.MinDuration != 0 {
		m.config.Stops.MinDuration = src.Stops.MinDuration
	}
	if src.Stops.SignalRadiusM != 0 {
		m.config.Stops.SignalRadiusM = src.Stops.SignalRadiusM
	}

	if src.Storage.Database != "" {
		m.config.Storage.Database = src.Storage.Database
	}

	if src.Archive.Enabled {
		m.config.Archive.Enabled = true
	}
	if src.Archive.Bucket != "" {
		m.config.Archive.Bucket = src.Archive.Bucket
	}
	if src.Archive.Prefix != "" {
		m.config.Archive.Prefix = src.Archive.Prefix
	}
	if src.Archive.Region != "" {
		m.config.Archive.Region = src.Archive.Region
	}
	if src.Archive.Endpoint != "" {
		m.config.Archive.Endpoint = src.Archive.Endpoint
	}

	if src.Watch.Dir != "" {
		m.config.Watch.Dir = src.Watch.Dir
	}
	if src.Watch.RedisAddress != "" {
		m.config.Watch.RedisAddress = src.Watch.RedisAddress
	}
	if src.Watch.RedisPrefix != "" {
		m.config.Watch.RedisPrefix = src.Watch.RedisPrefix
	}
	if src.Watch.ClaimTTL != 0 {
		m.config.Watch.ClaimTTL = src.Watch.ClaimTTL
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("RAILTRACE_MERGE_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Engine.MergeGap = d
		}
	}
	if v := os.Getenv("RAILTRACE_DATABASE"); v != "" {
		m.config.Storage.Database = v
	}
	if v := os.Getenv("RAILTRACE_REDIS"); v != "" {
		m.config.Watch.RedisAddress = v
	}
	if v := os.Getenv("RAILTRACE_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
	if v := os.Getenv("RAILTRACE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.Engine.MaxConcurrentRuns = n
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
