package config

import (
	"fmt"
	"strings"
)

// Config is the full orchestrator configuration. YAML and JSON are both
// accepted on disk; YAML is coerced to JSON so one strict decoder covers
// both formats.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`

	// Platforms keys adapter names (linkedin, medium, twitter, telegram).
	// An adapter missing from the map is registered with defaults; an entry
	// with enabled=false is not registered at all.
	Platforms map[string]PlatformConfig `json:"platforms"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the REST listener.
//
// All timeouts are Go duration strings (e.g. "10s", "1m").
// If JWTSecret is empty, bearer-token auth is disabled (local development).
type HTTPConfig struct {
	Addr         string   `json:"addr"`
	JWTSecret    string   `json:"jwt_secret,omitempty"`
	CORSOrigins  []string `json:"cors_origins,omitempty"`
	ReadTimeout  string   `json:"read_timeout,omitempty"`
	WriteTimeout string   `json:"write_timeout,omitempty"`
	IdleTimeout  string   `json:"idle_timeout,omitempty"`
}

// StorageConfig selects the job-store driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./crosspub.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the due-publication sweep.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// SweepInterval is a Go duration string; default "30s".
	SweepInterval string `json:"sweep_interval,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// DispatchConfig controls job execution.
type DispatchConfig struct {
	// BranchTimeout caps one platform branch; default "30s".
	BranchTimeout string `json:"branch_timeout,omitempty"`
}

// PlatformConfig is per-adapter tuning. Enabled is a pointer so an omitted
// entry (default on) is distinguishable from an explicit false.
type PlatformConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	// RatePerSec <= 0 means no outbound rate limit for this platform.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

func (p PlatformConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Validate checks cross-field constraints and all duration strings.
// It is also the hook installed on the watcher so a bad edit never
// reaches subscribers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); (d == "sqlite" || d == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path: required for sqlite driver")
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"scheduler.sweep_interval": cfg.Scheduler.SweepInterval,
		"dispatch.branch_timeout":  cfg.Dispatch.BranchTimeout,
		"http.read_timeout":        cfg.HTTP.ReadTimeout,
		"http.write_timeout":       cfg.HTTP.WriteTimeout,
		"http.idle_timeout":        cfg.HTTP.IdleTimeout,
	} {
		if _, err := DurationField(path, raw); err != nil {
			return err
		}
	}
	for name, pc := range cfg.Platforms {
		if pc.RatePerSec < 0 {
			return fmt.Errorf("platforms.%s.rate_per_sec: must be >= 0", name)
		}
		if pc.Burst < 0 {
			return fmt.Errorf("platforms.%s.burst: must be >= 0", name)
		}
	}
	return nil
}
