package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./crosspub.db
  busy_timeout: 5s
scheduler:
  enabled: true
  sweep_interval: 15s
dispatch:
  branch_timeout: 20s
http:
  addr: 127.0.0.1:8080
platforms:
  twitter:
    rate_per_sec: 1
    burst: 2
  telegram:
    enabled: false
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./crosspub.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Scheduler.SweepInterval != "15s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Platforms["twitter"].RatePerSec != 1 {
		t.Fatalf("platforms = %+v", cfg.Platforms)
	}
	if cfg.Platforms["twitter"].IsEnabled() == false {
		t.Fatal("omitted enabled must default to on")
	}
	if cfg.Platforms["telegram"].IsEnabled() {
		t.Fatal("explicit enabled:false ignored")
	}
	if m.Get() != cfg {
		t.Fatal("Load must commit")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", "loging:\n  level: info\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("typo'd section accepted")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", "scheduler:\n  sweep_interval: sometimes\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty config ok", cfg: Config{}},
		{name: "memory driver ok", cfg: Config{Storage: StorageConfig{Driver: "memory"}}},
		{
			name:    "sqlite without path",
			cfg:     Config{Storage: StorageConfig{Driver: "sqlite"}},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     Config{Storage: StorageConfig{Driver: "postgres"}},
			wantErr: true,
		},
		{
			name:    "negative rate",
			cfg:     Config{Platforms: map[string]PlatformConfig{"x": {RatePerSec: -1}}},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestDurationField(t *testing.T) {
	t.Parallel()

	if d, err := DurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if _, err := DurationField("x", "-5s"); err == nil {
		t.Fatal("negative accepted")
	}
	if d, err := DurationFieldOr("x", "", 42); err != nil || d != 42 {
		t.Fatalf("default = %v, %v", d, err)
	}
}

func TestJSONConfigAccepted(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", `{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}}}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("cfg = %+v", cfg.Logging)
	}
}
