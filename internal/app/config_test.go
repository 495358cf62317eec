package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRuntimeConfigDefaults(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	if cfg.StoreBackend != BackendSQLite || cfg.StorePath != "alarmd.db" {
		t.Fatalf("unexpected store defaults: %+v", cfg)
	}
	if cfg.PollInterval != 30*time.Second || cfg.LateFireWindow != 30*time.Minute {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
	if cfg.SchedulerBuffer != 64 || cfg.MissionFailureGrace != time.Minute {
		t.Fatalf("unexpected runtime defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestRuntimeConfigFromEnv(t *testing.T) {
	t.Setenv("ALARMD_STORE_BACKEND", "JSON")
	t.Setenv("ALARMD_STORE_PATH", "state/alarms.json")
	t.Setenv("ALARMD_POLL_INTERVAL", "10s")
	t.Setenv("ALARMD_LATE_FIRE_WINDOW", "1h")
	t.Setenv("ALARMD_SCHEDULER_BUFFER", "128")
	t.Setenv("ALARMD_MISSION_FAILURE_GRACE", "90s")
	t.Setenv("ALARMD_DESKTOP_NOTIFICATIONS", "true")
	t.Setenv("ALARMD_SOUND_DIR", "/usr/share/alarmd")
	t.Setenv("ALARMD_METRICS_ADDR", ":9102")
	t.Setenv("ALARMD_LOG_LEVEL", "debug")
	t.Setenv("ALARMD_WATCH_STORE", "yes")

	cfg := RuntimeConfigFromEnv(DefaultRuntimeConfig())
	want := RuntimeConfig{
		StoreBackend:         BackendJSON,
		StorePath:            "state/alarms.json",
		PollInterval:         10 * time.Second,
		LateFireWindow:       time.Hour,
		SchedulerBuffer:      128,
		MissionFailureGrace:  90 * time.Second,
		DesktopNotifications: true,
		SoundDir:             "/usr/share/alarmd",
		MetricsAddr:          ":9102",
		LogLevel:             "debug",
		WatchStore:           true,
	}
	if cfg != want {
		t.Fatalf("unexpected config:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestRuntimeConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("ALARMD_POLL_INTERVAL", "soon")
	t.Setenv("ALARMD_SCHEDULER_BUFFER", "-3")
	t.Setenv("ALARMD_DESKTOP_NOTIFICATIONS", "maybe")
	t.Setenv("ALARMD_LOG_LEVEL", "loud")

	cfg := RuntimeConfigFromEnv(DefaultRuntimeConfig())
	if cfg != DefaultRuntimeConfig() {
		t.Fatalf("invalid env values must be ignored: %+v", cfg)
	}
}

func TestRuntimeConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarmd.yaml")
	doc := "store_backend: badger\nstore_path: data/badger\npoll_interval: 15s\nwatch_store: true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := RuntimeConfigFromFile(DefaultRuntimeConfig(), path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StoreBackend != BackendBadger || cfg.StorePath != "data/badger" || cfg.PollInterval != 15*time.Second || !cfg.WatchStore {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LateFireWindow != 30*time.Minute {
		t.Fatalf("absent keys must keep defaults: %+v", cfg)
	}
}

func TestRuntimeConfigFromYAMLErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "colour: blue\n",
		"bad duration":    "poll_interval: often\n",
		"unknown backend": "store_backend: postgres\n",
		"zero buffer":     "scheduler_buffer: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := RuntimeConfigFromYAML(DefaultRuntimeConfig(), []byte(doc)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRuntimeConfigFromEmptyYAML(t *testing.T) {
	cfg, err := RuntimeConfigFromYAML(DefaultRuntimeConfig(), nil)
	if err != nil || cfg != DefaultRuntimeConfig() {
		t.Fatalf("empty file must keep defaults: %+v %v", cfg, err)
	}
}

func TestParseLogLevel(t *testing.T) {
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if lvl, err := ParseLogLevel("WARN"); err != nil || lvl.String() != "WARN" {
		t.Fatalf("unexpected level %v %v", lvl, err)
	}
}
