package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
	BackendBadger = "badger"
)

var ErrInvalidConfig = errors.New("app: invalid config")

type RuntimeConfig struct {
	StoreBackend         string
	StorePath            string
	PollInterval         time.Duration
	LateFireWindow       time.Duration
	SchedulerBuffer      int
	MissionFailureGrace  time.Duration
	DesktopNotifications bool
	SoundDir             string
	MetricsAddr          string
	LogLevel             string
	WatchStore           bool
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		StoreBackend:         BackendSQLite,
		StorePath:            "alarmd.db",
		PollInterval:         30 * time.Second,
		LateFireWindow:       30 * time.Minute,
		SchedulerBuffer:      64,
		MissionFailureGrace:  60 * time.Second,
		DesktopNotifications: false,
		SoundDir:             "sounds",
		MetricsAddr:          "",
		LogLevel:             "info",
		WatchStore:           false,
	}
}

// fileConfig mirrors RuntimeConfig for YAML. Pointer fields distinguish an
// absent key from a zero value.
type fileConfig struct {
	StoreBackend         *string `yaml:"store_backend"`
	StorePath            *string `yaml:"store_path"`
	PollInterval         *string `yaml:"poll_interval"`
	LateFireWindow       *string `yaml:"late_fire_window"`
	SchedulerBuffer      *int    `yaml:"scheduler_buffer"`
	MissionFailureGrace  *string `yaml:"mission_failure_grace"`
	DesktopNotifications *bool   `yaml:"desktop_notifications"`
	SoundDir             *string `yaml:"sound_dir"`
	MetricsAddr          *string `yaml:"metrics_addr"`
	LogLevel             *string `yaml:"log_level"`
	WatchStore           *bool   `yaml:"watch_store"`
}

// RuntimeConfigFromFile overlays the YAML file at path on base. Unknown keys
// and malformed values are errors.
func RuntimeConfigFromFile(base RuntimeConfig, path string) (RuntimeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := RuntimeConfigFromYAML(base, raw)
	if err != nil {
		return base, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func RuntimeConfigFromYAML(base RuntimeConfig, raw []byte) (RuntimeConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := base
	setString(&cfg.StoreBackend, fc.StoreBackend)
	setString(&cfg.StorePath, fc.StorePath)
	setString(&cfg.SoundDir, fc.SoundDir)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	if fc.SchedulerBuffer != nil {
		cfg.SchedulerBuffer = *fc.SchedulerBuffer
	}
	if fc.DesktopNotifications != nil {
		cfg.DesktopNotifications = *fc.DesktopNotifications
	}
	if fc.WatchStore != nil {
		cfg.WatchStore = *fc.WatchStore
	}
	for _, d := range []struct {
		name string
		raw  *string
		dst  *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &cfg.PollInterval},
		{"late_fire_window", fc.LateFireWindow, &cfg.LateFireWindow},
		{"mission_failure_grace", fc.MissionFailureGrace, &cfg.MissionFailureGrace},
	} {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(*d.raw))
		if err != nil {
			return base, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.dst = v
	}
	return cfg, cfg.Validate()
}

// RuntimeConfigFromEnv overlays ALARMD_* variables on base. Values that do
// not parse are ignored.
func RuntimeConfigFromEnv(base RuntimeConfig) RuntimeConfig {
	cfg := base
	if v, ok := getEnvString("ALARMD_STORE_BACKEND"); ok {
		cfg.StoreBackend = strings.ToLower(v)
	}
	if v, ok := getEnvString("ALARMD_STORE_PATH"); ok {
		cfg.StorePath = v
	}
	if v, ok := getEnvDuration("ALARMD_POLL_INTERVAL"); ok && v > 0 {
		cfg.PollInterval = v
	}
	if v, ok := getEnvDuration("ALARMD_LATE_FIRE_WINDOW"); ok && v > 0 {
		cfg.LateFireWindow = v
	}
	if v, ok := getEnvInt("ALARMD_SCHEDULER_BUFFER"); ok && v > 0 {
		cfg.SchedulerBuffer = v
	}
	if v, ok := getEnvDuration("ALARMD_MISSION_FAILURE_GRACE"); ok && v > 0 {
		cfg.MissionFailureGrace = v
	}
	if v, ok := getEnvBool("ALARMD_DESKTOP_NOTIFICATIONS"); ok {
		cfg.DesktopNotifications = v
	}
	if v, ok := getEnvString("ALARMD_SOUND_DIR"); ok {
		cfg.SoundDir = v
	}
	if v, ok := os.LookupEnv("ALARMD_METRICS_ADDR"); ok {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	if v, ok := getEnvString("ALARMD_LOG_LEVEL"); ok {
		if _, err := ParseLogLevel(v); err == nil {
			cfg.LogLevel = v
		}
	}
	if v, ok := getEnvBool("ALARMD_WATCH_STORE"); ok {
		cfg.WatchStore = v
	}
	return cfg
}

func (c RuntimeConfig) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendJSON, BackendBadger:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if strings.TrimSpace(c.StorePath) == "" {
		return fmt.Errorf("%w: store path is required", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 || c.LateFireWindow <= 0 || c.MissionFailureGrace <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}
	if c.SchedulerBuffer <= 0 {
		return fmt.Errorf("%w: scheduler buffer must be positive", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, raw)
	}
}

// NewLogger builds the process logger: text to w at the configured level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvDuration(name string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
