package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the Clara widget backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// VoiceProvider selects capture/output: "bridge" relays to the browser
	// over the websocket, "mock" runs canned sessions for local dev.
	VoiceProvider string

	DialogEndpointURL string
	DialogTimeout     time.Duration

	DatabaseURL  string
	DataDir      string
	HistoryLimit int

	ReplyDelayMin   time.Duration
	ReplyDelayMax   time.Duration
	SilenceWatchdog time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "clara"),
		AllowAnyOrigin:    false,
		VoiceProvider:     envOrDefault("VOICE_PROVIDER", "bridge"),
		DialogEndpointURL: stringsTrimSpace("DIALOG_ENDPOINT_URL"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		DataDir:           envOrDefault("APP_DATA_DIR", ".clara"),
		HistoryLimit:      50,
		ShutdownTimeout:   15 * time.Second,
		DialogTimeout:     15 * time.Second,
		ReplyDelayMin:     800 * time.Millisecond,
		ReplyDelayMax:     1500 * time.Millisecond,
		SilenceWatchdog:   8 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogTimeout, err = durationFromEnv("DIALOG_TIMEOUT", cfg.DialogTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyDelayMin, err = durationFromEnv("REPLY_DELAY_MIN", cfg.ReplyDelayMin)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyDelayMax, err = durationFromEnv("REPLY_DELAY_MAX", cfg.ReplyDelayMax)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceWatchdog, err = durationFromEnv("SILENCE_WATCHDOG", cfg.SilenceWatchdog)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	switch cfg.VoiceProvider {
	case "bridge", "mock":
	default:
		return Config{}, fmt.Errorf("VOICE_PROVIDER must be bridge or mock, got %q", cfg.VoiceProvider)
	}
	if cfg.DialogEndpointURL == "" {
		return Config{}, fmt.Errorf("DIALOG_ENDPOINT_URL is required")
	}
	if cfg.DialogTimeout <= 0 {
		return Config{}, fmt.Errorf("DIALOG_TIMEOUT must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.ReplyDelayMin < 0 || cfg.ReplyDelayMax < cfg.ReplyDelayMin {
		return Config{}, fmt.Errorf("REPLY_DELAY_MIN/REPLY_DELAY_MAX must form a non-negative range")
	}
	if cfg.SilenceWatchdog < time.Second {
		return Config{}, fmt.Errorf("SILENCE_WATCHDOG must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
