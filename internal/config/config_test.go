package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DIALOG_ENDPOINT_URL", "http://127.0.0.1:9000/exchange")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.VoiceProvider != "bridge" {
		t.Fatalf("VoiceProvider = %q, want bridge", cfg.VoiceProvider)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("HistoryLimit = %d, want 50", cfg.HistoryLimit)
	}
	if cfg.ReplyDelayMin != 800*time.Millisecond || cfg.ReplyDelayMax != 1500*time.Millisecond {
		t.Fatalf("reply delay = [%v, %v], want [800ms, 1.5s]", cfg.ReplyDelayMin, cfg.ReplyDelayMax)
	}
	if cfg.SilenceWatchdog != 8*time.Second {
		t.Fatalf("SilenceWatchdog = %v, want 8s", cfg.SilenceWatchdog)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("VOICE_PROVIDER", "mock")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("DIALOG_TIMEOUT", "3s")
	t.Setenv("REPLY_DELAY_MIN", "100ms")
	t.Setenv("REPLY_DELAY_MAX", "200ms")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BindAddr != ":9999" || cfg.VoiceProvider != "mock" || cfg.HistoryLimit != 25 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.DialogTimeout != 3*time.Second {
		t.Fatalf("DialogTimeout = %v, want 3s", cfg.DialogTimeout)
	}
	if cfg.ReplyDelayMin != 100*time.Millisecond || cfg.ReplyDelayMax != 200*time.Millisecond {
		t.Fatalf("reply delay = [%v, %v]", cfg.ReplyDelayMin, cfg.ReplyDelayMax)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadMissingDialogEndpoint(t *testing.T) {
	t.Setenv("DIALOG_ENDPOINT_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded without DIALOG_ENDPOINT_URL")
	}
}

func TestLoadInvalidProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("VOICE_PROVIDER", "hologram")
	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with invalid VOICE_PROVIDER")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("DIALOG_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with unparseable DIALOG_TIMEOUT")
	}
}

func TestLoadInvalidDelayRange(t *testing.T) {
	setRequired(t)
	t.Setenv("REPLY_DELAY_MIN", "2s")
	t.Setenv("REPLY_DELAY_MAX", "1s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with max < min reply delay")
	}
}

func TestLoadInvalidHistoryLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("HISTORY_LIMIT", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with zero HISTORY_LIMIT")
	}
}
