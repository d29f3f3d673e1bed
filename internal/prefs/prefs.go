// Package prefs holds the user-facing widget settings. The controller and
// speaker read immutable snapshots; writes only happen through Update.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const prefsFileName = "prefs.yaml"

// Preferences is the persisted user settings block.
type Preferences struct {
	// VoicePreference is "default", a concrete platform voice name, or one of
	// the canonical category tags (en-US-female, en-US-male, en-GB-female, en-GB-male).
	VoicePreference     string `yaml:"voice_preference" json:"voice_preference"`
	SpeechOutputEnabled bool   `yaml:"speech_output_enabled" json:"speech_output_enabled"`
	DarkMode            bool   `yaml:"dark_mode" json:"dark_mode"`
	DeveloperMode       bool   `yaml:"developer_mode" json:"developer_mode"`
}

func Defaults() Preferences {
	return Preferences{
		VoicePreference:     "default",
		SpeechOutputEnabled: true,
	}
}

// Store persists preferences as a YAML file under the data directory.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Preferences
}

func NewStore(dataDir string) *Store {
	return &Store{
		path:    filepath.Join(dataDir, prefsFileName),
		current: Defaults(),
	}
}

// Load reads the preferences file. A missing or corrupt file falls back to
// defaults; only the defaults are kept in memory until the next Update.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("prefs unreadable, using defaults: %v", err)
		}
		s.current = Defaults()
		return
	}

	p := Defaults()
	if err := yaml.Unmarshal(raw, &p); err != nil {
		log.Printf("prefs parse failed, using defaults: %v", err)
		s.current = Defaults()
		return
	}
	if p.VoicePreference == "" {
		p.VoicePreference = "default"
	}
	s.current = p
}

// Snapshot returns the current preferences by value.
func (s *Store) Snapshot() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces and persists the preferences.
func (s *Store) Update(p Preferences) error {
	if p.VoicePreference == "" {
		p.VoicePreference = "default"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.current = p
	return nil
}
