package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const identityFileName = "session.json"

// FileProvider keeps the conversation identity in a small JSON file under
// the data directory, so the same session survives process restarts.
type FileProvider struct {
	mu      sync.Mutex
	path    string
	current *Identity
}

func NewFileProvider(dataDir string) *FileProvider {
	return &FileProvider{path: filepath.Join(dataDir, identityFileName)}
}

func (p *FileProvider) Current() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return *p.current, nil
	}

	id, err := p.load()
	if err == nil {
		p.current = &id
		return id, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		// Unreadable or corrupt file: mint a fresh identity rather than fail.
		log.Printf("session identity unreadable, regenerating: %v", err)
	}
	return p.mintLocked()
}

func (p *FileProvider) Reset() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mintLocked()
}

func (p *FileProvider) mintLocked() (Identity, error) {
	id := Identity{
		SessionID: "session_" + uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := p.save(id); err != nil {
		return Identity{}, err
	}
	p.current = &id
	return id, nil
}

func (p *FileProvider) load() (Identity, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, fmt.Errorf("parse %s: %w", p.path, err)
	}
	if id.SessionID == "" {
		return Identity{}, fmt.Errorf("parse %s: empty session_id", p.path)
	}
	return id, nil
}

func (p *FileProvider) save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.WriteFile(p.path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", p.path, err)
	}
	return nil
}

// MemoryProvider holds the identity in process only. Used in tests and
// mock mode where persistence across restarts does not matter.
type MemoryProvider struct {
	mu      sync.Mutex
	current *Identity
}

func NewMemoryProvider() *MemoryProvider { return &MemoryProvider{} }

func (p *MemoryProvider) Current() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		p.current = &Identity{SessionID: "session_" + uuid.NewString(), CreatedAt: time.Now().UTC()}
	}
	return *p.current, nil
}

func (p *MemoryProvider) Reset() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &Identity{SessionID: "session_" + uuid.NewString(), CreatedAt: time.Now().UTC()}
	return *p.current, nil
}
