package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	retention int
	records   map[string][]Message
}

func NewInMemoryStore(retention int) *InMemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryStore{
		retention: retention,
		records:   make(map[string][]Message),
	}
}

func (s *InMemoryStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	arr := append(s.records[msg.SessionID], msg)
	if len(arr) > s.retention {
		arr = arr[len(arr)-s.retention:]
	}
	s.records[msg.SessionID] = arr
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
