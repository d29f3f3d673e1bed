package history

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRetention bounds how many messages a conversation keeps.
const DefaultRetention = 50

// DefaultWelcome opens every fresh conversation.
const DefaultWelcome = "Hi! I'm Clara, your trade assistant. Ask me about products, pricing, MOQs, lead times, or returns."

// Log is the bounded in-process view of one conversation. It loads once at
// startup, appends through to the backing store, and always holds at least
// the welcome message.
type Log struct {
	mu        sync.RWMutex
	store     Store
	sessionID string
	welcome   string
	limit     int
	msgs      []Message
}

func NewLog(store Store, sessionID, welcome string, limit int) *Log {
	if limit <= 0 {
		limit = DefaultRetention
	}
	if welcome == "" {
		welcome = DefaultWelcome
	}
	return &Log{
		store:     store,
		sessionID: sessionID,
		welcome:   welcome,
		limit:     limit,
	}
}

// Load pulls the persisted tail of the conversation. An absent or unreadable
// backend is not fatal; the log starts over from the welcome message.
func (l *Log) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs, err := l.store.Recent(ctx, l.sessionID, l.limit)
	if err != nil {
		log.Printf("history load failed, starting fresh: %v", err)
		l.msgs = []Message{l.welcomeMessage()}
		return
	}
	if len(msgs) == 0 {
		l.msgs = []Message{l.welcomeMessage()}
		return
	}
	l.msgs = msgs
}

// Append stores a new message and returns it with ID and timestamp filled in.
func (l *Log) Append(ctx context.Context, msg Message) (Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg.SessionID = l.sessionID
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	if err := l.store.Append(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}

	l.msgs = append(l.msgs, msg)
	if len(l.msgs) > l.limit {
		l.msgs = l.msgs[len(l.msgs)-l.limit:]
	}
	return msg, nil
}

// Clear resets the conversation to exactly the welcome message.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Clear(ctx, l.sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	l.msgs = []Message{l.welcomeMessage()}
	return nil
}

// Messages returns a copy of the current conversation, most-recent-last.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

func (l *Log) SessionID() string { return l.sessionID }

func (l *Log) welcomeMessage() Message {
	return Message{
		ID:        uuid.NewString(),
		SessionID: l.sessionID,
		Text:      l.welcome,
		Sender:    SenderBot,
		Timestamp: time.Now().UnixMilli(),
	}
}
