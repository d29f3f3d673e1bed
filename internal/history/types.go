package history

import (
	"context"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// EmotionTag is the sentiment classification the dialog service attaches
// to a bot reply. Opaque to the controller beyond display and voice use.
type EmotionTag struct {
	Detected   string  `json:"detected"`
	Confidence float64 `json:"confidence"`
	Emoji      string  `json:"emoji"`
}

// Message is a single conversation entry. Immutable once created.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Sender    Sender      `json:"sender"`
	Timestamp int64       `json:"timestamp"`
	Emotion   *EmotionTag `json:"emotion,omitempty"`
}

// Store persists conversation messages for one or more sessions.
// Implementations drop rows beyond their retention bound on append.
type Store interface {
	Append(ctx context.Context, msg Message) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}
