package session

import "time"

// Identity is the stable conversation identifier shared with the remote
// dialog service. Created once, reused across restarts until reset.
type Identity struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider issues and persists the conversation identity.
type Provider interface {
	Current() (Identity, error)
	Reset() (Identity, error)
}
