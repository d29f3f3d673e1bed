package voice

import (
	"context"
	"errors"
)

// The platform speech capabilities are injected behind these interfaces so
// the controller can run against the browser bridge, the mock provider, or
// test fakes interchangeably.

type CaptureEventType string

const (
	// CaptureSpeechStart fires when the platform detects speech energy.
	CaptureSpeechStart CaptureEventType = "speech_start"
	// CaptureResult carries the concatenation of all recognized segments so
	// far; Final marks the frozen transcript of one complete utterance.
	CaptureResult CaptureEventType = "result"
	CaptureError  CaptureEventType = "error"
)

// Capture error codes as reported by the platform layer.
const (
	CaptureCodePermissionDenied = "permission-denied"
	CaptureCodeNoSpeech         = "no-speech"
	CaptureCodeAborted          = "aborted"
)

type CaptureEvent struct {
	Type      CaptureEventType
	Text      string
	Final     bool
	Code      string
	Detail    string
	Timestamp int64
}

type CaptureSession interface {
	Stop() error
}

type CaptureProvider interface {
	Start(ctx context.Context, sessionID string) (CaptureSession, <-chan CaptureEvent, error)
}

type OutputEventType string

const (
	OutputStarted OutputEventType = "started"
	OutputEnded   OutputEventType = "ended"
	OutputError   OutputEventType = "error"
)

type OutputEvent struct {
	Type   OutputEventType
	Code   string
	Detail string
}

// VoiceInfo describes one synthesis voice available on the platform.
type VoiceInfo struct {
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// SpeakRequest carries one utterance. A nil Voice means the platform default.
type SpeakRequest struct {
	Text  string
	Voice *VoiceInfo
}

type Utterance interface {
	Cancel() error
}

type OutputProvider interface {
	Voices(ctx context.Context) ([]VoiceInfo, error)
	Speak(ctx context.Context, req SpeakRequest) (Utterance, <-chan OutputEvent, error)
}

var (
	ErrCaptureUnsupported = errors.New("speech capture not supported on this platform")
	ErrOutputUnsupported  = errors.New("speech output not supported on this platform")
	ErrAlreadyListening   = errors.New("capture already listening")
)
