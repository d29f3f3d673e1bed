package voice

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultSilenceWatchdog is how long capture waits for any sign of speech
// before hinting that the microphone may be muted.
const DefaultSilenceWatchdog = 8 * time.Second

// EngineConfig wires a capture provider to the controller callbacks. All
// callbacks are invoked without the engine lock held.
type EngineConfig struct {
	Provider        CaptureProvider
	SilenceWatchdog time.Duration

	// OnPartial receives the accumulated transcript while listening.
	OnPartial func(text string)
	// OnUtterance receives the frozen transcript of one complete utterance.
	// Capture is back to idle by the time it fires.
	OnUtterance func(text string)
	// OnHint surfaces informational notices (the silence watchdog). Capture
	// keeps running.
	OnHint func(code, detail string)
	// OnError receives a mapped capture error code. Capture is back to idle.
	OnError func(code, detail string)
	// OnEnded fires when capture ends without a final transcript and without
	// an error (user abort, platform stream closed).
	OnEnded func()
}

// Engine is the speech capture state machine: idle → listening → idle, one
// utterance per listen. It owns the silence watchdog and the error mapping.
type Engine struct {
	cfg EngineConfig

	mu         sync.Mutex
	gen        int
	listening  bool
	speechSeen bool
	transcript string
	session    CaptureSession
	watchdog   *time.Timer
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.SilenceWatchdog <= 0 {
		cfg.SilenceWatchdog = DefaultSilenceWatchdog
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Supported() bool { return e.cfg.Provider != nil }

func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Start begins one capture. It returns ErrCaptureUnsupported or
// ErrAlreadyListening instead of panicking; callers surface those as error
// events.
func (e *Engine) Start(ctx context.Context, sessionID string) error {
	if e.cfg.Provider == nil {
		return ErrCaptureUnsupported
	}

	e.mu.Lock()
	if e.listening {
		e.mu.Unlock()
		return ErrAlreadyListening
	}
	e.gen++
	gen := e.gen
	e.listening = true
	e.speechSeen = false
	e.transcript = ""
	e.mu.Unlock()

	session, events, err := e.cfg.Provider.Start(ctx, sessionID)
	if err != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.listening = false
		}
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	if e.gen != gen {
		// Stopped while the provider was starting up.
		e.mu.Unlock()
		_ = session.Stop()
		return nil
	}
	e.session = session
	e.watchdog = time.AfterFunc(e.cfg.SilenceWatchdog, func() {
		e.watchdogFired(gen)
	})
	e.mu.Unlock()

	go e.pump(gen, events)
	return nil
}

// Stop aborts the current capture. No utterance is produced.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.listening {
		e.mu.Unlock()
		return
	}
	session := e.teardownLocked()
	e.mu.Unlock()

	if session != nil {
		_ = session.Stop()
	}
}

func (e *Engine) pump(gen int, events <-chan CaptureEvent) {
	for evt := range events {
		switch evt.Type {
		case CaptureSpeechStart:
			e.mu.Lock()
			if e.gen != gen {
				e.mu.Unlock()
				return
			}
			e.speechSeen = true
			e.stopWatchdogLocked()
			e.mu.Unlock()

		case CaptureResult:
			e.mu.Lock()
			if e.gen != gen {
				e.mu.Unlock()
				return
			}
			e.stopWatchdogLocked()
			e.transcript = evt.Text
			if !evt.Final {
				text := e.transcript
				e.mu.Unlock()
				if e.cfg.OnPartial != nil {
					e.cfg.OnPartial(text)
				}
				continue
			}
			// Final result: freeze the transcript, drop back to idle.
			text := strings.TrimSpace(e.transcript)
			session := e.teardownLocked()
			e.mu.Unlock()
			if session != nil {
				_ = session.Stop()
			}
			if e.cfg.OnUtterance != nil {
				e.cfg.OnUtterance(text)
			}
			return

		case CaptureError:
			e.mu.Lock()
			if e.gen != gen {
				e.mu.Unlock()
				return
			}
			session := e.teardownLocked()
			e.mu.Unlock()
			if session != nil {
				_ = session.Stop()
			}
			code := mapCaptureCode(evt.Code)
			if code == CaptureCodeAborted {
				if e.cfg.OnEnded != nil {
					e.cfg.OnEnded()
				}
				return
			}
			if e.cfg.OnError != nil {
				e.cfg.OnError(code, evt.Detail)
			}
			return
		}
	}

	// Provider closed the stream without a final result.
	e.mu.Lock()
	if e.gen != gen || !e.listening {
		e.mu.Unlock()
		return
	}
	e.teardownLocked()
	e.mu.Unlock()
	if e.cfg.OnEnded != nil {
		e.cfg.OnEnded()
	}
}

func (e *Engine) watchdogFired(gen int) {
	e.mu.Lock()
	if e.gen != gen || !e.listening || e.speechSeen {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	// Informational only: genuine slow speakers are not interrupted.
	if e.cfg.OnHint != nil {
		e.cfg.OnHint("silence", "No speech detected yet. Are you muted?")
	}
}

// teardownLocked invalidates the current capture and returns the session for
// the caller to stop outside the lock.
func (e *Engine) teardownLocked() CaptureSession {
	e.gen++
	e.listening = false
	e.stopWatchdogLocked()
	session := e.session
	e.session = nil
	return session
}

func (e *Engine) stopWatchdogLocked() {
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
}

func mapCaptureCode(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "not-allowed", "service-not-allowed", "permission-denied":
		return CaptureCodePermissionDenied
	case "no-speech":
		return CaptureCodeNoSpeech
	case "aborted":
		return CaptureCodeAborted
	default:
		code = strings.TrimSpace(code)
		if code == "" {
			return "capture-error"
		}
		return code
	}
}
