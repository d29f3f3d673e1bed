package voice

import (
	"context"
	"sync"
)

// SpeakerConfig wires an output provider to the controller callbacks.
// Callbacks are invoked without the speaker lock held.
type SpeakerConfig struct {
	Provider OutputProvider

	OnStarted func()
	OnEnded   func()
	OnError   func(code, detail string)
}

// Speaker plays at most one utterance system-wide. Starting a new one
// cancels whatever is playing; a cancelled utterance never reports ended.
type Speaker struct {
	cfg SpeakerConfig

	mu      sync.Mutex
	gen     int
	current Utterance
}

func NewSpeaker(cfg SpeakerConfig) *Speaker {
	return &Speaker{cfg: cfg}
}

func (s *Speaker) Supported() bool { return s.cfg.Provider != nil }

// Active reports whether an utterance has been started and not yet ended or
// cancelled.
func (s *Speaker) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Voices lists the synthesis voices the platform currently offers.
func (s *Speaker) Voices(ctx context.Context) ([]VoiceInfo, error) {
	if s.cfg.Provider == nil {
		return nil, ErrOutputUnsupported
	}
	return s.cfg.Provider.Voices(ctx)
}

// Speak cancels any playing utterance, resolves the voice preference against
// the currently available voices, and starts the new utterance.
func (s *Speaker) Speak(ctx context.Context, text, preference string) error {
	if s.cfg.Provider == nil {
		return ErrOutputUnsupported
	}

	s.Cancel()

	available, err := s.cfg.Provider.Voices(ctx)
	if err != nil {
		// Selection just falls through to the platform default.
		available = nil
	}
	selected := SelectVoice(preference, available)

	utterance, events, err := s.cfg.Provider.Speak(ctx, SpeakRequest{Text: text, Voice: selected})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.current = utterance
	s.mu.Unlock()

	go s.pump(gen, events)
	return nil
}

// Cancel stops the current utterance outright. No ended event follows.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	utterance := s.current
	s.current = nil
	s.gen++
	s.mu.Unlock()

	if utterance != nil {
		_ = utterance.Cancel()
	}
}

func (s *Speaker) pump(gen int, events <-chan OutputEvent) {
	for evt := range events {
		s.mu.Lock()
		if s.gen != gen {
			// Superseded or cancelled; drain silently.
			s.mu.Unlock()
			return
		}
		switch evt.Type {
		case OutputStarted:
			s.mu.Unlock()
			if s.cfg.OnStarted != nil {
				s.cfg.OnStarted()
			}
		case OutputEnded:
			s.current = nil
			s.mu.Unlock()
			if s.cfg.OnEnded != nil {
				s.cfg.OnEnded()
			}
			return
		case OutputError:
			s.current = nil
			s.mu.Unlock()
			if s.cfg.OnError != nil {
				s.cfg.OnError(evt.Code, evt.Detail)
			}
			return
		default:
			s.mu.Unlock()
		}
	}

	// Stream closed without a terminal event; treat as ended so the
	// controller does not stay in speaking forever.
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()
	if s.cfg.OnEnded != nil {
		s.cfg.OnEnded()
	}
}
