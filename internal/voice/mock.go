package voice

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a local development and test stand-in for the browser
// speech bridge. Capture emits a canned utterance; output plays silence on a
// short timer.
type MockProvider struct {
	// Transcript is the utterance every capture resolves to.
	Transcript string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Transcript: "simulated voice input"}
}

func (p *MockProvider) Start(_ context.Context, _ string) (CaptureSession, <-chan CaptureEvent, error) {
	events := make(chan CaptureEvent, 16)
	s := &mockCaptureSession{events: events, stopped: make(chan struct{})}
	go s.run(p.Transcript)
	return s, events, nil
}

type mockCaptureSession struct {
	once    sync.Once
	events  chan CaptureEvent
	stopped chan struct{}
}

func (s *mockCaptureSession) run(transcript string) {
	defer close(s.events)

	steps := []struct {
		after time.Duration
		evt   CaptureEvent
	}{
		{150 * time.Millisecond, CaptureEvent{Type: CaptureSpeechStart}},
		{300 * time.Millisecond, CaptureEvent{Type: CaptureResult, Text: transcript[:len(transcript)/2]}},
		{600 * time.Millisecond, CaptureEvent{Type: CaptureResult, Text: transcript, Final: true}},
	}
	start := time.Now()
	for _, step := range steps {
		wait := step.after - time.Since(start)
		if wait > 0 {
			select {
			case <-s.stopped:
				return
			case <-time.After(wait):
			}
		}
		evt := step.evt
		evt.Timestamp = time.Now().UnixMilli()
		select {
		case <-s.stopped:
			return
		case s.events <- evt:
		}
	}
}

func (s *mockCaptureSession) Stop() error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func (p *MockProvider) Voices(_ context.Context) ([]VoiceInfo, error) {
	return []VoiceInfo{
		{Name: "Samantha", Lang: "en-US"},
		{Name: "Alex", Lang: "en-US"},
		{Name: "Daniel", Lang: "en-GB"},
		{Name: "Google US English", Lang: "en-US"},
		{Name: "Google UK English Female", Lang: "en-GB"},
	}, nil
}

func (p *MockProvider) Speak(_ context.Context, req SpeakRequest) (Utterance, <-chan OutputEvent, error) {
	events := make(chan OutputEvent, 8)
	u := &mockUtterance{events: events, cancelled: make(chan struct{})}
	go u.run(req)
	return u, events, nil
}

type mockUtterance struct {
	once      sync.Once
	events    chan OutputEvent
	cancelled chan struct{}
}

func (u *mockUtterance) run(req SpeakRequest) {
	defer close(u.events)

	select {
	case <-u.cancelled:
		return
	case u.events <- OutputEvent{Type: OutputStarted}:
	}

	// Rough speaking time: a beat per word.
	duration := 200*time.Millisecond + time.Duration(len(req.Text))*4*time.Millisecond
	select {
	case <-u.cancelled:
		return
	case <-time.After(duration):
	}

	select {
	case <-u.cancelled:
	case u.events <- OutputEvent{Type: OutputEnded}:
	}
}

func (u *mockUtterance) Cancel() error {
	u.once.Do(func() { close(u.cancelled) })
	return nil
}
