package voice

import (
	"context"
	"errors"
	"sync"
)

// The production capture/output providers live in the browser: the page runs
// platform speech recognition and synthesis and reports lifecycle events over
// the websocket. BridgeProvider turns those reports into the provider event
// streams the controller consumes, and relays start/stop/speak commands back
// out to the page.

// CommandKind names an instruction relayed to the attached page.
type CommandKind string

const (
	CommandCaptureStart CommandKind = "capture_start"
	CommandCaptureStop  CommandKind = "capture_stop"
	CommandSpeak        CommandKind = "speak"
	CommandSpeakCancel  CommandKind = "speak_cancel"
)

type Command struct {
	Kind  CommandKind
	Text  string
	Voice *VoiceInfo
}

var ErrNoClientAttached = errors.New("no widget client attached")

type BridgeProvider struct {
	mu        sync.Mutex
	sink      func(Command)
	attachGen uint64
	voices    []VoiceInfo
	capture   *bridgeCaptureSession
	output    *bridgeUtterance
}

func NewBridgeProvider() *BridgeProvider { return &BridgeProvider{} }

// Attach binds the bridge to one connected page and returns a token for the
// matching Detach. A widget serves one browser profile; a newly attached page
// displaces the previous sink.
func (b *BridgeProvider) Attach(sink func(Command)) uint64 {
	b.mu.Lock()
	b.attachGen++
	token := b.attachGen
	b.sink = sink
	b.mu.Unlock()
	return token
}

// Detach drops the page attached under token. Any active capture or utterance
// is torn down; the engine and speaker observe their streams closing. A stale
// token is a no-op: on a page reload the old connection's teardown often runs
// after the new connection has already attached, and must not drop it.
func (b *BridgeProvider) Detach(token uint64) {
	b.mu.Lock()
	if token != b.attachGen {
		b.mu.Unlock()
		return
	}
	b.sink = nil
	capture := b.capture
	output := b.output
	b.capture = nil
	b.output = nil
	b.mu.Unlock()

	if capture != nil {
		capture.closeEvents()
	}
	if output != nil {
		output.closeEvents()
	}
}

// SetVoices records the synthesis voices the page reported.
func (b *BridgeProvider) SetVoices(voices []VoiceInfo) {
	b.mu.Lock()
	b.voices = append(b.voices[:0], voices...)
	b.mu.Unlock()
}

func (b *BridgeProvider) Voices(_ context.Context) ([]VoiceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]VoiceInfo, len(b.voices))
	copy(out, b.voices)
	return out, nil
}

func (b *BridgeProvider) Start(_ context.Context, _ string) (CaptureSession, <-chan CaptureEvent, error) {
	b.mu.Lock()
	if b.sink == nil {
		b.mu.Unlock()
		return nil, nil, ErrNoClientAttached
	}
	if prev := b.capture; prev != nil {
		prev.closeEvents()
	}
	s := &bridgeCaptureSession{bridge: b, events: make(chan CaptureEvent, 32)}
	b.capture = s
	sink := b.sink
	b.mu.Unlock()

	sink(Command{Kind: CommandCaptureStart})
	return s, s.events, nil
}

// CaptureEvent feeds one recognition report from the page into the active
// capture stream. Dropped when no capture is running.
func (b *BridgeProvider) CaptureEvent(evt CaptureEvent) {
	b.mu.Lock()
	s := b.capture
	if s != nil && (evt.Final || evt.Type == CaptureError) {
		b.capture = nil
	}
	b.mu.Unlock()

	if s == nil {
		return
	}
	s.send(evt)
	if evt.Final || evt.Type == CaptureError {
		s.closeEvents()
	}
}

func (b *BridgeProvider) Speak(_ context.Context, req SpeakRequest) (Utterance, <-chan OutputEvent, error) {
	b.mu.Lock()
	if b.sink == nil {
		b.mu.Unlock()
		return nil, nil, ErrNoClientAttached
	}
	if prev := b.output; prev != nil {
		prev.closeEvents()
	}
	u := &bridgeUtterance{bridge: b, events: make(chan OutputEvent, 8)}
	b.output = u
	sink := b.sink
	b.mu.Unlock()

	sink(Command{Kind: CommandSpeak, Text: req.Text, Voice: req.Voice})
	return u, u.events, nil
}

// OutputEvent feeds one synthesis report from the page into the active
// utterance stream.
func (b *BridgeProvider) OutputEvent(evt OutputEvent) {
	terminal := evt.Type == OutputEnded || evt.Type == OutputError

	b.mu.Lock()
	u := b.output
	if u != nil && terminal {
		b.output = nil
	}
	b.mu.Unlock()

	if u == nil {
		return
	}
	u.send(evt)
	if terminal {
		u.closeEvents()
	}
}

type bridgeCaptureSession struct {
	bridge *BridgeProvider
	mu     sync.Mutex
	closed bool
	events chan CaptureEvent
}

func (s *bridgeCaptureSession) send(evt CaptureEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- evt:
	default:
		// Slow consumer; recognition updates are safe to drop.
	}
}

func (s *bridgeCaptureSession) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *bridgeCaptureSession) Stop() error {
	b := s.bridge
	b.mu.Lock()
	if b.capture == s {
		b.capture = nil
	}
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		sink(Command{Kind: CommandCaptureStop})
	}
	s.closeEvents()
	return nil
}

type bridgeUtterance struct {
	bridge *BridgeProvider
	mu     sync.Mutex
	closed bool
	events chan OutputEvent
}

func (u *bridgeUtterance) send(evt OutputEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	select {
	case u.events <- evt:
	default:
	}
}

func (u *bridgeUtterance) closeEvents() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.closed = true
	close(u.events)
}

func (u *bridgeUtterance) Cancel() error {
	b := u.bridge
	b.mu.Lock()
	if b.output == u {
		b.output = nil
	}
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		sink(Command{Kind: CommandSpeakCancel})
	}
	u.closeEvents()
	return nil
}
