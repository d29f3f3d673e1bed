package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type commandRecorder struct {
	mu   sync.Mutex
	cmds []Command
}

func (r *commandRecorder) sink(cmd Command) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
}

func (r *commandRecorder) kinds() []CommandKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandKind, len(r.cmds))
	for i, c := range r.cmds {
		out[i] = c.Kind
	}
	return out
}

func TestBridgeStartRequiresClient(t *testing.T) {
	b := NewBridgeProvider()
	if _, _, err := b.Start(context.Background(), "s1"); !errors.Is(err, ErrNoClientAttached) {
		t.Fatalf("Start error = %v, want ErrNoClientAttached", err)
	}
	if _, _, err := b.Speak(context.Background(), SpeakRequest{Text: "hi"}); !errors.Is(err, ErrNoClientAttached) {
		t.Fatalf("Speak error = %v, want ErrNoClientAttached", err)
	}
}

func TestBridgeCaptureRelay(t *testing.T) {
	b := NewBridgeProvider()
	rec := &commandRecorder{}
	b.Attach(rec.sink)

	session, events, err := b.Start(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != CommandCaptureStart {
		t.Fatalf("commands = %v, want [capture_start]", kinds)
	}

	b.CaptureEvent(CaptureEvent{Type: CaptureResult, Text: "partial", Final: false})
	b.CaptureEvent(CaptureEvent{Type: CaptureResult, Text: "partial done", Final: true})

	var got []CaptureEvent
	for evt := range events {
		got = append(got, evt)
	}
	if len(got) != 2 {
		t.Fatalf("relayed events = %d, want 2", len(got))
	}
	if !got[1].Final || got[1].Text != "partial done" {
		t.Fatalf("final event = %+v", got[1])
	}

	// The stream closed with the final result; Stop is a no-op then.
	_ = session.Stop()
}

func TestBridgeCaptureStopSendsCommand(t *testing.T) {
	b := NewBridgeProvider()
	rec := &commandRecorder{}
	b.Attach(rec.sink)

	session, events, err := b.Start(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	if kinds := rec.kinds(); len(kinds) != 2 || kinds[1] != CommandCaptureStop {
		t.Fatalf("commands = %v, want capture_stop after start", kinds)
	}
	if _, open := <-events; open {
		t.Fatalf("events still open after Stop")
	}

	// Late reports after the stop are dropped, not delivered to a dead stream.
	b.CaptureEvent(CaptureEvent{Type: CaptureResult, Text: "late", Final: true})
}

func TestBridgeSpeakRelay(t *testing.T) {
	b := NewBridgeProvider()
	rec := &commandRecorder{}
	b.Attach(rec.sink)
	b.SetVoices([]VoiceInfo{{Name: "Samantha", Lang: "en-US"}})

	voices, err := b.Voices(context.Background())
	if err != nil || len(voices) != 1 {
		t.Fatalf("Voices = %v, %v", voices, err)
	}

	_, events, err := b.Speak(context.Background(), SpeakRequest{Text: "hello", Voice: &voices[0]})
	if err != nil {
		t.Fatalf("Speak error: %v", err)
	}
	rec.mu.Lock()
	cmd := rec.cmds[0]
	rec.mu.Unlock()
	if cmd.Kind != CommandSpeak || cmd.Text != "hello" || cmd.Voice == nil || cmd.Voice.Name != "Samantha" {
		t.Fatalf("speak command = %+v", cmd)
	}

	b.OutputEvent(OutputEvent{Type: OutputStarted})
	b.OutputEvent(OutputEvent{Type: OutputEnded})

	var got []OutputEvent
	for evt := range events {
		got = append(got, evt)
	}
	if len(got) != 2 || got[0].Type != OutputStarted || got[1].Type != OutputEnded {
		t.Fatalf("relayed output events = %+v", got)
	}
}

func TestBridgeCancelSendsCommand(t *testing.T) {
	b := NewBridgeProvider()
	rec := &commandRecorder{}
	b.Attach(rec.sink)

	utterance, events, err := b.Speak(context.Background(), SpeakRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Speak error: %v", err)
	}
	if err := utterance.Cancel(); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	if kinds := rec.kinds(); len(kinds) != 2 || kinds[1] != CommandSpeakCancel {
		t.Fatalf("commands = %v, want speak_cancel after speak", kinds)
	}
	if _, open := <-events; open {
		t.Fatalf("events still open after Cancel")
	}
}

func TestBridgeDetachClosesActiveStreams(t *testing.T) {
	b := NewBridgeProvider()
	token := b.Attach(func(Command) {})

	_, captureEvents, err := b.Start(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	_, outputEvents, err := b.Speak(context.Background(), SpeakRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Speak error: %v", err)
	}

	b.Detach(token)

	if _, open := <-captureEvents; open {
		t.Fatalf("capture events still open after Detach")
	}
	if _, open := <-outputEvents; open {
		t.Fatalf("output events still open after Detach")
	}
	if _, _, err := b.Start(context.Background(), "s1"); !errors.Is(err, ErrNoClientAttached) {
		t.Fatalf("Start after Detach error = %v, want ErrNoClientAttached", err)
	}
}

func TestBridgeStaleDetachKeepsNewClient(t *testing.T) {
	b := NewBridgeProvider()
	old := b.Attach(func(Command) {})

	// A page reload attaches the new connection before the old one tears down.
	rec := &commandRecorder{}
	b.Attach(rec.sink)
	b.Detach(old)

	if _, _, err := b.Start(context.Background(), "s1"); err != nil {
		t.Fatalf("Start after stale Detach error = %v, want nil", err)
	}
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != CommandCaptureStart {
		t.Fatalf("commands = %v, want [capture_start]", kinds)
	}
}
