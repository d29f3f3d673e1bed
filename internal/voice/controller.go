package voice

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mateonavarro/clara/internal/dialog"
	"github.com/mateonavarro/clara/internal/history"
	"github.com/mateonavarro/clara/internal/observability"
	"github.com/mateonavarro/clara/internal/permission"
	"github.com/mateonavarro/clara/internal/prefs"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseListening     Phase = "listening"
	PhaseAwaitingReply Phase = "awaiting-reply"
	PhaseSpeaking      Phase = "speaking"
)

// DefaultApology replaces the bot reply when the dialog service is
// unreachable. No retry; the user resends.
const DefaultApology = "Sorry, I'm having trouble connecting right now. Please try again in a moment."

const (
	DefaultReplyDelayMin = 800 * time.Millisecond
	DefaultReplyDelayMax = 1500 * time.Millisecond
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrExchangeInFlight = errors.New("an exchange is already in flight")
	ErrPermissionDenied = errors.New("microphone access is denied")
)

// InteractionState is the single mutable record the controller owns.
// IsListening and IsSpeaking are never both true.
type InteractionState struct {
	Phase             Phase               `json:"phase"`
	IsListening       bool                `json:"is_listening"`
	IsSpeaking        bool                `json:"is_speaking"`
	IsLoading         bool                `json:"is_loading"`
	MicPermission     permission.State    `json:"mic_permission"`
	LastError         string              `json:"last_error,omitempty"`
	PendingTranscript string              `json:"pending_transcript,omitempty"`
	LastEmotion       *history.EmotionTag `json:"last_emotion,omitempty"`
}

// Exchanger is the remote dialog service boundary.
type Exchanger interface {
	Send(ctx context.Context, sessionID, text string) (dialog.Reply, error)
}

type ControllerConfig struct {
	Capture  CaptureProvider // nil = capture unsupported
	Output   OutputProvider  // nil = output unsupported
	Exchange Exchanger
	History  *history.Log
	// Permissions may be nil; the mic state then stays at prompt.
	Permissions *permission.Monitor
	// Prefs returns the current user preferences snapshot. Explicit
	// configuration instead of ambient globals keeps the controller testable.
	Prefs func() prefs.Preferences
	// Navigate receives the action token of a reply, after the message is
	// visible in history.
	Navigate func(action string)
	Metrics  *observability.Metrics

	SessionID       string
	Apology         string
	ReplyDelayMin   time.Duration
	ReplyDelayMax   time.Duration
	SilenceWatchdog time.Duration
}

// Controller owns the conversation state machine. Every asynchronous source
// (capture events, output events, permission changes, exchange completions,
// API calls) is folded under one mutex; only the network round trip and the
// reply delay run outside it.
type Controller struct {
	cfg     ControllerConfig
	engine  *Engine
	speaker *Speaker

	sessionID string
	apology   string

	mu       sync.Mutex
	state    InteractionState
	inFlight bool
	clearGen int

	runCtx    context.Context
	runCancel context.CancelFunc
	permStop  func()

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int

	delay func() time.Duration
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Apology == "" {
		cfg.Apology = DefaultApology
	}
	if cfg.ReplyDelayMin <= 0 {
		cfg.ReplyDelayMin = DefaultReplyDelayMin
	}
	if cfg.ReplyDelayMax < cfg.ReplyDelayMin {
		cfg.ReplyDelayMax = cfg.ReplyDelayMin
	}
	if cfg.Prefs == nil {
		cfg.Prefs = func() prefs.Preferences { return prefs.Defaults() }
	}

	c := &Controller{
		cfg:       cfg,
		sessionID: cfg.SessionID,
		apology:   cfg.Apology,
		state: InteractionState{
			Phase:         PhaseIdle,
			MicPermission: permission.Prompt,
		},
		subs: make(map[int]chan Event),
	}
	c.delay = func() time.Duration {
		span := int64(cfg.ReplyDelayMax - cfg.ReplyDelayMin)
		if span <= 0 {
			return cfg.ReplyDelayMin
		}
		return cfg.ReplyDelayMin + time.Duration(rand.Int63n(span+1))
	}
	c.sleep = func(ctx context.Context, d time.Duration) bool {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		}
	}

	c.engine = NewEngine(EngineConfig{
		Provider:        cfg.Capture,
		SilenceWatchdog: cfg.SilenceWatchdog,
		OnPartial:       c.handlePartial,
		OnUtterance:     c.handleUtterance,
		OnHint:          c.handleHint,
		OnError:         c.handleCaptureError,
		OnEnded:         c.handleCaptureEnded,
	})
	c.speaker = NewSpeaker(SpeakerConfig{
		Provider:  cfg.Output,
		OnStarted: c.handleSpeakStarted,
		OnEnded:   c.handleSpeakEnded,
		OnError:   c.handleSpeakError,
	})
	return c
}

// Start loads the conversation and begins following permission changes.
func (c *Controller) Start(ctx context.Context) {
	c.runCtx, c.runCancel = context.WithCancel(ctx)

	c.cfg.History.Load(c.runCtx)

	if c.cfg.Permissions != nil {
		c.cfg.Permissions.Start(c.runCtx)
		c.mu.Lock()
		c.state.MicPermission = c.cfg.Permissions.State()
		c.mu.Unlock()

		ch, cancel := c.cfg.Permissions.Subscribe()
		c.permStop = cancel
		go c.followPermissions(ch)
	}

	c.publishState()
}

// Close stops capture and output and releases subscriptions.
func (c *Controller) Close() {
	if c.permStop != nil {
		c.permStop()
	}
	c.engine.Stop()
	c.speaker.Cancel()
	if c.runCancel != nil {
		c.runCancel()
	}
}

func (c *Controller) CaptureSupported() bool { return c.engine.Supported() }

func (c *Controller) OutputSupported() bool { return c.speaker.Supported() }

func (c *Controller) SessionID() string { return c.sessionID }

// State returns a copy of the interaction state.
func (c *Controller) State() InteractionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns the current conversation, most-recent-last.
func (c *Controller) Messages() []history.Message {
	return c.cfg.History.Messages()
}

// Voices lists the synthesis voices currently available.
func (c *Controller) Voices(ctx context.Context) ([]VoiceInfo, error) {
	return c.speaker.Voices(ctx)
}

// StartListening begins speech capture. Listening always preempts speaking:
// any playing utterance is cancelled before the microphone opens.
func (c *Controller) StartListening() error {
	c.mu.Lock()
	if !c.engine.Supported() {
		c.state.LastError = "voice capture is not supported here"
		c.mu.Unlock()
		c.publishState()
		return ErrCaptureUnsupported
	}
	if c.state.MicPermission == permission.Denied {
		c.state.LastError = "microphone access is denied"
		c.mu.Unlock()
		c.publishState()
		return ErrPermissionDenied
	}
	if c.state.IsListening {
		c.mu.Unlock()
		return nil
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrExchangeInFlight
	}

	c.speaker.Cancel()
	c.countCancelledIfSpeaking()
	c.state.IsSpeaking = false
	c.state.IsListening = true
	c.state.Phase = PhaseListening
	c.state.LastError = ""
	c.state.PendingTranscript = ""
	c.mu.Unlock()
	c.publishState()
	c.countCapture("start")

	if err := c.engine.Start(c.runCtx, c.sessionID); err != nil {
		c.mu.Lock()
		c.state.IsListening = false
		if !c.state.IsSpeaking && !c.state.IsLoading {
			c.state.Phase = PhaseIdle
		}
		if errors.Is(err, ErrAlreadyListening) {
			// Lost a race with another start; the first one wins.
			c.mu.Unlock()
			return nil
		}
		c.state.LastError = "could not start voice capture"
		c.mu.Unlock()
		c.publishState()
		c.publish(Event{Type: EventError, Code: "capture-start-failed", Detail: err.Error()})
		return err
	}
	return nil
}

// StopListening aborts capture without producing an utterance.
func (c *Controller) StopListening() {
	c.engine.Stop()

	c.mu.Lock()
	if !c.state.IsListening {
		c.mu.Unlock()
		return
	}
	c.state.IsListening = false
	c.state.PendingTranscript = ""
	if !c.state.IsSpeaking && !c.state.IsLoading {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()
	c.publishState()
	c.countCapture("stop")
}

// Send submits typed user text. Voice utterances converge on the same path.
// It blocks until the bot message (or the apology) is appended; the reply
// delay and speech output continue asynchronously.
func (c *Controller) Send(ctx context.Context, text string) (history.Message, error) {
	return c.submit(ctx, text)
}

// ClearHistory resets the conversation to the single welcome message from
// any state. Permission state and preferences are untouched.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	c.clearGen++
	c.inFlight = false
	c.state.IsListening = false
	c.state.IsSpeaking = false
	c.state.IsLoading = false
	c.state.PendingTranscript = ""
	c.state.LastError = ""
	c.state.LastEmotion = nil
	c.state.Phase = PhaseIdle
	err := c.cfg.History.Clear(ctx)
	c.mu.Unlock()

	c.engine.Stop()
	c.speaker.Cancel()

	c.publish(Event{Type: EventHistoryCleared})
	c.publishState()
	return err
}

// Subscribe returns a buffered event stream and a cancel func. Slow
// consumers lose events rather than blocking the controller.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 64)
	c.subs[id] = ch

	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) submit(ctx context.Context, text string) (history.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return history.Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return history.Message{}, ErrExchangeInFlight
	}
	if c.state.IsListening {
		// Typed submission while the mic is open releases the mic first.
		c.mu.Unlock()
		c.engine.Stop()
		c.mu.Lock()
		c.state.IsListening = false
		c.state.PendingTranscript = ""
	}
	c.inFlight = true
	c.state.IsLoading = true
	c.state.Phase = PhaseAwaitingReply
	clearGen := c.clearGen
	c.mu.Unlock()

	// Optimistic append: the user message is visible before the round trip.
	// The log serializes itself; holding c.mu across a store write would
	// stall every capture and speech callback behind it.
	userMsg, err := c.cfg.History.Append(ctx, history.Message{Text: text, Sender: history.SenderUser})

	c.mu.Lock()
	if c.clearGen != clearGen {
		// The conversation was cleared while the append was in flight.
		// ClearHistory already released the in-flight slot; if the append
		// landed after the clear, re-clear to restore the welcome-only view.
		c.mu.Unlock()
		if err == nil {
			_ = c.cfg.History.Clear(ctx)
			c.publish(Event{Type: EventHistoryCleared})
		}
		c.publishState()
		return history.Message{}, nil
	}
	if err != nil {
		c.inFlight = false
		c.state.IsLoading = false
		c.state.Phase = PhaseIdle
		c.state.LastError = "could not store your message"
		c.mu.Unlock()
		c.publishState()
		return history.Message{}, err
	}
	c.mu.Unlock()

	c.countMessage(history.SenderUser)
	c.publish(Event{Type: EventMessage, Message: &userMsg})
	c.publishState()

	start := time.Now()
	reply, xerr := c.cfg.Exchange.Send(ctx, c.sessionID, text)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveExchangeLatency(time.Since(start))
		if xerr != nil {
			c.cfg.Metrics.ExchangeErrors.Inc()
		}
	}

	c.mu.Lock()
	if c.clearGen != clearGen {
		// Conversation was cleared while the reply was in flight; drop it.
		// ClearHistory already released the in-flight slot, and a newer
		// exchange may hold it now.
		c.mu.Unlock()
		c.publishState()
		return history.Message{}, nil
	}
	c.inFlight = false
	c.state.IsLoading = false

	botText := reply.Message
	var emotion *history.EmotionTag
	var action string
	if xerr != nil {
		botText = c.apology
		c.state.LastError = dialog.CodeNetworkError
	} else {
		emotion = reply.Emotion
		action = reply.Action
		c.state.LastError = ""
	}
	c.state.LastEmotion = emotion

	botMsg, aerr := c.cfg.History.Append(ctx, history.Message{
		Text:    botText,
		Sender:  history.SenderBot,
		Emotion: emotion,
	})
	if aerr != nil {
		c.state.Phase = PhaseIdle
		c.state.LastError = "could not store the reply"
		c.mu.Unlock()
		c.publishState()
		return history.Message{}, aerr
	}
	c.state.Phase = PhaseIdle
	c.mu.Unlock()

	c.countMessage(history.SenderBot)
	c.publish(Event{Type: EventMessage, Message: &botMsg})
	c.publishState()

	// The visible conversation always precedes any resulting view change.
	if action != "" {
		if c.cfg.Navigate != nil {
			c.cfg.Navigate(action)
		}
		c.publish(Event{Type: EventNavigate, Action: action})
	}

	go c.speakReply(clearGen, botText)
	return botMsg, xerr
}

// speakReply waits out the human-like response delay and hands the reply to
// speech output, unless the user started listening or cleared in between.
func (c *Controller) speakReply(clearGen int, text string) {
	p := c.cfg.Prefs()
	if !p.SpeechOutputEnabled || !c.speaker.Supported() {
		return
	}
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.sleep(ctx, c.delay()) {
		return
	}

	c.mu.Lock()
	if c.clearGen != clearGen || c.state.IsListening {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.speaker.Speak(ctx, text, p.VoicePreference); err != nil {
		c.publish(Event{Type: EventError, Code: "synthesis_error", Detail: err.Error()})
		return
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.UtterancesSpoken.Inc()
	}
}

func (c *Controller) handlePartial(text string) {
	c.mu.Lock()
	if !c.state.IsListening {
		c.mu.Unlock()
		return
	}
	c.state.PendingTranscript = text
	c.mu.Unlock()
	c.publish(Event{Type: EventPartial, Text: text})
	c.countCapture("partial")
}

func (c *Controller) handleUtterance(text string) {
	c.mu.Lock()
	c.state.IsListening = false
	c.state.PendingTranscript = ""
	if !c.state.IsSpeaking && !c.state.IsLoading {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()
	c.publishState()
	c.countCapture("utterance")

	if text == "" {
		return
	}
	if _, err := c.submit(c.runCtx, text); err != nil {
		log.Printf("voice submission dropped: %v", err)
		c.publish(Event{Type: EventError, Code: "submission_failed", Detail: err.Error()})
	}
}

func (c *Controller) handleHint(code, detail string) {
	c.publish(Event{Type: EventHint, Code: code, Detail: detail})
	c.countCapture("silence_hint")
}

func (c *Controller) handleCaptureError(code, detail string) {
	c.mu.Lock()
	c.state.IsListening = false
	c.state.PendingTranscript = ""
	switch code {
	case CaptureCodePermissionDenied:
		c.state.MicPermission = permission.Denied
		c.state.LastError = "microphone access is denied"
	case CaptureCodeNoSpeech:
		c.state.LastError = "I didn't catch that. Please try again."
	default:
		c.state.LastError = "voice capture error: " + code
	}
	if !c.state.IsSpeaking && !c.state.IsLoading {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()

	if code == CaptureCodePermissionDenied && c.cfg.Permissions != nil {
		c.cfg.Permissions.ForceDenied()
	}

	c.publishState()
	c.publish(Event{Type: EventError, Code: code, Detail: detail})
	c.countCapture("error")
}

func (c *Controller) handleCaptureEnded() {
	c.mu.Lock()
	if !c.state.IsListening {
		c.mu.Unlock()
		return
	}
	c.state.IsListening = false
	c.state.PendingTranscript = ""
	if !c.state.IsSpeaking && !c.state.IsLoading {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()
	c.publishState()
	c.countCapture("ended")
}

func (c *Controller) handleSpeakStarted() {
	c.mu.Lock()
	if c.state.IsListening {
		// Listening preempts speaking; a racing started event loses.
		c.mu.Unlock()
		return
	}
	c.state.IsSpeaking = true
	c.state.Phase = PhaseSpeaking
	c.mu.Unlock()
	c.publishState()
}

func (c *Controller) handleSpeakEnded() {
	c.mu.Lock()
	c.state.IsSpeaking = false
	if !c.state.IsListening && !c.state.IsLoading {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()
	c.publishState()
}

func (c *Controller) handleSpeakError(code, detail string) {
	c.mu.Lock()
	c.state.IsSpeaking = false
	c.state.LastError = "speech output failed"
	if !c.state.IsListening && !c.state.IsLoading {
		c.state.Phase = PhaseIdle
	}
	c.mu.Unlock()
	c.publishState()
	c.publish(Event{Type: EventError, Code: "synthesis_error", Detail: detail})
}

func (c *Controller) followPermissions(ch <-chan permission.State) {
	for state := range ch {
		c.mu.Lock()
		c.state.MicPermission = state
		stopCapture := state == permission.Denied && c.state.IsListening
		if stopCapture {
			c.state.IsListening = false
			c.state.PendingTranscript = ""
			if !c.state.IsSpeaking && !c.state.IsLoading {
				c.state.Phase = PhaseIdle
			}
		}
		c.mu.Unlock()

		if stopCapture {
			c.engine.Stop()
		}
		c.publishState()
	}
}

func (c *Controller) publishState() {
	st := c.State()
	c.publish(Event{Type: EventState, State: &st})
}

func (c *Controller) publish(evt Event) {
	c.subsMu.Lock()
	subs := make([]chan Event, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (c *Controller) countMessage(sender history.Sender) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ChatMessages.WithLabelValues(string(sender)).Inc()
	}
}

func (c *Controller) countCapture(event string) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CaptureEvents.WithLabelValues(event).Inc()
	}
}

func (c *Controller) countCancelledIfSpeaking() {
	if c.cfg.Metrics != nil && c.state.IsSpeaking {
		c.cfg.Metrics.UtterancesCancelled.Inc()
	}
}
