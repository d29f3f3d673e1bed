package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mateonavarro/clara/internal/config"
	"github.com/mateonavarro/clara/internal/observability"
	"github.com/mateonavarro/clara/internal/permission"
	"github.com/mateonavarro/clara/internal/prefs"
	"github.com/mateonavarro/clara/internal/protocol"
	"github.com/mateonavarro/clara/internal/voice"
)

type Server struct {
	cfg         config.Config
	controller  *voice.Controller
	bridge      *voice.BridgeProvider
	permissions *permission.Monitor
	prefs       *prefs.Store
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

// New builds the widget API server. bridge may be nil when the mock
// provider is in use; speech events from the page are then ignored.
func New(cfg config.Config, controller *voice.Controller, bridge *voice.BridgeProvider, permissions *permission.Monitor, prefStore *prefs.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		controller:  controller,
		bridge:      bridge,
		permissions: permissions,
		prefs:       prefStore,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin. This prevents other websites from driving the
				// user's mic session if Clara is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/chat/history", s.handleHistory)
	r.Post("/v1/chat/history/clear", s.handleClearHistory)
	r.Post("/v1/chat/send", s.handleSend)
	r.Get("/v1/chat/capability", s.handleCapability)
	r.Get("/v1/voice/voices", s.handleListVoices)
	r.Get("/v1/prefs", s.handleGetPrefs)
	r.Put("/v1/prefs", s.handlePutPrefs)
	r.Get("/v1/chat/ws", s.handleWS)

	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	enqueue := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the outbound
			// queue is saturated. The client resyncs from the next snapshot.
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	events, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if msg := s.eventToWire(evt); msg != nil {
					enqueue(msg)
				}
			}
		}
	}()

	if s.bridge != nil {
		token := s.bridge.Attach(func(cmd voice.Command) {
			enqueue(commandToWire(cmd))
		})
		defer s.bridge.Detach(token)
	}

	// Initial sync: full history plus the current interaction state.
	enqueue(protocol.HistorySnapshot{Type: protocol.TypeHistorySnapshot, Messages: s.controller.Messages()})
	state := s.controller.State()
	enqueue(protocol.StateEvent{Type: protocol.TypeStateEvent, State: state})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.dispatch(ctx, parsed, enqueue)
	}

	cancel()
	<-writerDone
}

func (s *Server) dispatch(ctx context.Context, parsed any, enqueue func(any)) {
	switch msg := parsed.(type) {
	case protocol.ClientControl:
		switch msg.Action {
		case protocol.ActionStartListening:
			if err := s.controller.StartListening(); err != nil {
				enqueue(controlError(err))
			}
		case protocol.ActionStopListening:
			s.controller.StopListening()
		case protocol.ActionClearHistory:
			if err := s.controller.ClearHistory(ctx); err != nil {
				enqueue(controlError(err))
			}
		}
	case protocol.ClientText:
		// The exchange blocks on the dialog service; keep the read loop free.
		go func() {
			if _, err := s.controller.Send(ctx, msg.Text); err != nil {
				enqueue(controlError(err))
			}
		}()
	case protocol.ClientSpeechEvent:
		s.dispatchSpeechEvent(msg)
	}
}

func (s *Server) dispatchSpeechEvent(msg protocol.ClientSpeechEvent) {
	if msg.Kind == protocol.SpeechKindPermission {
		switch permission.State(msg.State) {
		case permission.Granted, permission.Denied, permission.Prompt:
			s.permissions.Update(permission.State(msg.State))
		}
		return
	}
	if s.bridge == nil {
		return
	}
	switch msg.Kind {
	case protocol.SpeechKindRecognitionResult:
		s.bridge.CaptureEvent(voice.CaptureEvent{
			Type:      voice.CaptureResult,
			Text:      msg.Text,
			Final:     msg.Final,
			Timestamp: msg.TSMs,
		})
	case protocol.SpeechKindSpeechStart:
		s.bridge.CaptureEvent(voice.CaptureEvent{Type: voice.CaptureSpeechStart, Timestamp: msg.TSMs})
	case protocol.SpeechKindRecognitionError:
		s.bridge.CaptureEvent(voice.CaptureEvent{
			Type:   voice.CaptureError,
			Code:   msg.Code,
			Detail: msg.Detail,
		})
	case protocol.SpeechKindSpeakStarted:
		s.bridge.OutputEvent(voice.OutputEvent{Type: voice.OutputStarted})
	case protocol.SpeechKindSpeakEnded:
		s.bridge.OutputEvent(voice.OutputEvent{Type: voice.OutputEnded})
	case protocol.SpeechKindSpeakError:
		s.bridge.OutputEvent(voice.OutputEvent{Type: voice.OutputError, Code: msg.Code, Detail: msg.Detail})
	case protocol.SpeechKindVoices:
		s.bridge.SetVoices(msg.Voices)
	}
}

func (s *Server) eventToWire(evt voice.Event) any {
	switch evt.Type {
	case voice.EventState:
		if evt.State == nil {
			return nil
		}
		return protocol.StateEvent{Type: protocol.TypeStateEvent, State: *evt.State}
	case voice.EventPartial:
		return protocol.TranscriptPartial{Type: protocol.TypeTranscriptPartial, Text: evt.Text}
	case voice.EventMessage:
		if evt.Message == nil {
			return nil
		}
		return protocol.ChatMessage{Type: protocol.TypeChatMessage, Message: *evt.Message}
	case voice.EventHint:
		return protocol.HintEvent{Type: protocol.TypeHintEvent, Code: evt.Code, Detail: evt.Detail}
	case voice.EventNavigate:
		return protocol.NavigateEvent{Type: protocol.TypeNavigateEvent, Action: evt.Action}
	case voice.EventError:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: evt.Code, Detail: evt.Detail}
	case voice.EventHistoryCleared:
		return protocol.HistorySnapshot{Type: protocol.TypeHistorySnapshot, Messages: s.controller.Messages()}
	default:
		return nil
	}
}

func commandToWire(cmd voice.Command) any {
	switch cmd.Kind {
	case voice.CommandCaptureStart:
		return protocol.CaptureCommand{Type: protocol.TypeCaptureCommand, Action: "start"}
	case voice.CommandCaptureStop:
		return protocol.CaptureCommand{Type: protocol.TypeCaptureCommand, Action: "stop"}
	case voice.CommandSpeak:
		sc := protocol.SpeakCommand{Type: protocol.TypeSpeakCommand, Action: "speak", Text: cmd.Text}
		if cmd.Voice != nil {
			sc.VoiceName = cmd.Voice.Name
			sc.VoiceLang = cmd.Voice.Lang
		}
		return sc
	case voice.CommandSpeakCancel:
		return protocol.SpeakCommand{Type: protocol.TypeSpeakCommand, Action: "cancel"}
	default:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "unknown_command"}
	}
}

func controlError(err error) protocol.ErrorEvent {
	code := "control_failed"
	switch {
	case errors.Is(err, voice.ErrExchangeInFlight):
		code = "exchange_in_flight"
	case errors.Is(err, voice.ErrPermissionDenied):
		code = "permission_denied"
	case errors.Is(err, voice.ErrEmptyMessage):
		code = "empty_message"
	case errors.Is(err, voice.ErrCaptureUnsupported):
		code = "capture_unsupported"
	}
	return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: code, Detail: err.Error()}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientSpeechEvent:
		return m.Type, true
	case protocol.StateEvent:
		return m.Type, true
	case protocol.TranscriptPartial:
		return m.Type, true
	case protocol.ChatMessage:
		return m.Type, true
	case protocol.HintEvent:
		return m.Type, true
	case protocol.NavigateEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.HistorySnapshot:
		return m.Type, true
	case protocol.CaptureCommand:
		return m.Type, true
	case protocol.SpeakCommand:
		return m.Type, true
	default:
		return "", false
	}
}
