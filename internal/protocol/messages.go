package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mateonavarro/clara/internal/history"
	"github.com/mateonavarro/clara/internal/voice"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Client → server.
	TypeClientControl     MessageType = "client_control"
	TypeClientText        MessageType = "client_text"
	TypeClientSpeechEvent MessageType = "client_speech_event"

	// Server → client.
	TypeStateEvent        MessageType = "state_event"
	TypeTranscriptPartial MessageType = "transcript_partial"
	TypeChatMessage       MessageType = "chat_message"
	TypeHintEvent         MessageType = "hint_event"
	TypeNavigateEvent     MessageType = "navigate_event"
	TypeErrorEvent        MessageType = "error_event"
	TypeHistorySnapshot   MessageType = "history_snapshot"
	TypeCaptureCommand    MessageType = "capture_command"
	TypeSpeakCommand      MessageType = "speak_command"
)

// Control actions a client may request.
const (
	ActionStartListening = "start_listening"
	ActionStopListening  = "stop_listening"
	ActionClearHistory   = "clear_history"
)

// Kinds of platform speech reports the page sends over the bridge.
const (
	SpeechKindRecognitionResult = "recognition_result"
	SpeechKindSpeechStart       = "speech_start"
	SpeechKindRecognitionError  = "recognition_error"
	SpeechKindSpeakStarted      = "speak_started"
	SpeechKindSpeakEnded        = "speak_ended"
	SpeechKindSpeakError        = "speak_error"
	SpeechKindVoices            = "voices"
	SpeechKindPermission        = "permission"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type ClientText struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// ClientSpeechEvent carries one platform recognition/synthesis report from
// the page. Fields are populated per Kind.
type ClientSpeechEvent struct {
	Type   MessageType       `json:"type"`
	Kind   string            `json:"kind"`
	Text   string            `json:"text,omitempty"`
	Final  bool              `json:"final,omitempty"`
	Code   string            `json:"code,omitempty"`
	Detail string            `json:"detail,omitempty"`
	State  string            `json:"state,omitempty"`
	Voices []voice.VoiceInfo `json:"voices,omitempty"`
	TSMs   int64             `json:"ts_ms,omitempty"`
}

type StateEvent struct {
	Type  MessageType            `json:"type"`
	State voice.InteractionState `json:"state"`
}

type TranscriptPartial struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type ChatMessage struct {
	Type    MessageType     `json:"type"`
	Message history.Message `json:"message"`
}

type HintEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type NavigateEvent struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type HistorySnapshot struct {
	Type     MessageType       `json:"type"`
	Messages []history.Message `json:"messages"`
}

type CaptureCommand struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type SpeakCommand struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action"`
	Text      string      `json:"text,omitempty"`
	VoiceName string      `json:"voice_name,omitempty"`
	VoiceLang string      `json:"voice_lang,omitempty"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStartListening, ActionStopListening, ActionClearHistory:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid client_text: empty text")
		}
		return msg, nil
	case TypeClientSpeechEvent:
		var msg ClientSpeechEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Kind {
		case SpeechKindRecognitionResult, SpeechKindSpeechStart, SpeechKindRecognitionError,
			SpeechKindSpeakStarted, SpeechKindSpeakEnded, SpeechKindSpeakError,
			SpeechKindVoices, SpeechKindPermission:
		default:
			return nil, fmt.Errorf("invalid client_speech_event kind %q", msg.Kind)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
