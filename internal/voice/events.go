package voice

import "github.com/mateonavarro/clara/internal/history"

type EventType string

const (
	EventState          EventType = "state"
	EventPartial        EventType = "transcript_partial"
	EventMessage        EventType = "message"
	EventHint           EventType = "hint"
	EventNavigate       EventType = "navigate"
	EventError          EventType = "error"
	EventHistoryCleared EventType = "history_cleared"
)

// Event is the controller's outbound notification. Fields are populated
// per type: State for EventState, Message for EventMessage, and so on.
type Event struct {
	Type    EventType
	State   *InteractionState
	Text    string
	Message *history.Message
	Code    string
	Detail  string
	Action  string
}
