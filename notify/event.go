package notify

import (
	"time"

	"github.com/arloliu/go-gpib/worker"
)

// EventType is the type of a notification event.
type EventType string

const (
	EventInfo     EventType = "info"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is the serialized form of one notification.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Text string    `json:"text,omitempty"`

	// completion fields
	Kind    string `json:"kind,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

func newTextEvent(typ EventType, text string) Event {
	return Event{Type: typ, Time: time.Now(), Text: text}
}

func newCompleteEvent(kind worker.Kind, res worker.Result) Event {
	ev := Event{
		Type:    EventComplete,
		Time:    time.Now(),
		Kind:    kind.String(),
		Outcome: res.Outcome.String(),
		Status:  res.Status.String(),
		Skipped: res.Skipped,
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}

	return ev
}
