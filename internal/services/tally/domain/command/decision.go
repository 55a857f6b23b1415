package command

import (
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

// Decision represents the pure outcome of handling a command. An empty
// decision means the command was already satisfied.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined. Code is
// one of the platform error codes.
type Rejection struct {
	Code     string
	Message  string
	Metadata map[string]string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// NewEvent copies the shared envelope fields from cmd into a new event for
// the command's stream.
func NewEvent(cmd Command, stream event.StreamType, eventType event.Type, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		ContestID:     cmd.ContestID,
		StreamType:    stream,
		StreamID:      cmd.StreamID,
		Type:          eventType,
		Timestamp:     now,
		ActorID:       cmd.ActorID,
		TenantID:      cmd.TenantID,
		RequestID:     cmd.RequestID,
		CorrelationID: cmd.CorrelationID,
		CausationID:   cmd.CausationID,
		PayloadJSON:   payloadJSON,
	}
}
