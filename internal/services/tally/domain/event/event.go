package event

import "time"

// Type identifies an event type.
type Type string

// StreamType identifies the kind of aggregate a stream belongs to.
type StreamType string

const (
	// StreamUnitResult is the stream of one (item, reporting unit) result.
	StreamUnitResult StreamType = "unit_result"
	// StreamBundle is the stream of one ballot bundle.
	StreamBundle StreamType = "bundle"
)

// Event is an immutable fact appended to a stream.
type Event struct {
	ContestID      string
	StreamType     StreamType
	StreamID       string
	ParentStreamID string
	ItemID         string
	UnitID         string
	Version        uint64
	Position       uint64
	Type           Type
	Timestamp      time.Time
	ActorID        string
	TenantID       string
	RequestID      string
	CorrelationID  string
	CausationID    string
	PayloadJSON    []byte
	Hash           string
	PrevHash       string
	ChainHash      string
	Signature      string
	SignatureKeyID string
}
