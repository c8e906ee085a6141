// Package message defines the unit of communication exchanged between
// simulated devices. A Message is created once per logical communication and
// is only ever handled by a single queue owner at a time, so it carries no
// internal locking.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies the intent of a message
type Kind int

const (
	// Data carries a sensor reading or other telemetry
	Data Kind = iota
	// Command instructs a device to change state
	Command
	// Acknowledgment confirms receipt of an earlier message
	Acknowledgment
	// Error reports a failure back to the sender
	Error
)

// String returns the string representation of a message kind
func (k Kind) String() string {
	switch k {
	case Data:
		return "DATA"
	case Command:
		return "COMMAND"
	case Acknowledgment:
		return "ACKNOWLEDGMENT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Message is a single unit of device-to-device communication
type Message struct {
	id          string
	source      string
	destination string
	payload     string
	kind        Kind
	createdAt   time.Time
	headers     map[string]string
}

// New creates a message from source to destination with the given payload.
// Every message gets a unique identifier.
func New(source, destination, payload string, kind Kind) *Message {
	return &Message{
		id:          "MSG_" + uuid.NewString(),
		source:      source,
		destination: destination,
		payload:     payload,
		kind:        kind,
		createdAt:   time.Now(),
		headers:     make(map[string]string),
	}
}

// ID returns the unique message identifier
func (m *Message) ID() string { return m.id }

// Source returns the sending device ID
func (m *Message) Source() string { return m.source }

// Destination returns the receiving device ID
func (m *Message) Destination() string { return m.destination }

// Payload returns the message body
func (m *Message) Payload() string { return m.payload }

// Kind returns the message classification
func (m *Message) Kind() Kind { return m.kind }

// CreatedAt returns the creation timestamp
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// SetPayload replaces the message body
func (m *Message) SetPayload(payload string) { m.payload = payload }

// AddHeader sets a header key to a value, overwriting any previous value
func (m *Message) AddHeader(key, value string) {
	m.headers[key] = value
}

// Header returns the value for a header key, or "" if absent
func (m *Message) Header(key string) string {
	return m.headers[key]
}

// HasHeader reports whether a header key is present
func (m *Message) HasHeader(key string) bool {
	_, ok := m.headers[key]
	return ok
}

// String renders a compact human-readable summary
func (m *Message) String() string {
	return fmt.Sprintf("Message[ID: %s, From: %s, To: %s, Kind: %s, Payload: %s]",
		m.id, m.source, m.destination, m.kind, m.payload)
}
