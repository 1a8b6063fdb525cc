package log

import (
	"time"

	"github.com/mash-protocol/m2m-inventory/pkg/wire"
)

// Event is a diagnostic event captured by the client, the connector or the
// simulator. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one registration run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow relative to the client.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the endpoint name (populated after registration).
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message      *MessageEvent      `cbor:"7,keyasint,omitempty"`
	Notification *NotificationEvent `cbor:"8,keyasint,omitempty"`
	StateChange  *StateChangeEvent  `cbor:"9,keyasint,omitempty"`
	Error        *ErrorEventData    `cbor:"10,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message from the management service.
	DirectionIn Direction = 0
	// DirectionOut indicates a message to the management service.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerWire is the connector (encoded messages).
	LayerWire Layer = 0
	// LayerClient is the lifecycle state machine.
	LayerClient Layer = 1
	// LayerResource is the resource tree and the simulator driving it.
	LayerResource Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	case LayerResource:
		return "RESOURCE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request or response.
	CategoryMessage Category = 0
	// CategoryNotification indicates a notification or its delivery status.
	CategoryNotification Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryNotification:
		return "NOTIFICATION"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a decoded request or response.
type MessageEvent struct {
	// Type distinguishes request/response.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates request/response pairs.
	MessageID uint32 `cbor:"2,keyasint"`

	// For requests: the operation being performed.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`

	// Path is the target resource address.
	Path string `cbor:"4,keyasint,omitempty"`

	// For responses: the status code.
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// Decoded payload.
	Payload any `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response (response only).
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes request/response.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// NotificationEvent captures a value change, an outgoing notification or a
// notification status.
type NotificationEvent struct {
	// Path is the resource address.
	Path string `cbor:"1,keyasint"`

	// Sequence is the notification sequence number (0 for status-only events).
	Sequence uint32 `cbor:"2,keyasint,omitempty"`

	// Value is the new resource value.
	Value any `cbor:"3,keyasint,omitempty"`

	// Status is the notification status name (SENT, DELIVERED, ...).
	Status string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityClient indicates a client lifecycle change.
	StateEntityClient StateEntity = 0
	// StateEntityInventory indicates a change of the simulated stock.
	StateEntityInventory StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityClient:
		return "CLIENT"
	case StateEntityInventory:
		return "INVENTORY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
