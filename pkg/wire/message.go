package wire

import (
	"fmt"
)

// NotificationMessageID is reserved to mark notification messages.
const NotificationMessageID uint32 = 0

// Operation is a remote operation code.
type Operation uint8

const (
	OpGet  Operation = 1
	OpPut  Operation = 2
	OpPost Operation = 3
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpGet:
		return "GET"
	case OpPut:
		return "PUT"
	case OpPost:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for known operations.
func (o Operation) IsValid() bool {
	return o >= OpGet && o <= OpPost
}

// Path addresses a resource as object/instance/resource.
//
// CBOR encoding: [object, instance, resource]
type Path struct {
	_          struct{} `cbor:",toarray"`
	ObjectID   uint16
	InstanceID uint16
	ResourceID uint16
}

// String returns "object/instance/resource".
func (p Path) String() string {
	return fmt.Sprintf("%d/%d/%d", p.ObjectID, p.InstanceID, p.ResourceID)
}

// Request is an operation sent by the management service.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32, never 0
//	  2: operation,  // uint8: 1=GET, 2=PUT, 3=POST
//	  3: path,       // [object, instance, resource]
//	  4: payload     // int or text, optional
//	}
type Request struct {
	MessageID uint32    `cbor:"1,keyasint"`
	Operation Operation `cbor:"2,keyasint"`
	Path      Path      `cbor:"3,keyasint"`
	Payload   any       `cbor:"4,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// Response answers a Request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // matches the request
//	  2: status,     // uint8
//	  3: payload     // current value (GET) or error text
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Payload   any    `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Notification carries the new value of an observable resource.
//
// CBOR encoding:
//
//	{
//	  1: 0,          // messageId 0 = notification
//	  2: sequence,   // uint32, per-client counter
//	  3: path,
//	  4: value
//	}
type Notification struct {
	Sequence uint32
	Path     Path
	Value    any
}

// Status is a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed.
	StatusSuccess Status = 0

	// StatusBadRequest indicates a malformed request or a payload of the
	// wrong type.
	StatusBadRequest Status = 1

	// StatusNotFound indicates no resource at the path.
	StatusNotFound Status = 2

	// StatusMethodNotAllowed indicates the verb is not in the resource's
	// access set.
	StatusMethodNotAllowed Status = 3

	// StatusUnavailable indicates the client is not registered.
	StatusUnavailable Status = 4

	// StatusInternalError indicates an unexpected failure.
	StatusInternalError Status = 5
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// IsSuccess returns true for StatusSuccess.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
