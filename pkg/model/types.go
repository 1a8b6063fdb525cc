package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Resource tree errors.
var (
	ErrDuplicateAddress = errors.New("duplicate resource address")
	ErrInvalidAccess    = errors.New("resource access must allow at least one operation")
	ErrTypeMismatch     = errors.New("value type does not match resource data type")
	ErrAccessDenied     = errors.New("operation not allowed on resource")
	ErrResourceNotFound = errors.New("resource not found")
	ErrTreeSealed       = errors.New("resource tree is sealed")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidAddress   = errors.New("invalid resource address")
)

// DataType is the type of a resource value.
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeInteger
	DataTypeString
)

// String returns the data type name.
func (d DataType) String() string {
	switch d {
	case DataTypeInteger:
		return "integer"
	case DataTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// IsValid returns true for the data types a resource may hold.
func (d DataType) IsValid() bool {
	return d == DataTypeInteger || d == DataTypeString
}

// Operation is a set of verbs the remote side may dispatch to a resource.
type Operation uint8

const (
	// OpGet reads the resource value.
	OpGet Operation = 1 << iota

	// OpPut replaces the resource value.
	OpPut

	// OpPost executes the resource.
	OpPost
)

// Has returns true if every verb in op is part of the set.
func (o Operation) Has(op Operation) bool {
	return op != 0 && o&op == op
}

// IsSingle returns true if the set holds exactly one known verb.
func (o Operation) IsSingle() bool {
	return o == OpGet || o == OpPut || o == OpPost
}

// String returns the verbs joined with "|", e.g. "GET|PUT".
func (o Operation) String() string {
	var names []string
	if o&OpGet != 0 {
		names = append(names, "GET")
	}
	if o&OpPut != 0 {
		names = append(names, "PUT")
	}
	if o&OpPost != 0 {
		names = append(names, "POST")
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// ParseOperation parses a single verb name (case-insensitive).
func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GET":
		return OpGet, nil
	case "PUT":
		return OpPut, nil
	case "POST":
		return OpPost, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
}

// Value is a resource value: an integer or a string.
// The zero Value has DataTypeUnknown and is treated as "no value".
type Value struct {
	typ DataType
	i   int64
	s   string
}

// IntValue returns an integer value.
func IntValue(v int64) Value {
	return Value{typ: DataTypeInteger, i: v}
}

// StringValue returns a string value.
func StringValue(v string) Value {
	return Value{typ: DataTypeString, s: v}
}

// ZeroValue returns the zero value of a data type.
func ZeroValue(t DataType) Value {
	return Value{typ: t}
}

// ValueOf converts a decoded payload (integer kinds or string) into a Value.
func ValueOf(v any) (Value, error) {
	switch n := v.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return n, nil
	case string:
		return StringValue(n), nil
	case int:
		return IntValue(int64(n)), nil
	case int8:
		return IntValue(int64(n)), nil
	case int16:
		return IntValue(int64(n)), nil
	case int32:
		return IntValue(int64(n)), nil
	case int64:
		return IntValue(n), nil
	case uint8:
		return IntValue(int64(n)), nil
	case uint16:
		return IntValue(int64(n)), nil
	case uint32:
		return IntValue(int64(n)), nil
	case uint64:
		if n > 1<<63-1 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrTypeMismatch, n)
		}
		return IntValue(int64(n)), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported payload type %T", ErrTypeMismatch, v)
	}
}

// Type returns the value's data type.
func (v Value) Type() DataType { return v.typ }

// IsZero returns true if the value carries no type.
func (v Value) IsZero() bool { return v.typ == DataTypeUnknown }

// Int returns the integer content (0 for string values).
func (v Value) Int() int64 { return v.i }

// Str returns the string content ("" for integer values).
func (v Value) Str() string { return v.s }

// Any returns the content as int64 or string, or nil for the zero Value.
func (v Value) Any() any {
	switch v.typ {
	case DataTypeInteger:
		return v.i
	case DataTypeString:
		return v.s
	default:
		return nil
	}
}

// String returns the textual form of the value.
func (v Value) String() string {
	switch v.typ {
	case DataTypeInteger:
		return strconv.FormatInt(v.i, 10)
	case DataTypeString:
		return v.s
	default:
		return "<none>"
	}
}

// NotifyStatus is the outcome of a notification attempt or an observer
// subscription change.
type NotifyStatus uint8

const (
	StatusSent NotifyStatus = iota + 1
	StatusDelivered
	StatusSendFailed
	StatusBuildError
	StatusResendQueueFull
	StatusSubscribed
	StatusUnsubscribed
)

// String returns the status name.
func (s NotifyStatus) String() string {
	switch s {
	case StatusSent:
		return "SENT"
	case StatusDelivered:
		return "DELIVERED"
	case StatusSendFailed:
		return "SEND_FAILED"
	case StatusBuildError:
		return "BUILD_ERROR"
	case StatusResendQueueFull:
		return "RESEND_QUEUE_FULL"
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusUnsubscribed:
		return "UNSUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true for outcomes that end a notification attempt.
func (s NotifyStatus) IsTerminal() bool {
	return s >= StatusSent && s <= StatusResendQueueFull
}

// IsSubscription returns true for observer subscription transitions.
func (s NotifyStatus) IsSubscription() bool {
	return s == StatusSubscribed || s == StatusUnsubscribed
}
