package model

import (
	"fmt"
	"sync"
)

// WriteFunc is called after a PUT or POST has been accepted.
// It runs synchronously on the goroutine that dispatched the operation.
type WriteFunc func(r *Resource, op Operation, value Value)

// NotifyStatusFunc receives notification outcomes for a resource.
type NotifyStatusFunc func(r *Resource, status NotifyStatus)

// ResourceSpec describes a resource to add to a Tree.
type ResourceSpec struct {
	// Address uniquely identifies the resource.
	Address Address

	// Name is the human-readable resource name.
	Name string

	// Type is the data type of the value.
	Type DataType

	// Access defines the verbs the remote side may use.
	Access Operation

	// Observable resources notify on every value change while registered.
	Observable bool

	// Initial is the starting value. The zero Value means the type's zero.
	Initial Value

	// OnWrite is called after an accepted PUT/POST (optional).
	OnWrite WriteFunc

	// OnNotifyStatus receives notification outcomes (optional).
	OnNotifyStatus NotifyStatusFunc
}

// Resource is an addressable, typed value. The *Resource returned by
// Tree.Add is the handle used for later reads and writes.
type Resource struct {
	spec ResourceSpec
	tree *Tree

	mu    sync.Mutex
	value Value
}

// Address returns the resource address.
func (r *Resource) Address() Address { return r.spec.Address }

// Name returns the resource name.
func (r *Resource) Name() string { return r.spec.Name }

// Type returns the resource data type.
func (r *Resource) Type() DataType { return r.spec.Type }

// Access returns the allowed verbs.
func (r *Resource) Access() Operation { return r.spec.Access }

// Observable returns true if value changes are notified.
func (r *Resource) Observable() bool { return r.spec.Observable }

// Value returns the current value.
func (r *Resource) Value() Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// SetValue replaces the value. The prior value is kept on ErrTypeMismatch.
func (r *Resource) SetValue(v Value) error {
	_, err := r.Update(func(Value) (Value, error) { return v, nil })
	return err
}

// Update replaces the value with fn(current) while holding the resource
// lock, and returns the stored value. If fn returns an error, or a value of
// the wrong type, the prior value is kept.
func (r *Resource) Update(fn func(current Value) (Value, error)) (Value, error) {
	r.mu.Lock()
	next, err := fn(r.value)
	if err != nil {
		current := r.value
		r.mu.Unlock()
		return current, err
	}
	if err := r.checkType(next); err != nil {
		current := r.value
		r.mu.Unlock()
		return current, err
	}
	changed := r.value != next
	r.value = next
	r.mu.Unlock()

	if changed {
		r.tree.valueChanged(r, next)
	}
	return next, nil
}

// ReportStatus delivers a notification outcome to the resource's
// OnNotifyStatus callback, if any.
func (r *Resource) ReportStatus(status NotifyStatus) {
	if r.spec.OnNotifyStatus != nil {
		r.spec.OnNotifyStatus(r, status)
	}
}

// String returns "name (address)".
func (r *Resource) String() string {
	return fmt.Sprintf("%s (%s)", r.spec.Name, r.spec.Address)
}

func (r *Resource) checkType(v Value) error {
	if v.Type() != r.spec.Type {
		return fmt.Errorf("%w: %s expects %s, got %s",
			ErrTypeMismatch, r.spec.Address, r.spec.Type, v.Type())
	}
	return nil
}
