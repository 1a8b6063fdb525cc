package model

import (
	"fmt"
	"sync"
)

// ChangeFunc is called after the value of an observable resource changed.
type ChangeFunc func(r *Resource, value Value)

// Tree is the catalogue of resources keyed by address.
type Tree struct {
	mu sync.RWMutex

	resources map[Address]*Resource

	// order preserves insertion order for enumeration at registration.
	order []*Resource

	sealed bool

	observers []ChangeFunc
}

// NewTree creates an empty resource tree.
func NewTree() *Tree {
	return &Tree{
		resources: make(map[Address]*Resource),
	}
}

// Add adds a resource and returns its handle.
// On error the tree is left unchanged.
func (t *Tree) Add(spec ResourceSpec) (*Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return nil, fmt.Errorf("%w: cannot add %s", ErrTreeSealed, spec.Address)
	}
	if _, exists := t.resources[spec.Address]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, spec.Address)
	}
	if spec.Access == 0 || spec.Access&^(OpGet|OpPut|OpPost) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccess, spec.Address)
	}

	if !spec.Type.IsValid() {
		return nil, fmt.Errorf("%w: %s has data type %s", ErrTypeMismatch, spec.Address, spec.Type)
	}

	if spec.Initial.IsZero() {
		spec.Initial = ZeroValue(spec.Type)
	}

	r := &Resource{
		spec:  spec,
		tree:  t,
		value: spec.Initial,
	}
	if err := r.checkType(spec.Initial); err != nil {
		return nil, err
	}

	t.resources[spec.Address] = r
	t.order = append(t.order, r)
	return r, nil
}

// MustAdd is like Add but panics on error. Intended for static catalogues
// where a failure is a programming error.
func (t *Tree) MustAdd(spec ResourceSpec) *Resource {
	r, err := t.Add(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the resource at addr.
func (t *Tree) Lookup(addr Address) (*Resource, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.resources[addr]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, addr)
	}
	return r, nil
}

// Resources returns all resources in insertion order.
func (t *Tree) Resources() []*Resource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Resource, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of resources.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Seal freezes the tree. Further Add calls fail with ErrTreeSealed.
func (t *Tree) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Sealed returns true once Seal has been called.
func (t *Tree) Sealed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sealed
}

// OnChange registers an observer for value changes on observable resources.
func (t *Tree) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Dispatch executes a remote operation on the resource at addr.
//
// GET returns the current value. PUT stores payload, POST stores payload
// when one is given; both then call OnWrite on the calling goroutine.
// A verb outside the resource's access fails with ErrAccessDenied and
// never reaches OnWrite.
func (t *Tree) Dispatch(op Operation, addr Address, payload Value) (Value, error) {
	if !op.IsSingle() {
		return Value{}, fmt.Errorf("%w: %s", ErrInvalidOperation, op)
	}

	r, err := t.Lookup(addr)
	if err != nil {
		return Value{}, err
	}

	if !r.spec.Access.Has(op) {
		return Value{}, fmt.Errorf("%w: %s on %s (allowed %s)", ErrAccessDenied, op, addr, r.spec.Access)
	}

	switch op {
	case OpGet:
		return r.Value(), nil

	case OpPut:
		if err := r.SetValue(payload); err != nil {
			return Value{}, err
		}

	case OpPost:
		if !payload.IsZero() {
			if err := r.SetValue(payload); err != nil {
				return Value{}, err
			}
		}
	}

	if r.spec.OnWrite != nil {
		r.spec.OnWrite(r, op, payload)
	}
	return r.Value(), nil
}

// valueChanged notifies observers of a change on an observable resource.
func (t *Tree) valueChanged(r *Resource, v Value) {
	if !r.spec.Observable {
		return
	}

	t.mu.RLock()
	obs := make([]ChangeFunc, len(t.observers))
	copy(obs, t.observers)
	t.mu.RUnlock()

	for _, fn := range obs {
		fn(r, v)
	}
}
