package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a resource within the tree.
type Address struct {
	ObjectID   uint16
	InstanceID uint16
	ResourceID uint16
}

// NewAddress returns the address object/instance/resource.
func NewAddress(object, instance, resource uint16) Address {
	return Address{ObjectID: object, InstanceID: instance, ResourceID: resource}
}

// String returns the address in "object/instance/resource" form.
func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.ObjectID, a.InstanceID, a.ResourceID)
}

// ParseAddress parses an address in "object/instance/resource" form.
// A leading slash is accepted.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	var ids [3]uint16
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		ids[i] = uint16(v)
	}
	return NewAddress(ids[0], ids[1], ids[2]), nil
}
