package inspect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

// ErrResourceNotFound is returned when a name does not resolve.
var ErrResourceNotFound = errors.New("resource not found")

// Inspector reads a resource tree.
type Inspector struct {
	tree *model.Tree
}

// NewInspector creates an inspector for tree.
func NewInspector(tree *model.Tree) *Inspector {
	return &Inspector{tree: tree}
}

// TreeInfo is a snapshot of a tree grouped by object and instance.
type TreeInfo struct {
	Objects []ObjectInfo
}

// ObjectInfo groups the instances of one object.
type ObjectInfo struct {
	ID        uint16
	Name      string
	Instances []InstanceInfo
}

// InstanceInfo groups the resources of one object instance.
type InstanceInfo struct {
	ID        uint16
	Resources []ResourceInfo
}

// ResourceInfo describes one resource and its current value.
type ResourceInfo struct {
	Address    model.Address
	Name       string
	Type       model.DataType
	Access     model.Operation
	Observable bool
	Value      model.Value
}

// InspectTree snapshots the tree in publication order.
func (i *Inspector) InspectTree() *TreeInfo {
	info := &TreeInfo{}
	for _, r := range i.tree.Resources() {
		addr := r.Address()

		var obj *ObjectInfo
		for k := range info.Objects {
			if info.Objects[k].ID == addr.ObjectID {
				obj = &info.Objects[k]
			}
		}
		if obj == nil {
			info.Objects = append(info.Objects, ObjectInfo{ID: addr.ObjectID, Name: ObjectName(addr.ObjectID)})
			obj = &info.Objects[len(info.Objects)-1]
		}

		var inst *InstanceInfo
		for k := range obj.Instances {
			if obj.Instances[k].ID == addr.InstanceID {
				inst = &obj.Instances[k]
			}
		}
		if inst == nil {
			obj.Instances = append(obj.Instances, InstanceInfo{ID: addr.InstanceID})
			inst = &obj.Instances[len(obj.Instances)-1]
		}

		inst.Resources = append(inst.Resources, ResourceInfo{
			Address:    addr,
			Name:       r.Name(),
			Type:       r.Type(),
			Access:     r.Access(),
			Observable: r.Observable(),
			Value:      r.Value(),
		})
	}
	return info
}

// Resolve maps user input to a published address. It accepts a numeric
// address ("10341/0/26342"), a resource name ("product_current_count") or
// an object name and resource name ("vending-row/is_empty").
func (i *Inspector) Resolve(input string) (model.Address, error) {
	input = strings.TrimSpace(input)
	if addr, err := model.ParseAddress(input); err == nil {
		if _, err := i.tree.Lookup(addr); err != nil {
			return model.Address{}, fmt.Errorf("%w: %s", ErrResourceNotFound, input)
		}
		return addr, nil
	}

	objectID, hasObject := uint16(0), false
	name := input
	if obj, res, ok := strings.Cut(input, "/"); ok {
		id, known := ResolveObjectName(obj)
		if !known {
			n, err := strconv.ParseUint(obj, 10, 16)
			if err != nil {
				return model.Address{}, fmt.Errorf("%w: unknown object %q", ErrResourceNotFound, obj)
			}
			id = uint16(n)
		}
		objectID, hasObject, name = id, true, res
	}

	var matches []model.Address
	for _, r := range i.tree.Resources() {
		if hasObject && r.Address().ObjectID != objectID {
			continue
		}
		if strings.EqualFold(r.Name(), name) {
			matches = append(matches, r.Address())
		}
	}
	switch len(matches) {
	case 0:
		return model.Address{}, fmt.Errorf("%w: %s", ErrResourceNotFound, input)
	case 1:
		return matches[0], nil
	default:
		return model.Address{}, fmt.Errorf("%w: %q is ambiguous", ErrResourceNotFound, input)
	}
}

// FormatTree renders info with f. A nil formatter uses the defaults.
func FormatTree(info *TreeInfo, f *Formatter) string {
	if f == nil {
		f = NewFormatter()
	}

	var b strings.Builder
	for _, obj := range info.Objects {
		b.WriteString(f.Indent(0, fmt.Sprintf("Object %d: %s", obj.ID, obj.Name)) + "\n")
		for _, inst := range obj.Instances {
			b.WriteString(f.Indent(1, fmt.Sprintf("Instance %d", inst.ID)) + "\n")
			for _, r := range inst.Resources {
				b.WriteString(f.Indent(2, f.FormatResource(r)) + "\n")
			}
		}
	}
	return b.String()
}
