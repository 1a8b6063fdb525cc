package inspect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes type, access and observability.
	ShowMetadata bool

	// IndentWidth is the number of spaces per indent level.
	IndentWidth int
}

// NewFormatter creates a Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		IndentWidth:  2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatResource formats one resource line.
func (f *Formatter) FormatResource(r ResourceInfo) string {
	line := fmt.Sprintf("[%d] %s = %s", r.Address.ResourceID, r.Name, FormatValue(r.Value))
	if f.ShowMetadata {
		line += fmt.Sprintf("  (%s, %s)", r.Type, FormatAccess(r.Access, r.Observable))
	}
	return line
}

// FormatValue formats a value for display. Strings are quoted.
func FormatValue(v model.Value) string {
	switch v.Type() {
	case model.DataTypeInteger:
		return strconv.FormatInt(v.Int(), 10)
	case model.DataTypeString:
		return strconv.Quote(v.Str())
	default:
		return "null"
	}
}

// FormatAccess formats an access set, marking observable resources.
func FormatAccess(access model.Operation, observable bool) string {
	var parts []string
	for _, op := range []model.Operation{model.OpGet, model.OpPut, model.OpPost} {
		if access.Has(op) {
			parts = append(parts, op.String())
		}
	}
	if observable {
		parts = append(parts, "OBSERVE")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

func itoa(id uint16) string {
	return strconv.FormatUint(uint64(id), 10)
}
