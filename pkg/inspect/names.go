package inspect

import "strings"

// objectNames maps well-known object ids to display names.
var objectNames = map[uint16]string{
	3201:  "Digital Output",
	5000:  "Device Control",
	10341: "Vending Row",
}

// ObjectName returns the display name of an object id, or "Object N".
func ObjectName(id uint16) string {
	if name, ok := objectNames[id]; ok {
		return name
	}
	return "Object " + itoa(id)
}

// ResolveObjectName resolves an object name to its id. Case, spaces,
// dashes and underscores are ignored.
func ResolveObjectName(name string) (uint16, bool) {
	want := normalize(name)
	for id, n := range objectNames {
		if normalize(n) == want {
			return id, true
		}
	}
	return 0, false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}
