// Package workload ships the builtin behavior profiles: a chat-API usage mix,
// a heavy-prompt variant, and a burst profile that treats throttling as the
// expected outcome.
package workload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbaxter/stampede/internal/behavior"
)

// Builtin returns the named builtin profile.
func Builtin(name string) (behavior.Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chat":
		return Chat(), nil
	case "heavy":
		return Heavy(), nil
	case "burst":
		return Burst(), nil
	default:
		return behavior.Profile{}, fmt.Errorf("unknown builtin profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names lists the builtin profile names.
func Names() []string {
	names := []string{"chat", "heavy", "burst"}
	sort.Strings(names)
	return names
}

// IsBuiltin reports whether name refers to a builtin profile rather than a
// profile file path.
func IsBuiltin(name string) bool {
	_, err := Builtin(name)
	return err == nil
}
