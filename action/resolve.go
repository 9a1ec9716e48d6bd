package action

import (
	"fmt"
	"strings"

	"github.com/agrisense/agriquery/lexicon"
)

// Resolve finds the item called name. Tiers are tried in order: exact,
// case-insensitive, substring. The first tier with any match decides; more
// than one match there is ErrAmbiguous.
func Resolve[T any](name string, items []T, nameOf func(T) string) (T, error) {
	var zero T
	name = strings.TrimSpace(name)
	if name == "" {
		return zero, fmt.Errorf("%w: empty name", ErrNotResolved)
	}
	folded := lexicon.Normalize(name)
	tiers := []func(string) bool{
		func(n string) bool { return n == name },
		func(n string) bool { return lexicon.Normalize(n) == folded },
		func(n string) bool { return strings.Contains(lexicon.Normalize(n), folded) },
	}
	for _, match := range tiers {
		var hits []T
		for _, it := range items {
			if match(nameOf(it)) {
				hits = append(hits, it)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return hits[0], nil
		default:
			return zero, fmt.Errorf("%w: %q matches %d records", ErrAmbiguous, name, len(hits))
		}
	}
	return zero, fmt.Errorf("%w: %q", ErrNotResolved, name)
}

// AreaName is the name accessor for Resolve over areas.
func AreaName(a Area) string { return a.Name }
