package etl

import (
	"fmt"
	"strings"
	"unicode"

	"sqlnosql/internal/domain"
)

// Sanitize drops every rune that is not a letter, number or underscore.
// Case is preserved and nothing is substituted, so the result may be empty
// or collide with another sanitized name.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return -1
	}, name)
}

// SanitizeAll sanitizes a batch of names and rejects empty or duplicate
// results. The returned slice is index-aligned with names.
func SanitizeAll(entity string, names []string) ([]string, error) {
	out := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, n := range names {
		s := Sanitize(n)
		if s == "" {
			return nil, domain.SchemaError(entity, fmt.Errorf("name %q sanitizes to an empty identifier", n))
		}
		if prev, dup := seen[s]; dup {
			return nil, domain.SchemaError(entity, fmt.Errorf("names %q and %q both sanitize to %q", prev, n, s))
		}
		seen[s] = n
		out[i] = s
	}
	return out, nil
}

// TargetName returns explicit, or source when explicit is empty. Table
// targets are always sanitized; collection names are taken as-is.
func TargetName(dir domain.Direction, explicit, source string) string {
	name := explicit
	if name == "" {
		name = source
	}
	if dir == domain.DocumentToTabular {
		return Sanitize(name)
	}
	return name
}
