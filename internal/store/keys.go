package store

import (
	"strings"

	"github.com/sells-group/facility-registry/internal/normalize"
)

// sourceNameKey is the normalized display name used to detect one uploader's
// Source under slightly different spellings.
func sourceNameKey(name string) string {
	return normalize.Key(name)
}

func containsKey(name, pattern string) bool {
	p := normalize.Key(pattern)
	if p == "" {
		return true
	}
	return strings.Contains(normalize.Key(name), p)
}

func sameCountry(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
