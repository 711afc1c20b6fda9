// Package registry implements the Stream Registry & Resolver (§4.2): stream
// name sanitization, variable expansion, capabilities-driven input matching,
// and parameter assembly for starting an input or push-output process.
package registry

import (
	"strings"
	"unicode"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// MaxNameLength is the sanitized-name length bound from §4.2; a longer name
// is rejected before any shared-memory page is touched.
const MaxNameLength = 100

// SanitizeName lowercases name, truncates at the first '?', and drops
// characters that are not alphanumeric/underscore/dot; when a '+' or space
// is present, both the base and the wildcard tail are sanitized the same
// way and rejoined with '+' (§8 scenario 1: `"Test+Stream?a=1"` →
// `"test+stream"`, `"foo bar"` → `"foo+bar"`).
//
// original_source/lib/stream.cpp's Util::sanitizeName leaves the wildcard
// tail's case/charset untouched beyond its own '?'-truncation; §8's worked
// examples say otherwise, and since the spec states the expected output
// literally rather than leaving it ambiguous, the spec wins here (see
// DESIGN.md).
func SanitizeName(name string) (string, error) {
	sanitized := sanitizeNameInternal(name)
	if len(sanitized) > MaxNameLength {
		return "", coreerrors.NewFatal("registry.SanitizeName", nil)
	}
	return sanitized, nil
}

func sanitizeNameInternal(name string) string {
	if idx := strings.IndexAny(name, "+ "); idx != -1 {
		base := sanitizeNameInternal(name[:idx])
		tail := sanitizeNameInternal(name[idx+1:])
		return base + "+" + tail
	}

	if q := strings.IndexByte(name, '?'); q != -1 {
		name = name[:q]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// SplitBaseWildcard separates a (possibly already-sanitized) stream name
// into its base name and wildcard tail. ok is false when there is no '+'
// separator, in which case wildcard is empty.
func SplitBaseWildcard(name string) (base, wildcard string, ok bool) {
	idx := strings.IndexByte(name, '+')
	if idx == -1 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}
