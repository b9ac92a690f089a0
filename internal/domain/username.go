// Package domain contains pure, dependency-free domain models and types
// for the username extraction core.
package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser is a package-level Unicode case folder for performance.
// This avoids creating a new caser for each normalization call.
var foldCaser = cases.Fold()

// MaxUsernameLength is the maximum length of a canonical username.
// Instagram caps handles at 30 characters.
const MaxUsernameLength = 30

// Normalize converts raw recognizer text into a canonical username.
// It lower-cases the input, strips all whitespace, drops every character
// outside [a-z0-9._], removes leading dots/underscores and trailing dots,
// and then applies the acceptance predicate. The second return value is
// false when no valid username remains.
//
// Normalize is idempotent: if Normalize(s) succeeds with result x, then
// Normalize(x) returns x.
func Normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	folded := foldCaser.String(strings.TrimSpace(raw))

	// Keep only characters legal in a canonical username. Whitespace and
	// any other noise from the recognizer is dropped in the same pass.
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if isUsernameRune(r) {
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimLeft(b.String(), "._")
	cleaned = strings.TrimRight(cleaned, ".")

	if !IsValidUsername(cleaned) {
		return "", false
	}

	return cleaned, true
}

// IsValidUsername reports whether s satisfies the canonical username
// acceptance predicate: 1-30 characters from [a-z0-9._], starting with an
// alphanumeric, not ending with a dot, and containing at least one
// alphanumeric character. Every component that emits a final username
// relies on this predicate.
func IsValidUsername(s string) bool {
	if len(s) < 1 || len(s) > MaxUsernameLength {
		return false
	}

	hasAlnum := false
	for _, r := range s {
		if !isUsernameRune(r) {
			return false
		}
		if isAlnum(r) {
			hasAlnum = true
		}
	}
	if !hasAlnum {
		return false
	}

	if !isAlnum(rune(s[0])) {
		return false
	}
	if strings.HasSuffix(s, ".") {
		return false
	}

	return true
}

// HasUnusualPattern detects shapes that suggest garbled recognizer output:
// runs of four or more dots/underscores, punctuation making up more than
// half the string, or longer strings with no vowels at all. The result is
// only ever used to adjust confidence, never to reject a username.
func HasUnusualPattern(s string) bool {
	if s == "" {
		return true
	}

	run := 0
	special := 0
	for _, r := range s {
		if r == '.' || r == '_' {
			run++
			special++
			if run >= 4 {
				return true
			}
		} else {
			run = 0
		}
	}

	if float64(special)/float64(len(s)) > 0.5 {
		return true
	}

	if len(s) > 5 && !strings.ContainsAny(s, "aeiou") {
		return true
	}

	return false
}

func isUsernameRune(r rune) bool {
	return isAlnum(r) || r == '.' || r == '_'
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
