package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{
			name:   "already canonical",
			raw:    "john.doe_99",
			want:   "john.doe_99",
			wantOK: true,
		},
		{
			name:   "uppercase folded",
			raw:    "JohnDoe",
			want:   "johndoe",
			wantOK: true,
		},
		{
			name:   "whitespace stripped",
			raw:    "  john doe  ",
			want:   "johndoe",
			wantOK: true,
		},
		{
			name:   "at prefix and noise dropped",
			raw:    "@john-doe!",
			want:   "johndoe",
			wantOK: true,
		},
		{
			name:   "leading dots and underscores stripped",
			raw:    "._john",
			want:   "john",
			wantOK: true,
		},
		{
			name:   "trailing dots stripped",
			raw:    "john..",
			want:   "john",
			wantOK: true,
		},
		{
			name:   "trailing underscore kept",
			raw:    "john_",
			want:   "john_",
			wantOK: true,
		},
		{
			name:   "empty input",
			raw:    "",
			wantOK: false,
		},
		{
			name:   "only punctuation",
			raw:    "...___",
			wantOK: false,
		},
		{
			name:   "only noise characters",
			raw:    "!@#$%",
			wantOK: false,
		},
		{
			name:   "over length limit",
			raw:    "abcdefghijklmnopqrstuvwxyz12345",
			wantOK: false,
		},
		{
			name:   "exactly at length limit",
			raw:    "abcdefghijklmnopqrstuvwxyz1234",
			want:   "abcdefghijklmnopqrstuvwxyz1234",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"John.Doe", "@user_name", " a.b.c ", "x_99", "._lead", "trail.."}
	for _, raw := range inputs {
		first, ok := Normalize(raw)
		if !ok {
			continue
		}
		second, ok := Normalize(first)
		require.True(t, ok, "normalizing %q twice must succeed", raw)
		assert.Equal(t, first, second, "normalizing %q must be idempotent", raw)
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{"simple", "johndoe", true},
		{"dots and underscores inside", "john.doe_99", true},
		{"single character", "a", true},
		{"single digit", "7", true},
		{"empty", "", false},
		{"leading dot", ".john", false},
		{"leading underscore", "_john", false},
		{"trailing dot", "john.", false},
		{"trailing underscore allowed", "john_", true},
		{"uppercase rejected", "John", false},
		{"hyphen rejected", "john-doe", false},
		{"space rejected", "john doe", false},
		{"no alphanumeric", "...", false},
		{"too long", "abcdefghijklmnopqrstuvwxyz12345", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidUsername(tt.username))
		})
	}
}

func TestHasUnusualPattern(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{"normal handle", "john.doe", false},
		{"empty string", "", true},
		{"four dot run", "a....b", true},
		{"three dot run is fine", "ab...cd", false},
		{"mixed dot underscore run", "a._._b", true},
		{"mostly punctuation", "a._._", true},
		{"no vowels long", "xkcdzz", true},
		{"no vowels short", "xkcd", false},
		{"digits count as consonant free", "x9z8q7", true},
		{"vowel saves long string", "xkacdz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasUnusualPattern(tt.username))
		})
	}
}
