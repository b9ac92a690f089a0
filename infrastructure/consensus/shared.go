// Package consensus provides the deterministic components that turn noisy
// recognizer candidates into one trustworthy username: variant voting,
// misread correction, dual-engine merging, and confidence classification.
package consensus

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by consensus components.
var (
	// ErrEmptyName is returned when attempting to create a component with
	// an empty name.
	ErrEmptyName = errors.New("component name cannot be empty")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
