package consensus

import (
	"fmt"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

// ClassifierConfig defines the confidence tier boundaries on the 0-100
// scale. HighTier must not fall below ReviewFloor.
type ClassifierConfig struct {
	// HighTier is the confidence at or above which a verified result is
	// labeled HIGH.
	HighTier float64 `yaml:"high_tier" json:"high_tier" validate:"required,gt=0,max=100,gtefield=ReviewFloor"`

	// ReviewFloor is the confidence below which a result goes to manual
	// review.
	ReviewFloor float64 `yaml:"review_floor" json:"review_floor" validate:"required,gt=0,max=100"`
}

// DefaultClassifierConfig returns a ClassifierConfig with the production
// defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		HighTier:    95,
		ReviewFloor: 85,
	}
}

// Classifier maps a final confidence score to a terminal status and tier
// label. A forced review overrides the score: an ambiguous disagreement
// goes to review even when its penalized confidence clears the floor.
type Classifier struct {
	name   string
	config ClassifierConfig
}

// NewClassifier creates a new Classifier with the specified configuration.
// Returns an error if configuration validation fails.
func NewClassifier(name string, config ClassifierConfig) (*Classifier, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Classifier{name: name, config: config}, nil
}

// Name returns the unique identifier for this classifier instance.
func (c *Classifier) Name() string { return c.name }

// Classify maps a confidence score to a status and tier label. The tier
// is empty for review results.
func (c *Classifier) Classify(confidence float64, forceReview bool) (domain.Status, string) {
	if forceReview || confidence < c.config.ReviewFloor {
		return domain.StatusReview, ""
	}
	if confidence >= c.config.HighTier {
		return domain.StatusVerified, domain.TierHigh
	}
	return domain.StatusVerified, domain.TierMed
}

// Validate checks if the classifier is properly configured.
func (c *Classifier) Validate() error {
	if err := validate.Struct(c.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
