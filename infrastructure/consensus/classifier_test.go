package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

func TestClassify(t *testing.T) {
	classifier, err := NewClassifier("test-classifier", DefaultClassifierConfig())
	require.NoError(t, err)

	tests := []struct {
		name        string
		confidence  float64
		forceReview bool
		wantStatus  domain.Status
		wantTier    string
	}{
		{"high tier at boundary", 95, false, domain.StatusVerified, domain.TierHigh},
		{"high tier above boundary", 100, false, domain.StatusVerified, domain.TierHigh},
		{"med tier just below high", 94.9, false, domain.StatusVerified, domain.TierMed},
		{"med tier at review floor", 85, false, domain.StatusVerified, domain.TierMed},
		{"review just below floor", 84.9, false, domain.StatusReview, ""},
		{"review at zero", 0, false, domain.StatusReview, ""},
		{"forced review overrides high confidence", 98, true, domain.StatusReview, ""},
		{"forced review overrides med confidence", 88, true, domain.StatusReview, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, tier := classifier.Classify(tt.confidence, tt.forceReview)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantTier, tier)
		})
	}
}

func TestNewClassifier(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		_, err := NewClassifier("", DefaultClassifierConfig())
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("high tier below review floor", func(t *testing.T) {
		_, err := NewClassifier("classifier", ClassifierConfig{HighTier: 80, ReviewFloor: 85})
		assert.ErrorContains(t, err, "configuration validation failed")
	})
}
