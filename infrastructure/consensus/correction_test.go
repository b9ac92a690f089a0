package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

func newTestCorrection(t *testing.T) *CorrectionLayer {
	t.Helper()
	layer, err := NewCorrectionLayer("test-correction", DefaultCorrectionConfig())
	require.NoError(t, err)
	return layer
}

func TestCorrect(t *testing.T) {
	layer := newTestCorrection(t)
	ctx := context.Background()

	t.Run("dot repair from dropped separator", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "johndoe",
			Confidence: 82,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "johndoe", Confidence: 85, Source: "balanced"},
				{Text: "john.doe", Confidence: 78, Source: "minimal"},
			},
		})
		assert.Equal(t, "john.doe", result.Username)
		assert.Equal(t, CorrectionDotRepair, result.Correction)
		assert.Equal(t, "johndoe", result.CorrectedFrom)
		// The sibling's confidence comes along with its text; the method
		// survives unchanged.
		assert.InDelta(t, 78, result.Confidence, 0.001)
		assert.Equal(t, domain.VoteConsensus, result.Method)
	})

	t.Run("dot repair from misread glyph", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "johnodoe",
			Confidence: 80,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "john.doe", Confidence: 75, Source: "minimal"},
			},
		})
		assert.Equal(t, "john.doe", result.Username)
		assert.Equal(t, CorrectionDotRepair, result.Correction)
		assert.InDelta(t, 75, result.Confidence, 0.001)
	})

	t.Run("dot repair prefers highest confidence sibling", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "johndoe",
			Confidence: 80,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "john.doe", Confidence: 72, Source: "balanced"},
				{Text: "jo.hndoe", Confidence: 88, Source: "minimal"},
			},
		})
		assert.Equal(t, "jo.hndoe", result.Username)
		assert.InDelta(t, 88, result.Confidence, 0.001)
	})

	t.Run("dot bar scales with the winner's confidence", func(t *testing.T) {
		// 68 clears 70% of 95 (66.5) even though it sits below the raw
		// threshold value.
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "johnodoe",
			Confidence: 95,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "john.doe", Confidence: 68, Source: "minimal"},
			},
		})
		assert.Equal(t, "john.doe", result.Username)
		assert.Equal(t, CorrectionDotRepair, result.Correction)
	})

	t.Run("dotted sibling below the relative bar is ignored", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "johndoe",
			Confidence: 95,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "john.doe", Confidence: 65, Source: "minimal"},
			},
		})
		assert.Equal(t, "johndoe", result.Username)
		assert.Empty(t, result.Correction)
	})

	t.Run("dot repair recovers several dropped dots", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "janesmith",
			Confidence: 80,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "j.a.n.e.smith", Confidence: 70, Source: "minimal"},
			},
		})
		assert.Equal(t, "j.a.n.e.smith", result.Username)
		assert.Equal(t, CorrectionDotRepair, result.Correction)
	})

	t.Run("confusion repair", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "rnike_s",
			Confidence: 75,
			Method:     domain.VoteHighestConfidence,
			Siblings: []domain.Candidate{
				{Text: "mike_s", Confidence: 60, Source: "minimal"},
			},
		})
		assert.Equal(t, "mike_s", result.Username)
		assert.Equal(t, CorrectionConfusionRepair, result.Correction)
		assert.Equal(t, "rnike_s", result.CorrectedFrom)
		assert.InDelta(t, 60, result.Confidence, 0.001)
	})

	t.Run("confusion repair never replaces a clean winner", func(t *testing.T) {
		// The sibling is the misread form; the winner already carries the
		// corrected glyph and must stand.
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "mike.s",
			Confidence: 90,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "rnike.s", Confidence: 80, Source: "minimal"},
			},
		})
		assert.Equal(t, "mike.s", result.Username)
		assert.Empty(t, result.Correction)
	})

	t.Run("dot repair outranks confusion repair", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "rnikes",
			Confidence: 75,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "mikes", Confidence: 90, Source: "balanced"},
				{Text: "rni.kes", Confidence: 72, Source: "minimal"},
			},
		})
		assert.Equal(t, "rni.kes", result.Username)
		assert.Equal(t, CorrectionDotRepair, result.Correction)
	})

	t.Run("no repair without siblings", func(t *testing.T) {
		input := domain.EngineResult{
			Username:   "john.doe",
			Confidence: 90,
			Method:     domain.VoteConsensus,
		}
		assert.Equal(t, input, layer.Correct(ctx, input))
	})

	t.Run("no repair for empty result", func(t *testing.T) {
		input := domain.EngineResult{Method: domain.VoteNone}
		assert.Equal(t, input, layer.Correct(ctx, input))
	})

	t.Run("unrelated siblings leave winner unchanged", func(t *testing.T) {
		result := layer.Correct(ctx, domain.EngineResult{
			Username:   "john.doe",
			Confidence: 90,
			Method:     domain.VoteConsensus,
			Siblings: []domain.Candidate{
				{Text: "completely.other", Confidence: 95, Source: "minimal"},
			},
		})
		assert.Equal(t, "john.doe", result.Username)
		assert.Empty(t, result.Correction)
	})
}

func TestIsDottedSibling(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		winner    string
		want      bool
	}{
		{"dot where winner read o", "john.doe", "johnodoe", true},
		{"dot where winner read zero", "john.doe", "john0doe", true},
		{"dot the winner dropped", "john.doe", "johndoe", true},
		{"multiple dropped dots", "j.a.n.e", "jane", true},
		{"misread and dropped dots mixed", "j.hn.doe", "johndoe", true},
		{"trailing dot the winner dropped", "jane.", "jane", true},
		{"asymmetric: candidate without dot", "johndoe", "john.doe", false},
		{"identical strings", "john.doe", "john.doe", false},
		{"letter difference is not a dot repair", "john.dot", "johnodoe", false},
		{"shorter candidate", "jo.n", "john", false},
		{"longer with extra letters", "john.doex", "johndoe", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDottedSibling(tt.candidate, tt.winner))
		})
	}
}

func TestIsDottedVariant(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"either direction", "johndoe", "john.doe", true},
		{"separator shuffle", "john.doe", "john_doe", true},
		{"underscore dropped", "john_doe", "johndoe", true},
		{"identical strings", "john.doe", "john.doe", false},
		{"different letters", "john.doe", "jane.doe", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDottedVariant(tt.a, tt.b))
		})
	}
}
