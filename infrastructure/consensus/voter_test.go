package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

func newTestVoter(t *testing.T) *VariantVoter {
	t.Helper()
	voter, err := NewVariantVoter("test-voter", DefaultVoterConfig())
	require.NoError(t, err)
	return voter
}

func TestNewVariantVoter(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		voter, err := NewVariantVoter("voter", DefaultVoterConfig())
		require.NoError(t, err)
		assert.Equal(t, "voter", voter.Name())
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewVariantVoter("", DefaultVoterConfig())
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("invalid threshold", func(t *testing.T) {
		config := DefaultVoterConfig()
		config.ConsensusThreshold = 1
		_, err := NewVariantVoter("voter", config)
		assert.ErrorContains(t, err, "configuration validation failed")
	})
}

func TestCollectCandidates(t *testing.T) {
	voter := newTestVoter(t)
	ctx := context.Background()

	t.Run("picks highest confidence normalizable fragment", func(t *testing.T) {
		candidates := voter.CollectCandidates(ctx, []VariantReadings{
			{
				Variant: "balanced",
				Readings: []domain.Reading{
					{Text: "john.doe", Confidence: 0.80, CenterX: 10},
					{Text: "JOHN.DOE", Confidence: 0.92, CenterX: 10},
					{Text: "!!!", Confidence: 0.99, CenterX: 10},
				},
			},
		})
		require.Len(t, candidates, 1)
		assert.Equal(t, "john.doe", candidates[0].Text)
		assert.InDelta(t, 92, candidates[0].Confidence, 0.001)
		assert.Equal(t, "balanced", candidates[0].Source)
	})

	t.Run("variant with no normalizable text yields no candidate", func(t *testing.T) {
		candidates := voter.CollectCandidates(ctx, []VariantReadings{
			{Variant: "balanced", Readings: []domain.Reading{{Text: "###", Confidence: 0.9}}},
			{Variant: "minimal", Readings: []domain.Reading{{Text: "john", Confidence: 0.7}}},
		})
		require.Len(t, candidates, 1)
		assert.Equal(t, "minimal", candidates[0].Source)
	})

	t.Run("concatenation replaces shorter best", func(t *testing.T) {
		candidates := voter.CollectCandidates(ctx, []VariantReadings{
			{
				Variant: "balanced",
				Readings: []domain.Reading{
					{Text: "doe_99", Confidence: 0.88, CenterX: 50},
					{Text: "john.", Confidence: 0.90, CenterX: 10},
				},
			},
		})
		require.Len(t, candidates, 1)
		assert.Equal(t, "john.doe_99", candidates[0].Text)
		// Concatenated confidence is the minimum of the fragments.
		assert.InDelta(t, 88, candidates[0].Confidence, 0.001)
	})

	t.Run("low confidence concatenation does not replace", func(t *testing.T) {
		candidates := voter.CollectCandidates(ctx, []VariantReadings{
			{
				Variant: "balanced",
				Readings: []domain.Reading{
					{Text: "noise", Confidence: 0.30, CenterX: 50},
					{Text: "john.doe", Confidence: 0.90, CenterX: 10},
				},
			},
		})
		require.Len(t, candidates, 1)
		assert.Equal(t, "john.doe", candidates[0].Text)
		assert.InDelta(t, 90, candidates[0].Confidence, 0.001)
	})

	t.Run("short concatenation is ignored", func(t *testing.T) {
		candidates := voter.CollectCandidates(ctx, []VariantReadings{
			{
				Variant: "balanced",
				Readings: []domain.Reading{
					{Text: "ab", Confidence: 0.90, CenterX: 10},
					{Text: "c", Confidence: 0.90, CenterX: 20},
				},
			},
		})
		require.Len(t, candidates, 1)
		assert.Equal(t, "ab", candidates[0].Text)
	})
}

func TestVote(t *testing.T) {
	voter := newTestVoter(t)
	ctx := context.Background()

	t.Run("empty candidates", func(t *testing.T) {
		result := voter.Vote(ctx, nil)
		assert.Equal(t, domain.VoteNone, result.Method)
		assert.False(t, result.Found())
	})

	t.Run("three variant consensus", func(t *testing.T) {
		result := voter.Vote(ctx, []domain.Candidate{
			{Text: "john.doe", Confidence: 90, Source: "balanced"},
			{Text: "john.doe", Confidence: 80, Source: "aggressive"},
			{Text: "john.doe", Confidence: 85, Source: "minimal"},
		})
		assert.Equal(t, domain.VoteConsensus, result.Method)
		assert.Equal(t, "john.doe", result.Username)
		assert.InDelta(t, 85, result.Confidence, 0.001)
		assert.Len(t, result.Siblings, 3)
	})

	t.Run("aggressive weight reaches threshold with two variants", func(t *testing.T) {
		result := voter.Vote(ctx, []domain.Candidate{
			{Text: "john.doe", Confidence: 90, Source: "balanced"},
			{Text: "john.doe", Confidence: 80, Source: "aggressive"},
			{Text: "other", Confidence: 99, Source: "minimal"},
		})
		assert.Equal(t, domain.VoteConsensus, result.Method)
		assert.Equal(t, "john.doe", result.Username)
	})

	t.Run("two unweighted variants fall short", func(t *testing.T) {
		result := voter.Vote(ctx, []domain.Candidate{
			{Text: "john.doe", Confidence: 70, Source: "balanced"},
			{Text: "john.doe", Confidence: 72, Source: "minimal"},
			{Text: "other", Confidence: 95, Source: "aggressive"},
		})
		assert.Equal(t, domain.VoteHighestConfidence, result.Method)
		assert.Equal(t, "other", result.Username)
		assert.InDelta(t, 95, result.Confidence, 0.001)
	})

	t.Run("highest confidence fallback", func(t *testing.T) {
		result := voter.Vote(ctx, []domain.Candidate{
			{Text: "aaa", Confidence: 60, Source: "balanced"},
			{Text: "bbb", Confidence: 75, Source: "minimal"},
		})
		assert.Equal(t, domain.VoteHighestConfidence, result.Method)
		assert.Equal(t, "bbb", result.Username)
	})

	t.Run("deterministic across repeated calls", func(t *testing.T) {
		candidates := []domain.Candidate{
			{Text: "john.doe", Confidence: 90, Source: "balanced"},
			{Text: "john.d0e", Confidence: 90, Source: "aggressive"},
			{Text: "john.doe", Confidence: 80, Source: "minimal"},
		}
		first := voter.Vote(ctx, candidates)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, voter.Vote(ctx, candidates))
		}
	})
}

func TestTallyVotes(t *testing.T) {
	voter := newTestVoter(t)

	tally := voter.TallyVotes([]domain.Candidate{
		{Text: "john.doe", Confidence: 90, Source: "balanced"},
		{Text: "john.doe", Confidence: 80, Source: "aggressive"},
		{Text: "other", Confidence: 70, Source: "minimal"},
	})

	require.Contains(t, tally, "john.doe")
	assert.Equal(t, 3, tally["john.doe"].WeightedCount)
	assert.Equal(t, 2, tally["john.doe"].Occurrences)
	assert.InDelta(t, 170, tally["john.doe"].TotalConfidence, 0.001)
	assert.InDelta(t, 90, tally["john.doe"].MaxConfidence, 0.001)
	assert.Equal(t, 1, tally["other"].WeightedCount)
}
