package consensus

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

// VariantReadings groups the raw readings one preprocessing variant
// produced for an image region.
type VariantReadings struct {
	// Variant names the preprocessing treatment (e.g. "balanced",
	// "aggressive", "minimal").
	Variant string

	// Readings are the engine's raw fragments for this variant.
	Readings []domain.Reading
}

// TallyCell accumulates the vote statistics for one canonical username.
type TallyCell struct {
	// WeightedCount is the variant-weighted vote count.
	WeightedCount int

	// TotalConfidence sums the raw (unweighted) confidences that
	// contributed to this username.
	TotalConfidence float64

	// MaxConfidence is the highest single contributing confidence.
	MaxConfidence float64

	// Occurrences counts contributing candidates without weighting.
	Occurrences int
}

// VoteTally maps canonical usernames to their accumulated vote statistics.
// A tally is built once per image from one engine's candidate list and
// discarded after winner selection.
type VoteTally map[string]*TallyCell

// VoterConfig defines the configuration parameters for the VariantVoter.
// All fields are validated during construction.
type VoterConfig struct {
	// ConsensusThreshold is the weighted vote count a username must reach
	// to win by consensus.
	ConsensusThreshold int `yaml:"consensus_threshold" json:"consensus_threshold" validate:"required,min=2"`

	// AggressiveVariant names the preprocessing variant whose votes carry
	// extra weight, compensating for its systematically higher recall.
	AggressiveVariant string `yaml:"aggressive_variant" json:"aggressive_variant" validate:"required"`

	// AggressiveWeight is the vote weight of the aggressive variant.
	// All other variants carry weight 1.
	AggressiveWeight int `yaml:"aggressive_weight" json:"aggressive_weight" validate:"required,min=1"`

	// MaxConcatSegments bounds how many adjacent fragments the
	// segment-concatenation pass may join.
	MaxConcatSegments int `yaml:"max_concat_segments" json:"max_concat_segments" validate:"required,min=2,max=8"`

	// ConcatConfidenceRatio is the fraction of the current best confidence
	// a strictly longer concatenated candidate must reach to replace it.
	ConcatConfidenceRatio float64 `yaml:"concat_confidence_ratio" json:"concat_confidence_ratio" validate:"gt=0,max=1"`

	// MinConcatLength is the minimum username length a concatenated
	// candidate must have to be considered at all.
	MinConcatLength int `yaml:"min_concat_length" json:"min_concat_length" validate:"min=0"`
}

// DefaultVoterConfig returns a VoterConfig with the production defaults.
func DefaultVoterConfig() VoterConfig {
	return VoterConfig{
		ConsensusThreshold:    3,
		AggressiveVariant:     "aggressive",
		AggressiveWeight:      2,
		MaxConcatSegments:     4,
		ConcatConfidenceRatio: 0.85,
		MinConcatLength:       4,
	}
}

// VariantVoter aggregates candidates produced by several preprocessing
// variants of the same recognition engine and selects one winner.
//
// The voter is deterministic: the same candidates with the same weights
// always produce the same EngineResult. It is stateless and thread-safe
// for concurrent execution.
type VariantVoter struct {
	name   string
	config VoterConfig
	tracer trace.Tracer
}

// NewVariantVoter creates a new VariantVoter with the specified
// configuration. Returns an error if configuration validation fails.
func NewVariantVoter(name string, config VoterConfig) (*VariantVoter, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &VariantVoter{
		name:   name,
		config: config,
		tracer: otel.Tracer("variant-voter"),
	}, nil
}

// Name returns the unique identifier for this voter instance.
func (v *VariantVoter) Name() string { return v.name }

// CollectCandidates reduces each variant's raw readings to at most one
// candidate: the highest-confidence normalizable fragment, possibly
// replaced by a segment-concatenation of adjacent fragments.
//
// A concatenated candidate (confidence = minimum of its constituent
// fragments) replaces the per-variant best only when it is normalizable
// and either strictly longer with confidence at least
// ConcatConfidenceRatio of the current best, or equal length with
// strictly higher confidence.
func (v *VariantVoter) CollectCandidates(ctx context.Context, variants []VariantReadings) []domain.Candidate {
	_, span := v.tracer.Start(ctx, "VariantVoter.CollectCandidates",
		trace.WithAttributes(
			attribute.String("voter.id", v.name),
			attribute.Int("voter.variants", len(variants)),
		),
	)
	defer span.End()

	candidates := make([]domain.Candidate, 0, len(variants))
	for _, vr := range variants {
		best, ok := v.bestReading(vr.Readings)
		if concat, cok := v.bestConcatenation(vr.Readings, best, ok); cok {
			best, ok = concat, true
		}
		if ok {
			candidates = append(candidates, domain.Candidate{
				Text:       best.Text,
				Confidence: best.Confidence,
				Source:     vr.Variant,
			})
		}
	}

	span.SetAttributes(attribute.Int("voter.candidates", len(candidates)))
	return candidates
}

// bestReading picks the highest-confidence normalizable fragment and
// rescales its confidence to 0-100.
func (v *VariantVoter) bestReading(readings []domain.Reading) (domain.Candidate, bool) {
	var best domain.Candidate
	found := false
	for _, r := range readings {
		username, ok := domain.Normalize(r.Text)
		if !ok {
			continue
		}
		conf := domain.ClampConfidence(r.Confidence * 100)
		if !found || conf > best.Confidence {
			best = domain.Candidate{Text: username, Confidence: conf}
			found = true
		}
	}
	return best, found
}

// bestConcatenation tries progressive left-to-right concatenations of
// adjacent fragments and returns a replacement candidate when one
// qualifies against the current best.
func (v *VariantVoter) bestConcatenation(readings []domain.Reading, current domain.Candidate, haveCurrent bool) (domain.Candidate, bool) {
	if len(readings) < 2 {
		return domain.Candidate{}, false
	}

	ordered := make([]domain.Reading, len(readings))
	copy(ordered, readings)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CenterX < ordered[j].CenterX })

	best, found := current, false
	for start := range ordered {
		combined := ""
		minConf := 101.0
		end := start + v.config.MaxConcatSegments
		if end > len(ordered) {
			end = len(ordered)
		}
		for i := start; i < end; i++ {
			combined += ordered[i].Text
			if c := domain.ClampConfidence(ordered[i].Confidence * 100); c < minConf {
				minConf = c
			}
			if i == start {
				continue
			}

			username, ok := domain.Normalize(combined)
			if !ok || len(username) < v.config.MinConcatLength {
				continue
			}

			candidate := domain.Candidate{Text: username, Confidence: minConf}
			if v.replacesBest(candidate, best, haveCurrent || found) {
				best = candidate
				found = true
			}
		}
	}

	return best, found
}

func (v *VariantVoter) replacesBest(candidate, best domain.Candidate, haveBest bool) bool {
	if !haveBest {
		return true
	}
	if len(candidate.Text) > len(best.Text) {
		return candidate.Confidence >= best.Confidence*v.config.ConcatConfidenceRatio
	}
	if len(candidate.Text) == len(best.Text) {
		return candidate.Confidence > best.Confidence
	}
	return false
}

// TallyVotes builds the weighted vote tally for a candidate list.
func (v *VariantVoter) TallyVotes(candidates []domain.Candidate) VoteTally {
	tally := make(VoteTally, len(candidates))
	for _, c := range candidates {
		cell, ok := tally[c.Text]
		if !ok {
			cell = &TallyCell{}
			tally[c.Text] = cell
		}
		weight := 1
		if c.Source == v.config.AggressiveVariant {
			weight = v.config.AggressiveWeight
		}
		cell.WeightedCount += weight
		cell.TotalConfidence += c.Confidence
		if c.Confidence > cell.MaxConfidence {
			cell.MaxConfidence = c.Confidence
		}
		cell.Occurrences++
	}
	return tally
}

// Vote selects one winner from the candidate list.
//
// A username wins by consensus when its weighted vote count reaches the
// configured threshold; among qualifying usernames, the highest weighted
// count wins, with ties broken by mean raw confidence. When no username
// reaches the threshold, the single highest-confidence candidate wins by
// the highest_confidence method. An empty candidate list yields a result
// with method none.
func (v *VariantVoter) Vote(ctx context.Context, candidates []domain.Candidate) domain.EngineResult {
	_, span := v.tracer.Start(ctx, "VariantVoter.Vote",
		trace.WithAttributes(
			attribute.String("voter.id", v.name),
			attribute.Int("voter.candidates", len(candidates)),
		),
	)
	defer span.End()

	if len(candidates) == 0 {
		span.SetAttributes(attribute.String("voter.method", string(domain.VoteNone)))
		return domain.EngineResult{Method: domain.VoteNone}
	}

	tally := v.TallyVotes(candidates)

	type scored struct {
		username string
		cell     *TallyCell
	}
	ranked := make([]scored, 0, len(tally))
	for username, cell := range tally {
		ranked = append(ranked, scored{username, cell})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.cell.WeightedCount != b.cell.WeightedCount {
			return a.cell.WeightedCount > b.cell.WeightedCount
		}
		avgA := a.cell.TotalConfidence / float64(a.cell.Occurrences)
		avgB := b.cell.TotalConfidence / float64(b.cell.Occurrences)
		if avgA != avgB {
			return avgA > avgB
		}
		// Lexicographic order keeps full ties deterministic.
		return a.username < b.username
	})

	if top := ranked[0]; top.cell.WeightedCount >= v.config.ConsensusThreshold {
		span.SetAttributes(
			attribute.String("voter.method", string(domain.VoteConsensus)),
			attribute.Int("voter.weighted_count", top.cell.WeightedCount),
		)
		return domain.EngineResult{
			Username:   top.username,
			Confidence: domain.ClampConfidence(top.cell.TotalConfidence / float64(top.cell.Occurrences)),
			Method:     domain.VoteConsensus,
			Siblings:   candidates,
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}

	span.SetAttributes(attribute.String("voter.method", string(domain.VoteHighestConfidence)))
	return domain.EngineResult{
		Username:   best.Text,
		Confidence: domain.ClampConfidence(best.Confidence),
		Method:     domain.VoteHighestConfidence,
		Siblings:   candidates,
	}
}

// Validate checks if the voter is properly configured.
func (v *VariantVoter) Validate() error {
	if err := validate.Struct(v.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
