package consensus

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

// Correction labels recorded on EngineResult.Correction.
const (
	CorrectionDotRepair       = "dot_repair"
	CorrectionConfusionRepair = "confusion_repair"
)

// ConfusionPair is one known character-level misread. Misread is the text
// an engine tends to emit; Actual is what the glyph usually is.
type ConfusionPair struct {
	Misread string `yaml:"misread" json:"misread" validate:"required"`
	Actual  string `yaml:"actual" json:"actual" validate:"required"`
}

// DefaultConfusionPairs returns the canonical misread table, ordered by
// how often each confusion appears in practice. Order matters: the first
// pair that explains a sibling wins.
func DefaultConfusionPairs() []ConfusionPair {
	return []ConfusionPair{
		{Misread: "tf", Actual: "ff"},
		{Misread: "a", Actual: "4"},
		{Misread: "x", Actual: "d"},
		{Misread: "cl", Actual: "d"},
		{Misread: "rn", Actual: "m"},
		{Misread: "vv", Actual: "w"},
		{Misread: "ii", Actual: "u"},
		{Misread: "l", Actual: "1"},
		{Misread: "0", Actual: "o"},
		{Misread: "5", Actual: "s"},
		{Misread: "8", Actual: "b"},
	}
}

// CorrectionConfig defines the configuration parameters for the
// CorrectionLayer.
type CorrectionConfig struct {
	// DotRepairThreshold is the minimum share of the winner's confidence,
	// in percent, a dotted sibling must carry to replace the winner. A
	// value of 70 accepts siblings at 70% of the winner's score or above.
	DotRepairThreshold float64 `yaml:"dot_repair_threshold" json:"dot_repair_threshold" validate:"required,gt=0,max=100"`

	// ConfusionThreshold is the minimum share of the winner's confidence,
	// in percent, a sibling must carry to trigger a confusion repair.
	// Lower than the dot bar because a confusion match is structural, not
	// positional.
	ConfusionThreshold float64 `yaml:"confusion_threshold" json:"confusion_threshold" validate:"required,gt=0,max=100"`

	// MaxEditDistance bounds how far a confusion-repairing sibling may be
	// from the winner. Dot repair is unbounded: every recovered dot widens
	// the distance without weakening the structural match.
	MaxEditDistance int `yaml:"max_edit_distance" json:"max_edit_distance" validate:"required,min=1,max=5"`

	// Pairs is the confusion table. Defaults to DefaultConfusionPairs.
	Pairs []ConfusionPair `yaml:"pairs" json:"pairs" validate:"required,min=1,dive"`
}

// DefaultCorrectionConfig returns a CorrectionConfig with the production
// defaults.
func DefaultCorrectionConfig() CorrectionConfig {
	return CorrectionConfig{
		DotRepairThreshold: 70,
		ConfusionThreshold: 55,
		MaxEditDistance:    3,
		Pairs:              DefaultConfusionPairs(),
	}
}

// CorrectionLayer repairs a per-engine winner using its sibling candidate
// pool. At most one repair is applied per result, with dot repair taking
// priority over confusion repair: a recovered dot changes identity, a
// recovered glyph only changes spelling.
//
// The layer never invents text. Every repair adopts a string that some
// variant actually produced, along with that variant's confidence.
type CorrectionLayer struct {
	name   string
	config CorrectionConfig
	tracer trace.Tracer
}

// NewCorrectionLayer creates a new CorrectionLayer with the specified
// configuration. Returns an error if configuration validation fails.
func NewCorrectionLayer(name string, config CorrectionConfig) (*CorrectionLayer, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &CorrectionLayer{
		name:   name,
		config: config,
		tracer: otel.Tracer("correction-layer"),
	}, nil
}

// Name returns the unique identifier for this layer instance.
func (c *CorrectionLayer) Name() string { return c.name }

// Correct applies at most one repair to the winning username, searching
// the sibling pool for a dotted sibling first and a confusion sibling
// second. A repair replaces Username and Confidence with the sibling's
// and sets Correction and CorrectedFrom; the method survives unchanged.
func (c *CorrectionLayer) Correct(ctx context.Context, result domain.EngineResult) domain.EngineResult {
	_, span := c.tracer.Start(ctx, "CorrectionLayer.Correct",
		trace.WithAttributes(
			attribute.String("correction.id", c.name),
			attribute.Int("correction.siblings", len(result.Siblings)),
		),
	)
	defer span.End()

	if !result.Found() || len(result.Siblings) == 0 {
		return result
	}

	if repaired, ok := c.dotRepair(result); ok {
		span.SetAttributes(attribute.String("correction.applied", CorrectionDotRepair))
		return repaired
	}
	if repaired, ok := c.confusionRepair(result); ok {
		span.SetAttributes(attribute.String("correction.applied", CorrectionConfusionRepair))
		return repaired
	}

	return result
}

// dotRepair looks for the highest-confidence sibling that is a dotted
// sibling of the winner and carries enough of the winner's confidence.
func (c *CorrectionLayer) dotRepair(result domain.EngineResult) (domain.EngineResult, bool) {
	bar := result.Confidence * c.config.DotRepairThreshold / 100

	var best domain.Candidate
	found := false
	for _, s := range result.Siblings {
		if s.Text == result.Username || s.Confidence < bar {
			continue
		}
		if !IsDottedSibling(s.Text, result.Username) {
			continue
		}
		if !found || s.Confidence > best.Confidence {
			best = s
			found = true
		}
	}
	if !found {
		return result, false
	}

	repaired := result
	repaired.CorrectedFrom = result.Username
	repaired.Username = best.Text
	repaired.Confidence = best.Confidence
	repaired.Correction = CorrectionDotRepair
	return repaired, true
}

// confusionRepair looks for a sibling the winner becomes after fixing the
// first occurrence of a known misread. Pairs are tried in table order and
// the first explained sibling wins.
func (c *CorrectionLayer) confusionRepair(result domain.EngineResult) (domain.EngineResult, bool) {
	bar := result.Confidence * c.config.ConfusionThreshold / 100

	for _, pair := range c.config.Pairs {
		for _, s := range result.Siblings {
			if s.Text == result.Username || s.Confidence < bar {
				continue
			}
			if !replacesFirstInto(result.Username, s.Text, pair.Misread, pair.Actual) {
				continue
			}
			if d := levenshtein.ComputeDistance(s.Text, result.Username); d < 1 || d > c.config.MaxEditDistance {
				continue
			}
			repaired := result
			repaired.CorrectedFrom = result.Username
			repaired.Username = s.Text
			repaired.Confidence = s.Confidence
			repaired.Correction = CorrectionConfusionRepair
			return repaired, true
		}
	}
	return result, false
}

// replacesFirstInto reports whether replacing the first occurrence of old
// in s with repl yields target.
func replacesFirstInto(s, target, old, repl string) bool {
	if !strings.Contains(s, old) {
		return false
	}
	return strings.Replace(s, old, repl, 1) == target
}

// IsDottedSibling reports whether candidate is the dotted form of winner,
// scanning both strings left to right: characters must match, except that
// the candidate may have a '.' where the winner read an 'o'/'O'/'0', or a
// '.' the winner dropped entirely. Leftover winner characters must all be
// 'o'/'O'/'0' and leftover candidate characters must all be '.'. The
// check is asymmetric; use IsDottedVariant for the symmetric question.
func IsDottedSibling(candidate, winner string) bool {
	if candidate == winner || !strings.Contains(candidate, ".") {
		return false
	}

	ci, wi := 0, 0
	for ci < len(candidate) && wi < len(winner) {
		switch {
		case candidate[ci] == winner[wi]:
			ci++
			wi++
		case candidate[ci] != '.':
			return false
		case winner[wi] == 'o' || winner[wi] == 'O' || winner[wi] == '0':
			// Dot misread as a round glyph.
			ci++
			wi++
		default:
			// Dot dropped by the winning engine.
			ci++
		}
	}
	for ; ci < len(candidate); ci++ {
		if candidate[ci] != '.' {
			return false
		}
	}
	for ; wi < len(winner); wi++ {
		if winner[wi] != 'o' && winner[wi] != 'O' && winner[wi] != '0' {
			return false
		}
	}
	return true
}

// IsDottedVariant reports whether a and b differ only in dot placement, in
// either direction. Underscores count the same as dots for this purpose,
// since both are legal separators an engine may drop or smear.
func IsDottedVariant(a, b string) bool {
	if IsDottedSibling(a, b) || IsDottedSibling(b, a) {
		return true
	}
	return a != b && stripSeparators(a) == stripSeparators(b)
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == '_' {
			return -1
		}
		return r
	}, s)
}

// Validate checks if the layer is properly configured.
func (c *CorrectionLayer) Validate() error {
	if err := validate.Struct(c.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
