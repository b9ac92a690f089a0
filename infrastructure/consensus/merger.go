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

// Merge strategy tags, recorded verbatim in FinalResult.Method so reports
// can show how each username was decided.
const (
	StrategyExactAgreement   = "exact_agreement"
	StrategyDotReconciledVLM = "dot_reconciled_vlm"
	StrategyDotReconciledOCR = "dot_reconciled_ocr"
	StrategyConfusion        = "confusion_corrected"
	StrategyVLMLonger        = "vlm_longer_variant"
	StrategyOCRLonger        = "ocr_longer_variant"
	StrategyVLMConfMatch     = "vlm_confidence_match"
	StrategyOCRConfMatch     = "ocr_confidence_match"
	StrategyVLMDominance     = "vlm_disagreement_win"
	StrategyOCRDominance     = "ocr_disagreement_win"
	StrategyAmbiguous        = "ambiguous_disagreement"
)

// MergeOutcome is the merger's verdict when both engines produced a
// username.
type MergeOutcome struct {
	// Username is the reconciled winner.
	Username string `json:"username"`

	// Confidence is the reconciled confidence on a 0-100 scale.
	Confidence float64 `json:"confidence"`

	// Strategy names the reconciliation rule that fired.
	Strategy string `json:"strategy"`

	// EditDistance is the edit distance between the two engine texts.
	EditDistance int `json:"edit_distance"`

	// ForceReview is set when the engines disagreed with no structural
	// explanation. It routes the result to manual review regardless of the
	// final confidence score.
	ForceReview bool `json:"force_review"`
}

// MergerConfig defines the configuration parameters for the EngineMerger.
// All bonuses, penalties, and floors operate on the 0-100 scale.
type MergerConfig struct {
	// AgreementBonus is added when both engines produced the same text.
	AgreementBonus float64 `yaml:"agreement_bonus" json:"agreement_bonus" validate:"min=0,max=20"`

	// AgreementCap bounds the boosted agreement confidence.
	AgreementCap float64 `yaml:"agreement_cap" json:"agreement_cap" validate:"required,gt=0,max=100"`

	// DotBonus is added when the texts differ only in dot placement.
	DotBonus float64 `yaml:"dot_bonus" json:"dot_bonus" validate:"min=0,max=20"`

	// ConfusionConfidence is the fixed confidence assigned when one text is
	// a known misread of the other. Fixed rather than derived because the
	// engines' own scores are unreliable on exactly the glyphs that confuse
	// them.
	ConfusionConfidence float64 `yaml:"confusion_confidence" json:"confusion_confidence" validate:"required,gt=0,max=100"`

	// MinorEditDistance is the largest edit distance still treated as a
	// spelling-level difference rather than a disagreement.
	MinorEditDistance int `yaml:"minor_edit_distance" json:"minor_edit_distance" validate:"required,min=1,max=4"`

	// DominanceMargin is the confidence gap at which one engine simply
	// outranks the other.
	DominanceMargin float64 `yaml:"dominance_margin" json:"dominance_margin" validate:"required,gt=0,max=50"`

	// DominanceDiscount is subtracted from the dominant engine's
	// confidence, acknowledging the unexplained disagreement.
	DominanceDiscount float64 `yaml:"dominance_discount" json:"dominance_discount" validate:"min=0,max=30"`

	// DominanceFloor bounds the discounted dominance confidence from below.
	DominanceFloor float64 `yaml:"dominance_floor" json:"dominance_floor" validate:"required,gt=0,max=100"`

	// AmbiguousPenalty is subtracted from the holistic engine's confidence
	// on an unexplained close disagreement.
	AmbiguousPenalty float64 `yaml:"ambiguous_penalty" json:"ambiguous_penalty" validate:"min=0,max=30"`

	// AmbiguousFloor bounds the penalized ambiguous confidence from below.
	AmbiguousFloor float64 `yaml:"ambiguous_floor" json:"ambiguous_floor" validate:"required,gt=0,max=100"`

	// Pairs is the confusion table shared with the correction layer.
	Pairs []ConfusionPair `yaml:"pairs" json:"pairs" validate:"required,min=1,dive"`
}

// DefaultMergerConfig returns a MergerConfig with the production defaults.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{
		AgreementBonus:      5,
		AgreementCap:        95,
		DotBonus:            3,
		ConfusionConfidence: 88,
		MinorEditDistance:   2,
		DominanceMargin:     10,
		DominanceDiscount:   10,
		DominanceFloor:      75,
		AmbiguousPenalty:    15,
		AmbiguousFloor:      70,
		Pairs:               DefaultConfusionPairs(),
	}
}

// EngineMerger reconciles the classical engine's corrected result with the
// holistic engine's reading into one final username and confidence.
//
// Reconciliation strategies are tried strictly in order, most structural
// first: exact agreement, dot reconciliation, confusion correction, minor
// spelling differences, confidence dominance, and finally ambiguous
// disagreement. The first strategy that explains the pair decides the
// outcome.
type EngineMerger struct {
	name   string
	config MergerConfig
	tracer trace.Tracer
}

// NewEngineMerger creates a new EngineMerger with the specified
// configuration. Returns an error if configuration validation fails.
func NewEngineMerger(name string, config MergerConfig) (*EngineMerger, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &EngineMerger{
		name:   name,
		config: config,
		tracer: otel.Tracer("engine-merger"),
	}, nil
}

// Name returns the unique identifier for this merger instance.
func (m *EngineMerger) Name() string { return m.name }

// Merge reconciles the two engine outcomes. Both inputs must carry a
// non-empty username; single-engine degradation is handled upstream.
func (m *EngineMerger) Merge(ctx context.Context, ocr domain.EngineResult, vlm domain.HolisticReading) MergeOutcome {
	_, span := m.tracer.Start(ctx, "EngineMerger.Merge",
		trace.WithAttributes(
			attribute.String("merger.id", m.name),
			attribute.String("merger.ocr", ocr.Username),
			attribute.String("merger.vlm", vlm.Username),
		),
	)
	defer span.End()

	outcome := m.merge(ocr, vlm)

	span.SetAttributes(
		attribute.String("merger.strategy", outcome.Strategy),
		attribute.Float64("merger.confidence", outcome.Confidence),
		attribute.Bool("merger.force_review", outcome.ForceReview),
	)
	return outcome
}

func (m *EngineMerger) merge(ocr domain.EngineResult, vlm domain.HolisticReading) MergeOutcome {
	dist := levenshtein.ComputeDistance(ocr.Username, vlm.Username)
	maxConf := ocr.Confidence
	if vlm.Confidence > maxConf {
		maxConf = vlm.Confidence
	}

	// Exact agreement: two independent engines reading the same string is
	// the strongest possible signal.
	if ocr.Username == vlm.Username {
		conf := maxConf + m.config.AgreementBonus
		if conf > m.config.AgreementCap {
			conf = m.config.AgreementCap
		}
		return MergeOutcome{
			Username:   ocr.Username,
			Confidence: domain.ClampConfidence(conf),
			Strategy:   StrategyExactAgreement,
		}
	}

	// Dot reconciliation: same letters, different dot placement. The
	// holistic engine keeps separators more reliably, so its reading wins
	// whenever it shows one; only a separator-free holistic reading cedes
	// to the classical side. The chosen side carries its own confidence
	// plus a small structural bonus.
	if IsDottedVariant(ocr.Username, vlm.Username) {
		username, strategy, conf := ocr.Username, StrategyDotReconciledOCR, ocr.Confidence
		if strings.ContainsAny(vlm.Username, "._") {
			username, strategy, conf = vlm.Username, StrategyDotReconciledVLM, vlm.Confidence
		}
		return MergeOutcome{
			Username:     username,
			Confidence:   domain.ClampConfidence(conf + m.config.DotBonus),
			Strategy:     strategy,
			EditDistance: dist,
		}
	}

	// Confusion correction: one text is a known misread of the other.
	// The corrected side (the one the misread maps onto) wins at a fixed
	// confidence.
	for _, pair := range m.config.Pairs {
		if replacesFirstInto(ocr.Username, vlm.Username, pair.Misread, pair.Actual) {
			return MergeOutcome{
				Username:     vlm.Username,
				Confidence:   m.config.ConfusionConfidence,
				Strategy:     StrategyConfusion,
				EditDistance: dist,
			}
		}
		if replacesFirstInto(vlm.Username, ocr.Username, pair.Misread, pair.Actual) {
			return MergeOutcome{
				Username:     ocr.Username,
				Confidence:   m.config.ConfusionConfidence,
				Strategy:     StrategyConfusion,
				EditDistance: dist,
			}
		}
	}

	// Minor spelling difference: within the minor edit-distance bound the
	// longer text wins (engines truncate more often than they pad); at
	// equal lengths the more confident side wins.
	if dist <= m.config.MinorEditDistance {
		switch {
		case len(vlm.Username) > len(ocr.Username):
			return MergeOutcome{
				Username:     vlm.Username,
				Confidence:   domain.ClampConfidence(vlm.Confidence),
				Strategy:     StrategyVLMLonger,
				EditDistance: dist,
			}
		case len(ocr.Username) > len(vlm.Username):
			return MergeOutcome{
				Username:     ocr.Username,
				Confidence:   domain.ClampConfidence(ocr.Confidence),
				Strategy:     StrategyOCRLonger,
				EditDistance: dist,
			}
		case vlm.Confidence >= ocr.Confidence:
			return MergeOutcome{
				Username:     vlm.Username,
				Confidence:   domain.ClampConfidence(vlm.Confidence),
				Strategy:     StrategyVLMConfMatch,
				EditDistance: dist,
			}
		default:
			return MergeOutcome{
				Username:     ocr.Username,
				Confidence:   domain.ClampConfidence(ocr.Confidence),
				Strategy:     StrategyOCRConfMatch,
				EditDistance: dist,
			}
		}
	}

	// Confidence dominance: a large unexplained disagreement, but one
	// engine clearly outranks the other. The winner pays a discount for
	// the disagreement.
	gap := ocr.Confidence - vlm.Confidence
	if gap < 0 {
		gap = -gap
	}
	if gap >= m.config.DominanceMargin {
		username, strategy, conf := vlm.Username, StrategyVLMDominance, vlm.Confidence
		if ocr.Confidence > vlm.Confidence {
			username, strategy, conf = ocr.Username, StrategyOCRDominance, ocr.Confidence
		}
		conf -= m.config.DominanceDiscount
		if conf < m.config.DominanceFloor {
			conf = m.config.DominanceFloor
		}
		return MergeOutcome{
			Username:     username,
			Confidence:   domain.ClampConfidence(conf),
			Strategy:     strategy,
			EditDistance: dist,
		}
	}

	// Ambiguous disagreement: nothing explains the difference and neither
	// engine dominates. The holistic reading is kept as the provisional
	// answer, penalized, and always routed to review.
	conf := vlm.Confidence - m.config.AmbiguousPenalty
	if conf < m.config.AmbiguousFloor {
		conf = m.config.AmbiguousFloor
	}
	return MergeOutcome{
		Username:     vlm.Username,
		Confidence:   domain.ClampConfidence(conf),
		Strategy:     StrategyAmbiguous,
		EditDistance: dist,
		ForceReview:  true,
	}
}

// Validate checks if the merger is properly configured.
func (m *EngineMerger) Validate() error {
	if err := validate.Struct(m.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
