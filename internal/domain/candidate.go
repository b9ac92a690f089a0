package domain

// Candidate is a single normalized reading produced by one engine/variant
// pair for one image region. Candidates are ephemeral: they exist only for
// the duration of voting and correction on a single image.
type Candidate struct {
	// Text is the canonical username form of the reading.
	Text string `json:"text"`

	// Confidence is the reading confidence on a 0-100 scale.
	Confidence float64 `json:"confidence"`

	// Source tags the preprocessing variant that produced this candidate,
	// which determines its voting weight.
	Source string `json:"source"`
}

// Reading is one raw text fragment returned by a recognition engine before
// normalization. Confidence is the engine's native 0-1 signal; CenterX is
// the horizontal center of the fragment's bounding region, used to order
// disjoint fragments for segment concatenation.
type Reading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	CenterX    float64 `json:"center_x"`
}

// VoteMethod identifies how a per-engine winner was selected.
type VoteMethod string

const (
	// VoteConsensus means the winner's weighted vote count met the
	// consensus threshold across preprocessing variants.
	VoteConsensus VoteMethod = "consensus"

	// VoteHighestConfidence means no candidate met the consensus threshold
	// and the single highest-confidence candidate was taken instead.
	VoteHighestConfidence VoteMethod = "highest_confidence"

	// VoteNone means no candidate survived normalization.
	VoteNone VoteMethod = "none"
)

// EngineResult is the outcome of one recognition engine for one image:
// the per-engine winning username, its confidence on a 0-100 scale, how it
// won, and the full candidate pool it was chosen from. The sibling pool is
// retained so the correction layer can search it for repairs.
//
// EngineResult is a pure function of its candidate input: the same
// candidates with the same weights always produce the same result.
type EngineResult struct {
	Username   string      `json:"username"`
	Confidence float64     `json:"confidence"`
	Method     VoteMethod  `json:"method"`
	Siblings   []Candidate `json:"siblings,omitempty"`

	// Correction names the repair applied after voting ("dot_repair" or
	// "confusion_repair"), or is empty when the winner stood unchanged.
	Correction string `json:"correction,omitempty"`

	// CorrectedFrom preserves the pre-repair winner for diagnostics.
	CorrectedFrom string `json:"corrected_from,omitempty"`
}

// Found reports whether the engine produced any usable username.
func (r EngineResult) Found() bool { return r.Username != "" && r.Method != VoteNone }

// HolisticReading is the single best reading from the holistic model-based
// engine, together with the diagnostic metadata used to score it. The
// metadata only ever adjusts Confidence; it never changes Username.
type HolisticReading struct {
	// Username is the normalized username, or empty when the model's
	// response did not survive normalization.
	Username string `json:"username"`

	// Confidence is the derived confidence on a 0-100 scale.
	Confidence float64 `json:"confidence"`

	// Raw preserves the model's response text for diagnostics.
	Raw string `json:"raw,omitempty"`

	// Hedged is true when the response contained hedging language.
	Hedged bool `json:"hedged"`

	// FormatValid is true when the username passes the acceptance predicate.
	FormatValid bool `json:"format_valid"`

	// UnusualPattern is true when the username looks garbled.
	UnusualPattern bool `json:"unusual_pattern"`
}

// ClampConfidence bounds a confidence score to the canonical [0,100] range.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
