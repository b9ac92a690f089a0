package domain

// Status classifies the terminal outcome of processing one image.
type Status string

const (
	// StatusVerified means the extraction met the configured confidence bar.
	StatusVerified Status = "verified"

	// StatusUnverified means the extraction met the confidence bar but the
	// remote existence check could not be completed.
	StatusUnverified Status = "unverified"

	// StatusReview means the extraction needs manual review, either because
	// confidence fell below the bar or because the merger flagged an
	// ambiguous disagreement between engines.
	StatusReview Status = "review"

	// StatusFailed means no engine produced any normalizable text.
	StatusFailed Status = "failed"

	// StatusError means an unexpected fault occurred in the pipeline.
	StatusError Status = "error"
)

// Tier labels for verified results, used in reporting.
const (
	TierHigh = "HIGH"
	TierMed  = "MED"
)

// FinalResult is the terminal artifact of the extraction core for one
// image. Downstream consumers (file writers, reports, sync) read it and
// must not feed derived state back into the core within the same batch.
type FinalResult struct {
	// Username is the accepted canonical username, or empty on
	// failed/error outcomes.
	Username string `json:"username"`

	// Confidence is the final merged confidence on a 0-100 scale.
	Confidence float64 `json:"confidence"`

	// Status is the confidence tier classification.
	Status Status `json:"status"`

	// Tier distinguishes HIGH from MED within verified results.
	Tier string `json:"tier,omitempty"`

	// Method records which engine/merge strategy produced the username,
	// e.g. "exact_agreement" or "ocr_rescue".
	Method string `json:"method,omitempty"`

	// IsDuplicate is true when Username already exists in the registry.
	IsDuplicate bool `json:"is_duplicate"`

	// IsNearDuplicate is true when a registry member lies within the
	// configured edit-distance bound of Username.
	IsNearDuplicate bool `json:"is_near_duplicate"`

	// SimilarTo names the registry member matched by the near-duplicate
	// scan. Empty unless IsNearDuplicate is true.
	SimilarTo string `json:"similar_to,omitempty"`

	// EditDistance is the edit distance to SimilarTo. Zero unless
	// IsNearDuplicate is true.
	EditDistance int `json:"edit_distance,omitempty"`

	// Image is the source image name, attached by the batch runner.
	Image string `json:"image,omitempty"`

	// Alternatives counts the distinct candidates observed during voting,
	// keyed by canonical username. Populated for review reporting.
	Alternatives map[string]int `json:"alternatives,omitempty"`

	// Diagnostic carries the fault description for error results.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Extracted reports whether the pipeline produced a username at all.
func (r FinalResult) Extracted() bool { return r.Username != "" }

// NeedsReview reports whether the result belongs on the review list:
// review-status results, faults, and near-duplicates of known identities.
func (r FinalResult) NeedsReview() bool {
	return r.Status == StatusReview || r.Status == StatusError || r.IsNearDuplicate
}
