// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

// Recognizer is the multi-pass classical recognition engine. One engine
// instance serves every preprocessing variant; the variant name selects
// which preprocessed rendition of the image region to read.
//
// The engine is a black box: it maps an image region to a list of raw
// (text, confidence) readings with confidence on its native 0-1 scale.
// The core rescales to 0-100 and makes no assumption about how the engine
// computed the value. Implementations must be safe for concurrent use,
// since each batch worker invokes the shared engine independently.
type Recognizer interface {
	// Recognize reads the image region after applying the named
	// preprocessing variant. Multiple readings represent disjoint text
	// fragments with spatial ordering (left to right by CenterX).
	// Engine inference may block; implementations should respect context
	// cancellation.
	Recognize(ctx context.Context, image []byte, variant string) ([]domain.Reading, error)
}

// HolisticEngine is the model-based engine that reads the raw image region
// with no preprocessing and returns at most one best reading, plus
// diagnostic metadata used only to adjust confidence.
type HolisticEngine interface {
	// Read extracts a single username reading from the image region.
	// A reading with an empty Username means the model responded but the
	// response did not survive normalization; an error means the engine
	// itself failed or timed out.
	Read(ctx context.Context, image []byte) (domain.HolisticReading, error)
}

// RegistrySource materializes the identity registry at batch start. The
// core does not care how the set was derived (file, database, cache); only
// that membership tests operate over the returned snapshot. Loading is
// best-effort duplicate avoidance: entries that do not parse are skipped,
// never surfaced as errors.
type RegistrySource interface {
	Load(ctx context.Context) (*domain.Registry, error)
}

// ExistenceChecker verifies that an extracted username corresponds to a
// live remote profile. It runs only in the sequential merge phase and its
// outcome annotates reporting; it never feeds back into the core.
type ExistenceChecker interface {
	// Exists returns whether the profile exists. The second value is false
	// when the check could not be completed (network fault), in which case
	// the first value is meaningless.
	Exists(ctx context.Context, username string) (exists bool, conclusive bool)
}
