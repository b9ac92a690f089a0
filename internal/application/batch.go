package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/beyourahi/extract-usernames/internal/domain"
	"github.com/beyourahi/extract-usernames/internal/ports"
)

// BatchItem is one image region queued for extraction.
type BatchItem struct {
	// Name identifies the source image in results and reports.
	Name string
	// Image is the raw image region bytes.
	Image []byte
}

// BatchSummary aggregates the outcome of one batch run. Results preserves
// the input order regardless of worker scheduling.
type BatchSummary struct {
	Results        []domain.FinalResult
	Verified       int
	Unverified     int
	Review         int
	Failed         int
	Errors         int
	Duplicates     int
	NearDuplicates int
}

// BatchRunner executes a batch of images through a shared pipeline with a
// bounded worker pool, then reconciles the results against the identity
// registry on a single merge pass.
//
// The run has two phases. In the parallel phase, workers process images
// against a read-only registry snapshot; results land in per-index slots
// so no ordering coordination is needed. In the sequential merge phase,
// accepted usernames are deduplicated against each other, optionally
// checked for remote existence, and added to the registry one at a time.
type BatchRunner struct {
	pipeline    *Pipeline
	source      ports.RegistrySource
	checker     ports.ExistenceChecker
	metrics     ports.MetricsCollector
	workers     int
	maxDistance int
	tracer      trace.Tracer
}

// BatchRunnerDeps collects the collaborators a BatchRunner needs.
// Checker and Metrics are optional.
type BatchRunnerDeps struct {
	Pipeline    *Pipeline
	Source      ports.RegistrySource
	Checker     ports.ExistenceChecker
	Metrics     ports.MetricsCollector
	Workers     int
	MaxDistance int
}

// NewBatchRunner creates a BatchRunner from its dependencies.
func NewBatchRunner(deps BatchRunnerDeps) (*BatchRunner, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("registry source is required")
	}
	if deps.Workers < 1 {
		return nil, fmt.Errorf("worker count must be at least 1")
	}

	return &BatchRunner{
		pipeline:    deps.Pipeline,
		source:      deps.Source,
		checker:     deps.Checker,
		metrics:     deps.Metrics,
		workers:     deps.Workers,
		maxDistance: deps.MaxDistance,
		tracer:      otel.Tracer("batch-runner"),
	}, nil
}

// Run processes every item and returns the batch summary. The returned
// registry includes the usernames accepted during this run.
func (b *BatchRunner) Run(ctx context.Context, items []BatchItem) (BatchSummary, *domain.Registry, error) {
	ctx, span := b.tracer.Start(ctx, "BatchRunner.Run",
		trace.WithAttributes(
			attribute.Int("batch.items", len(items)),
			attribute.Int("batch.workers", b.workers),
		),
	)
	defer span.End()

	// Registry loading is best-effort duplicate avoidance: a load fault
	// degrades to an empty registry rather than blocking the batch.
	registry, err := b.source.Load(ctx)
	if err != nil || registry == nil {
		if err != nil {
			span.RecordError(err)
			if b.metrics != nil {
				b.metrics.RecordCounter("registry_load_failed", 1, nil)
			}
		}
		registry = domain.NewRegistry(nil)
	}

	results := make([]domain.FinalResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, item := range items {
		g.Go(func() error {
			results[i] = b.pipeline.Process(gctx, item.Image, item.Name, registry, b.maxDistance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchSummary{}, registry, err
	}

	summary := b.merge(ctx, results, registry)

	if b.metrics != nil {
		b.metrics.RecordGauge("registry_size", float64(registry.Len()), nil)
	}
	span.SetAttributes(
		attribute.Int("batch.verified", summary.Verified),
		attribute.Int("batch.review", summary.Review),
		attribute.Int("batch.duplicates", summary.Duplicates),
	)
	return summary, registry, nil
}

// merge is the sequential phase: in input order, accepted usernames are
// rechecked against the registry as it grows, so two images of the same
// account within one batch collapse into a single acceptance.
func (b *BatchRunner) merge(ctx context.Context, results []domain.FinalResult, registry *domain.Registry) BatchSummary {
	summary := BatchSummary{Results: results}

	for i := range results {
		r := &results[i]

		if r.Extracted() && r.Status == domain.StatusVerified {
			// Recheck against the grown registry: an earlier item in this
			// batch may have claimed the same or a nearby username.
			report := registry.Check(r.Username, b.maxDistance)
			if report.IsDuplicate {
				r.IsDuplicate = true
			} else {
				if report.IsNearDuplicate {
					r.IsNearDuplicate = true
					r.SimilarTo = report.Similar
					r.EditDistance = report.Distance
				}
				b.verifyExistence(ctx, r)
				if r.Status == domain.StatusVerified || r.Status == domain.StatusUnverified {
					registry.Add(r.Username)
				}
			}
		}

		switch r.Status {
		case domain.StatusVerified:
			if r.IsDuplicate {
				summary.Duplicates++
			} else {
				summary.Verified++
			}
		case domain.StatusUnverified:
			summary.Unverified++
		case domain.StatusReview:
			summary.Review++
		case domain.StatusFailed:
			summary.Failed++
		case domain.StatusError:
			summary.Errors++
		}
		if r.IsNearDuplicate {
			summary.NearDuplicates++
		}
	}

	return summary
}

// verifyExistence annotates an accepted result with the remote profile
// check. The check can downgrade the status but never changes the
// username or confidence.
func (b *BatchRunner) verifyExistence(ctx context.Context, r *domain.FinalResult) {
	if b.checker == nil {
		return
	}

	exists, conclusive := b.checker.Exists(ctx, r.Username)
	switch {
	case !conclusive:
		r.Status = domain.StatusUnverified
	case !exists:
		r.Status = domain.StatusReview
		r.Tier = ""
	}
}
