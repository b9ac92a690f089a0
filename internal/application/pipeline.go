package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/beyourahi/extract-usernames/infrastructure/consensus"
	"github.com/beyourahi/extract-usernames/internal/domain"
	"github.com/beyourahi/extract-usernames/internal/ports"
)

// Method tags for single-engine degradation outcomes. Dual-engine
// outcomes carry the merger's strategy tag instead.
const (
	// MethodVLMOnly marks results where the classical engine produced
	// nothing and the holistic reading stood alone.
	MethodVLMOnly = "vlm_only"

	// MethodOCRRescue marks results where the holistic engine failed and
	// the classical result was used unaided.
	MethodOCRRescue = "ocr_rescue"
)

// Pipeline runs the full extraction for one image: classical recognition
// across preprocessing variants, a holistic model reading, correction,
// merging, classification, and duplicate detection against a registry
// snapshot.
//
// A pipeline is stateless and safe for concurrent use; batch workers
// share one instance.
type Pipeline struct {
	recognizer ports.Recognizer
	holistic   ports.HolisticEngine
	voter      *consensus.VariantVoter
	correction *consensus.CorrectionLayer
	merger     *consensus.EngineMerger
	classifier *consensus.Classifier
	metrics    ports.MetricsCollector
	variants   []string
	tracer     trace.Tracer
}

// PipelineDeps collects the collaborators a Pipeline needs.
// All fields except Metrics are required.
type PipelineDeps struct {
	Recognizer ports.Recognizer
	Holistic   ports.HolisticEngine
	Voter      *consensus.VariantVoter
	Correction *consensus.CorrectionLayer
	Merger     *consensus.EngineMerger
	Classifier *consensus.Classifier
	Metrics    ports.MetricsCollector
	Variants   []string
}

// NewPipeline creates a Pipeline from its dependencies.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	switch {
	case deps.Recognizer == nil:
		return nil, fmt.Errorf("recognizer is required")
	case deps.Holistic == nil:
		return nil, fmt.Errorf("holistic engine is required")
	case deps.Voter == nil:
		return nil, fmt.Errorf("voter is required")
	case deps.Correction == nil:
		return nil, fmt.Errorf("correction layer is required")
	case deps.Merger == nil:
		return nil, fmt.Errorf("merger is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case len(deps.Variants) == 0:
		return nil, fmt.Errorf("at least one preprocessing variant is required")
	}

	return &Pipeline{
		recognizer: deps.Recognizer,
		holistic:   deps.Holistic,
		voter:      deps.Voter,
		correction: deps.Correction,
		merger:     deps.Merger,
		classifier: deps.Classifier,
		metrics:    deps.Metrics,
		variants:   deps.Variants,
		tracer:     otel.Tracer("extraction-pipeline"),
	}, nil
}

// Process extracts one username from one image region, checking it
// against the given registry snapshot. It never returns an error: every
// fault is folded into the result's Status so a batch can always account
// for every input image.
func (p *Pipeline) Process(ctx context.Context, image []byte, name string, registry *domain.Registry, maxDistance int) (result domain.FinalResult) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "Pipeline.Process",
		trace.WithAttributes(attribute.String("pipeline.image", name)),
	)
	defer span.End()

	// A panic anywhere in the engines or consensus chain must cost one
	// image, not the batch.
	defer func() {
		if r := recover(); r != nil {
			result = domain.FinalResult{
				Status:     domain.StatusError,
				Image:      name,
				Diagnostic: fmt.Sprintf("panic: %v", r),
			}
			span.SetAttributes(attribute.String("pipeline.status", string(domain.StatusError)))
		}
		p.recordOutcome(result, time.Since(start))
	}()

	ocr := p.runClassical(ctx, image)
	vlmReading, vlmErr := p.holistic.Read(ctx, image)
	if vlmErr != nil {
		span.RecordError(vlmErr)
		vlmReading = domain.HolisticReading{}
	}

	result = p.decide(ctx, ocr, vlmReading)
	result.Image = name

	if result.Extracted() {
		report := registry.Check(result.Username, maxDistance)
		result.IsDuplicate = report.IsDuplicate
		result.IsNearDuplicate = report.IsNearDuplicate
		result.SimilarTo = report.Similar
		result.EditDistance = report.Distance
	}

	span.SetAttributes(
		attribute.String("pipeline.status", string(result.Status)),
		attribute.String("pipeline.method", result.Method),
		attribute.Float64("pipeline.confidence", result.Confidence),
	)
	return result
}

// runClassical executes every preprocessing variant against the classical
// engine and reduces the readings to one corrected per-engine result.
// Variant errors cost that variant's vote, nothing more.
func (p *Pipeline) runClassical(ctx context.Context, image []byte) domain.EngineResult {
	variants := make([]consensus.VariantReadings, 0, len(p.variants))
	for _, variant := range p.variants {
		readings, err := p.recognizer.Recognize(ctx, image, variant)
		if err != nil {
			continue
		}
		variants = append(variants, consensus.VariantReadings{
			Variant:  variant,
			Readings: readings,
		})
	}

	candidates := p.voter.CollectCandidates(ctx, variants)
	result := p.voter.Vote(ctx, candidates)
	return p.correction.Correct(ctx, result)
}

// decide reconciles the two engine outcomes into a classified result.
func (p *Pipeline) decide(ctx context.Context, ocr domain.EngineResult, vlmReading domain.HolisticReading) domain.FinalResult {
	alternatives := collectAlternatives(ocr, vlmReading)

	switch {
	case ocr.Found() && vlmReading.Username != "":
		outcome := p.merger.Merge(ctx, ocr, vlmReading)
		status, tier := p.classifier.Classify(outcome.Confidence, outcome.ForceReview)
		return domain.FinalResult{
			Username:     outcome.Username,
			Confidence:   outcome.Confidence,
			Status:       status,
			Tier:         tier,
			Method:       outcome.Strategy,
			Alternatives: alternatives,
		}

	case vlmReading.Username != "":
		status, tier := p.classifier.Classify(vlmReading.Confidence, false)
		return domain.FinalResult{
			Username:     vlmReading.Username,
			Confidence:   vlmReading.Confidence,
			Status:       status,
			Tier:         tier,
			Method:       MethodVLMOnly,
			Alternatives: alternatives,
		}

	case ocr.Found():
		status, tier := p.classifier.Classify(ocr.Confidence, false)
		return domain.FinalResult{
			Username:     ocr.Username,
			Confidence:   ocr.Confidence,
			Status:       status,
			Tier:         tier,
			Method:       MethodOCRRescue,
			Alternatives: alternatives,
		}

	default:
		return domain.FinalResult{Status: domain.StatusFailed}
	}
}

// collectAlternatives counts every distinct username observed across both
// engines, for review reporting.
func collectAlternatives(ocr domain.EngineResult, vlmReading domain.HolisticReading) map[string]int {
	alternatives := make(map[string]int)
	for _, s := range ocr.Siblings {
		alternatives[s.Text]++
	}
	if vlmReading.Username != "" {
		alternatives[vlmReading.Username]++
	}
	if len(alternatives) == 0 {
		return nil
	}
	return alternatives
}

// recordOutcome publishes per-image metrics.
func (p *Pipeline) recordOutcome(result domain.FinalResult, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}

	p.metrics.RecordLatency("pipeline_process", elapsed, nil)
	p.metrics.RecordCounter("extractions_total", 1, map[string]string{
		"status": string(result.Status),
		"method": result.Method,
		"tier":   result.Tier,
	})
	if result.Extracted() {
		p.metrics.RecordHistogram("extraction_confidence", result.Confidence, map[string]string{
			"method": result.Method,
		})
	}
	if result.IsDuplicate {
		p.metrics.RecordCounter("duplicates_total", 1, map[string]string{"kind": "exact"})
	}
	if result.IsNearDuplicate {
		p.metrics.RecordCounter("duplicates_total", 1, map[string]string{"kind": "near"})
	}
}
