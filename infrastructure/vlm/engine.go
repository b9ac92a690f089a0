package vlm

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// DefaultPrompt instructs the model to answer with the bare username.
// Any preamble the model adds anyway is stripped during parsing.
const DefaultPrompt = "Read the Instagram username shown in this image. " +
	"Reply with only the username, nothing else. " +
	"If no username is visible, reply with NONE."

// noUsernameAnswer is the sentinel the prompt asks the model to use when
// the image carries no username.
const noUsernameAnswer = "none"

// DefaultHedgeWords lists the phrases that mark an uncertain model
// response. Matching is case-insensitive over the full raw response.
func DefaultHedgeWords() []string {
	return []string{"appears", "seems", "possibly", "might", "unclear", "could be"}
}

// EngineConfig defines the confidence heuristics for the holistic engine.
// The model gives no numeric confidence, so one is derived from the shape
// of its response: a base score adjusted by hedging language, format
// validity, and garbled-looking output, then clamped to a fixed band.
type EngineConfig struct {
	// Prompt is the instruction sent alongside the image.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required"`

	// BaseConfidence is the starting score for any parsed response.
	BaseConfidence float64 `yaml:"base_confidence" json:"base_confidence" validate:"required,gt=0,max=100"`

	// HedgePenalty is subtracted when the response hedges.
	HedgePenalty float64 `yaml:"hedge_penalty" json:"hedge_penalty" validate:"min=0,max=50"`

	// FormatBonus is added when the username passes the acceptance
	// predicate.
	FormatBonus float64 `yaml:"format_bonus" json:"format_bonus" validate:"min=0,max=50"`

	// UnusualPenalty is subtracted when the username looks garbled.
	UnusualPenalty float64 `yaml:"unusual_penalty" json:"unusual_penalty" validate:"min=0,max=50"`

	// MinConfidence bounds the derived confidence from below.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" validate:"min=0,max=100"`

	// MaxConfidence bounds the derived confidence from above.
	MaxConfidence float64 `yaml:"max_confidence" json:"max_confidence" validate:"required,gt=0,max=100,gtefield=MinConfidence"`

	// HedgeWords are the phrases that mark a hedged response.
	HedgeWords []string `yaml:"hedge_words" json:"hedge_words" validate:"required,min=1"`
}

// DefaultEngineConfig returns an EngineConfig with the production
// defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Prompt:         DefaultPrompt,
		BaseConfidence: 85,
		HedgePenalty:   15,
		FormatBonus:    10,
		UnusualPenalty: 10,
		MinConfidence:  60,
		MaxConfidence:  100,
		HedgeWords:     DefaultHedgeWords(),
	}
}

// VisionClient is the slice of Client the engine needs. Declared here so
// tests can substitute a stub without touching the provider stack.
type VisionClient interface {
	Describe(ctx context.Context, prompt string, image []byte, options map[string]any) (string, error)
	GetModel() string
}

// Engine adapts a vision client into the holistic recognition engine.
// It sends the raw image region to the model with a fixed prompt, parses
// the free-text response into a canonical username, and derives a
// confidence score from the response's shape.
type Engine struct {
	name   string
	config EngineConfig
	client VisionClient
	tracer trace.Tracer
}

// NewEngine creates a new holistic engine backed by the given client.
// Returns an error if configuration validation fails.
func NewEngine(name string, config EngineConfig, client VisionClient) (*Engine, error) {
	if name == "" {
		return nil, fmt.Errorf("engine name cannot be empty")
	}
	if client == nil {
		return nil, fmt.Errorf("vision client cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Engine{
		name:   name,
		config: config,
		client: client,
		tracer: otel.Tracer("holistic-engine"),
	}, nil
}

// Name returns the unique identifier for this engine instance.
func (e *Engine) Name() string { return e.name }

// Read extracts a single username reading from the image region.
// A reading with an empty Username means the model responded but the
// response did not survive normalization; an error means the request
// itself failed.
func (e *Engine) Read(ctx context.Context, image []byte) (domain.HolisticReading, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Read",
		trace.WithAttributes(
			attribute.String("engine.id", e.name),
			attribute.String("engine.model", e.client.GetModel()),
			attribute.Int("engine.image.bytes", len(image)),
		),
	)
	defer span.End()

	raw, err := e.client.Describe(ctx, e.config.Prompt, image, nil)
	if err != nil {
		span.RecordError(err)
		return domain.HolisticReading{}, fmt.Errorf("holistic read failed: %w", err)
	}

	reading := e.parseResponse(raw)

	span.SetAttributes(
		attribute.String("engine.username", reading.Username),
		attribute.Float64("engine.confidence", reading.Confidence),
		attribute.Bool("engine.hedged", reading.Hedged),
	)
	return reading, nil
}

// parseResponse turns the model's free-text answer into a scored reading.
func (e *Engine) parseResponse(raw string) domain.HolisticReading {
	answer := extractAnswer(raw)
	if answer == "" || strings.EqualFold(answer, noUsernameAnswer) {
		return domain.HolisticReading{Raw: raw}
	}

	username, ok := domain.Normalize(answer)
	if !ok {
		return domain.HolisticReading{Raw: raw}
	}

	reading := domain.HolisticReading{
		Username:       username,
		Raw:            raw,
		Hedged:         e.isHedged(raw),
		FormatValid:    domain.IsValidUsername(username),
		UnusualPattern: domain.HasUnusualPattern(username),
	}
	reading.Confidence = e.scoreReading(reading)
	return reading
}

// extractAnswer isolates the username text from the model's response.
// Models wrap answers in markdown fences, quotes, or an @ prefix even
// when told not to; the last line of the response holds the answer when
// the model narrates first.
func extractAnswer(raw string) string {
	answer := ""
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Trim(line, " \t`\"'")
		line = strings.TrimPrefix(line, "@")
		if line != "" {
			answer = line
		}
	}
	return answer
}

// isHedged reports whether the raw response contains hedging language.
func (e *Engine) isHedged(raw string) bool {
	lower := strings.ToLower(raw)
	for _, w := range e.config.HedgeWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// scoreReading derives the confidence for a parsed reading.
func (e *Engine) scoreReading(r domain.HolisticReading) float64 {
	conf := e.config.BaseConfidence
	if r.Hedged {
		conf -= e.config.HedgePenalty
	}
	if r.FormatValid {
		conf += e.config.FormatBonus
	}
	if r.UnusualPattern {
		conf -= e.config.UnusualPenalty
	}
	return ClampFloat64(conf, e.config.MinConfidence, e.config.MaxConfidence)
}

// Validate checks if the engine is properly configured.
func (e *Engine) Validate() error {
	if err := validate.Struct(e.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
