package vlm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracedVLM implements distributed tracing for request observability.
// This provides detailed request traces for debugging and performance
// analysis.
type tracedVLM struct {
	next        CoreVLM
	serviceName string
	tracer      trace.Tracer
}

// TracingMiddleware creates middleware that adds distributed tracing to
// requests. This enables tracking of model requests across the pipeline
// and helps with debugging and performance analysis.
func TracingMiddleware(serviceName string) Middleware {
	return func(next CoreVLM) CoreVLM {
		return &tracedVLM{
			next:        next,
			serviceName: serviceName,
			tracer:      otel.Tracer("vlm-client"),
		}
	}
}

// DoRequest executes the request within a trace span with request
// attributes and timing information.
func (t *tracedVLM) DoRequest(ctx context.Context, prompt string, image []byte, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "vlm.request",
		trace.WithAttributes(
			attribute.String("service.name", t.serviceName),
			attribute.String("vlm.model", t.next.GetModel()),
			attribute.Int("vlm.prompt.length", len(prompt)),
			attribute.Int("vlm.image.bytes", len(image)),
		),
	)
	defer span.End()

	response, tokensIn, tokensOut, err := t.next.DoRequest(ctx, prompt, image, opts)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("vlm.tokens.input", tokensIn),
			attribute.Int("vlm.tokens.output", tokensOut),
		)
	}

	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (t *tracedVLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *tracedVLM) SetModel(m string) { t.next.SetModel(m) }
