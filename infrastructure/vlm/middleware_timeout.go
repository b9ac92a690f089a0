package vlm

import (
	"context"
	"time"
)

// timeoutVLM implements request timeout functionality.
// This ensures requests don't hang indefinitely and provides
// predictable response times for the extraction pipeline.
type timeoutVLM struct {
	next    CoreVLM
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that enforces request timeouts.
// This prevents requests from hanging indefinitely and enables
// proper timeout handling in the extraction pipeline.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreVLM) CoreVLM {
		return &timeoutVLM{
			next:    next,
			timeout: timeout,
		}
	}
}

// DoRequest executes the request with a timeout context.
// If the request doesn't complete within the timeout duration,
// it returns a context deadline exceeded error.
func (t *timeoutVLM) DoRequest(ctx context.Context, prompt string, image []byte, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, image, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (t *timeoutVLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *timeoutVLM) SetModel(m string) { t.next.SetModel(m) }
