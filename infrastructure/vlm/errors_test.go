package vlm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPError(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "openai"}

	tests := []struct {
		name          string
		statusCode    int
		wantType      ErrorType
		wantRetryable bool
	}{
		{"unauthorized", 401, ErrorTypeAuthentication, false},
		{"forbidden", 403, ErrorTypeAuthentication, false},
		{"rate limited", 429, ErrorTypeRateLimit, true},
		{"bad request", 400, ErrorTypeBadRequest, false},
		{"not found", 404, ErrorTypeNotFound, false},
		{"server error", 500, ErrorTypeServerError, true},
		{"bad gateway", 502, ErrorTypeServerError, true},
		{"other client error", 418, ErrorTypeBadRequest, false},
		{"other server error", 599, ErrorTypeServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provErr := classifier.ClassifyHTTPError(tt.statusCode, "message", errors.New("wrapped"))
			assert.Equal(t, tt.wantType, provErr.Type)
			assert.Equal(t, tt.wantRetryable, provErr.IsRetryable())
			assert.Equal(t, tt.statusCode, provErr.StatusCode)
		})
	}
}

func TestClassifyContextError(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "anthropic"}

	timeout := classifier.ClassifyContextError(context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTimeout, timeout.Type)
	assert.True(t, timeout.IsRetryable())

	canceled := classifier.ClassifyContextError(context.Canceled)
	assert.Equal(t, ErrorTypeNetwork, canceled.Type)
}

func TestProviderErrorUnwrap(t *testing.T) {
	wrapped := errors.New("root cause")
	provErr := NewProviderError("google", ErrorTypeServerError, 503, "unavailable", wrapped)

	assert.ErrorIs(t, provErr, wrapped)
	assert.Contains(t, provErr.Error(), "google error")
	assert.Contains(t, provErr.Error(), "HTTP 503")
	assert.Contains(t, provErr.Error(), "server_error")
}
