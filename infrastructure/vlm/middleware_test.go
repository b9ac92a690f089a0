package vlm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRetryMiddleware(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.FailUntilAttempt = 2

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

		response, _, _, err := wrapped.DoRequest(context.Background(), "prompt", []byte{0x01}, nil)
		require.NoError(t, err)
		assert.Equal(t, "test.response", response)
		assert.Equal(t, 3, mock.GetCallCount())
	})

	t.Run("exhausts retries", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.Error = errors.New("persistent failure")

		wrapped := RetryMiddleware(2, time.Millisecond, 10*time.Millisecond)(mock)

		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.Error(t, err)
		assert.ErrorContains(t, err, "request failed after 3 attempts")
		assert.Equal(t, 3, mock.GetCallCount())
	})

	t.Run("does not retry non-retryable provider errors", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.Error = NewProviderError("openai", ErrorTypeAuthentication, 401, "invalid key", nil)

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.Error(t, err)
		assert.Equal(t, 1, mock.GetCallCount())
	})

	t.Run("stops on open circuit", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.Error = ErrCircuitOpen

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 1, mock.GetCallCount())
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.Error = errors.New("failure")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

		_, _, _, err := wrapped.DoRequest(ctx, "prompt", nil, nil)
		require.Error(t, err)
		assert.Equal(t, 1, mock.GetCallCount())
	})
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	t.Run("opens after threshold failures", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.Error = errors.New("downstream failure")

		wrapped := CircuitBreakerMiddleware(2, time.Minute)(mock)

		for i := 0; i < 2; i++ {
			_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
			require.Error(t, err)
		}

		// Circuit is now open: the downstream must not be called again.
		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 2, mock.GetCallCount())
	})

	t.Run("recovers through half open", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.FailUntilAttempt = 2

		wrapped := CircuitBreakerMiddleware(2, 10*time.Millisecond)(mock)

		for i := 0; i < 2; i++ {
			_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
			require.Error(t, err)
		}

		time.Sleep(20 * time.Millisecond)

		response, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "test.response", response)
	})

	t.Run("closed circuit passes requests through", func(t *testing.T) {
		mock := NewMockCoreVLM()
		wrapped := CircuitBreakerMiddleware(3, time.Minute)(mock)

		response, tokensIn, tokensOut, err := wrapped.DoRequest(context.Background(), "prompt", []byte{0x01}, nil)
		require.NoError(t, err)
		assert.Equal(t, "test.response", response)
		assert.Equal(t, 10, tokensIn)
		assert.Equal(t, 5, tokensOut)
	})
}

func TestCircuitBreakerStates(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.Equal(t, StateClosed, cb.GetState())

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("bounds slow requests", func(t *testing.T) {
		mock := NewMockCoreVLM()
		mock.ResponseDelay = 100 * time.Millisecond

		wrapped := TimeoutMiddleware(10 * time.Millisecond)(mock)

		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("passes fast requests", func(t *testing.T) {
		mock := NewMockCoreVLM()
		wrapped := TimeoutMiddleware(time.Second)(mock)

		response, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "test.response", response)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("paces requests", func(t *testing.T) {
		mock := NewMockCoreVLM()
		wrapped := RateLimitMiddleware(rate.Limit(50), 1)(mock)

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
			require.NoError(t, err)
		}

		// Two of the three requests must have waited for a token.
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("honors context cancellation while waiting", func(t *testing.T) {
		mock := NewMockCoreVLM()
		wrapped := RateLimitMiddleware(rate.Limit(0.1), 1)(mock)

		// Drain the single burst token.
		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil, nil)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, _, _, err = wrapped.DoRequest(ctx, "prompt", nil, nil)
		assert.Error(t, err)
	})
}

func TestMiddlewareChainOrder(t *testing.T) {
	RegisterProviderFactory("chain-test", func(config ClientConfig) (CoreVLM, error) {
		return NewMockCoreVLM(), nil
	})

	client, err := NewClient("chain-test", ClientConfig{
		APIKey: "key",
		Model:  "test-model",
		Middleware: []Middleware{
			RetryMiddleware(1, time.Millisecond, 10*time.Millisecond),
			TimeoutMiddleware(time.Second),
		},
	})
	require.NoError(t, err)

	response, err := client.Describe(context.Background(), "prompt", []byte{0x01}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test.response", response)
	assert.Equal(t, "test-model", client.GetModel())
}
