package vlm

import (
	"context"
	"sync"
	"time"
)

// MockCoreVLM provides a configurable mock implementation of CoreVLM for
// testing. It allows precise control over response behavior, timing, and
// error conditions to facilitate comprehensive middleware testing.
type MockCoreVLM struct {
	mu sync.Mutex

	// Response configuration
	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// Behavior flags
	FailUntilAttempt int // Fail for first N attempts, then succeed

	// Tracking
	CallCount  int
	LastPrompt string
	LastImage  []byte
	LastOpts   map[string]any
}

// NewMockCoreVLM creates a new mock CoreVLM with default successful
// behavior.
func NewMockCoreVLM() *MockCoreVLM {
	return &MockCoreVLM{
		Response:  "test.response",
		TokensIn:  10,
		TokensOut: 5,
		Model:     "test-model",
	}
}

// DoRequest implements the CoreVLM interface with configurable behavior.
func (m *MockCoreVLM) DoRequest(ctx context.Context, prompt string, image []byte, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastPrompt = prompt
	m.LastImage = image
	m.LastOpts = opts

	if m.ResponseDelay > 0 {
		select {
		case <-time.After(m.ResponseDelay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	if m.FailUntilAttempt > 0 && m.CallCount <= m.FailUntilAttempt {
		if m.Error != nil {
			return "", 0, 0, m.Error
		}
		return "", 0, 0, &mockError{message: "simulated failure"}
	}

	if m.Error != nil {
		return "", 0, 0, m.Error
	}

	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel returns the configured model name.
func (m *MockCoreVLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel updates the model name.
func (m *MockCoreVLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// GetCallCount returns the number of times DoRequest was called.
func (m *MockCoreVLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// mockError provides a simple error type for testing.
type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}
