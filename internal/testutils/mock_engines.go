// Package testutils provides deterministic mock implementations of the
// engine and infrastructure ports for testing the extraction pipeline
// without a sidecar or remote model.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/beyourahi/extract-usernames/internal/domain"
	"github.com/beyourahi/extract-usernames/internal/ports"
)

// MockRecognizer implements ports.Recognizer with scripted per-variant
// readings. It is safe for concurrent use so batch tests can share one
// instance across workers.
type MockRecognizer struct {
	mu sync.Mutex

	// Readings maps variant name to the readings that variant returns.
	Readings map[string][]domain.Reading
	// Err, when set, is returned for every variant.
	Err error
	// FailVariants lists variants that return Err while others succeed.
	FailVariants map[string]error

	// CallCount tracks invocations across all variants.
	CallCount int
}

// NewMockRecognizer creates a recognizer that returns the given readings
// for every requested variant.
func NewMockRecognizer(readings map[string][]domain.Reading) *MockRecognizer {
	return &MockRecognizer{Readings: readings}
}

// Recognize implements ports.Recognizer.
func (m *MockRecognizer) Recognize(ctx context.Context, image []byte, variant string) ([]domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++

	if m.Err != nil {
		return nil, m.Err
	}
	if err, ok := m.FailVariants[variant]; ok {
		return nil, err
	}
	return m.Readings[variant], nil
}

// MockHolisticEngine implements ports.HolisticEngine with a scripted
// reading.
type MockHolisticEngine struct {
	mu sync.Mutex

	// Reading is returned from every Read call.
	Reading domain.HolisticReading
	// Err, when set, is returned instead of the reading.
	Err error

	// CallCount tracks invocations.
	CallCount int
}

// Read implements ports.HolisticEngine.
func (m *MockHolisticEngine) Read(ctx context.Context, image []byte) (domain.HolisticReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++

	if m.Err != nil {
		return domain.HolisticReading{}, m.Err
	}
	return m.Reading, nil
}

// StaticRegistrySource implements ports.RegistrySource over a fixed
// username list.
type StaticRegistrySource struct {
	// Usernames seeds the registry returned by Load.
	Usernames []string
	// Err, when set, is returned instead of a registry.
	Err error
}

// Load implements ports.RegistrySource.
func (s *StaticRegistrySource) Load(ctx context.Context) (*domain.Registry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return domain.NewRegistry(s.Usernames), nil
}

// MockExistenceChecker implements ports.ExistenceChecker with scripted
// answers.
type MockExistenceChecker struct {
	mu sync.Mutex

	// Existing holds usernames that exist remotely.
	Existing map[string]bool
	// Inconclusive, when true, makes every check inconclusive.
	Inconclusive bool

	// Checked records every username probed, in order.
	Checked []string
}

// Exists implements ports.ExistenceChecker.
func (m *MockExistenceChecker) Exists(ctx context.Context, username string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Checked = append(m.Checked, username)

	if m.Inconclusive {
		return false, false
	}
	return m.Existing[username], true
}

// RecordingMetrics implements ports.MetricsCollector by accumulating
// counter values for assertions.
type RecordingMetrics struct {
	mu sync.Mutex

	// Counters accumulates RecordCounter values by metric name.
	Counters map[string]float64
	// Gauges holds the last RecordGauge value by metric name.
	Gauges map[string]float64
}

// NewRecordingMetrics creates an empty RecordingMetrics.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		Counters: make(map[string]float64),
		Gauges:   make(map[string]float64),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
}

// RecordCounter implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counters[metric] += value
}

// RecordGauge implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Gauges[metric] = value
}

// RecordHistogram implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {}

// Compile-time interface checks.
var (
	_ ports.Recognizer       = (*MockRecognizer)(nil)
	_ ports.HolisticEngine   = (*MockHolisticEngine)(nil)
	_ ports.RegistrySource   = (*StaticRegistrySource)(nil)
	_ ports.ExistenceChecker = (*MockExistenceChecker)(nil)
	_ ports.MetricsCollector = (*RecordingMetrics)(nil)
)
