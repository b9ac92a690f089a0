package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyourahi/extract-usernames/internal/domain"
	"github.com/beyourahi/extract-usernames/internal/testutils"
)

// keyedHolistic returns a scripted reading per image payload, letting one
// batch produce different usernames from different items.
type keyedHolistic struct {
	readings map[string]domain.HolisticReading
}

func (k *keyedHolistic) Read(ctx context.Context, image []byte) (domain.HolisticReading, error) {
	if reading, ok := k.readings[string(image)]; ok {
		return reading, nil
	}
	return domain.HolisticReading{}, nil
}

func newTestRunner(t *testing.T, holistic *keyedHolistic, deps func(*BatchRunnerDeps)) *BatchRunner {
	t.Helper()

	pipeline := newTestPipeline(t, &testutils.MockRecognizer{Err: errors.New("sidecar down")}, holistic)
	runnerDeps := BatchRunnerDeps{
		Pipeline:    pipeline,
		Source:      &testutils.StaticRegistrySource{},
		Metrics:     testutils.NewRecordingMetrics(),
		Workers:     2,
		MaxDistance: 2,
	}
	if deps != nil {
		deps(&runnerDeps)
	}

	runner, err := NewBatchRunner(runnerDeps)
	require.NoError(t, err)
	return runner
}

func reading(username string, confidence float64) domain.HolisticReading {
	return domain.HolisticReading{Username: username, Confidence: confidence}
}

func TestBatchRunPreservesInputOrder(t *testing.T) {
	holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
		"a": reading("alpha.one", 95),
		"b": reading("bravo.two", 95),
		"c": reading("charlie.three", 95),
	}}
	runner := newTestRunner(t, holistic, nil)

	summary, _, err := runner.Run(context.Background(), []BatchItem{
		{Name: "a.jpg", Image: []byte("a")},
		{Name: "b.jpg", Image: []byte("b")},
		{Name: "c.jpg", Image: []byte("c")},
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, "a.jpg", summary.Results[0].Image)
	assert.Equal(t, "alpha.one", summary.Results[0].Username)
	assert.Equal(t, "b.jpg", summary.Results[1].Image)
	assert.Equal(t, "c.jpg", summary.Results[2].Image)
	assert.Equal(t, 3, summary.Verified)
}

func TestBatchRunCollapsesInBatchDuplicates(t *testing.T) {
	holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
		"a": reading("john.doe", 95),
		"b": reading("john.doe", 95),
	}}
	runner := newTestRunner(t, holistic, nil)

	summary, registry, err := runner.Run(context.Background(), []BatchItem{
		{Name: "a.jpg", Image: []byte("a")},
		{Name: "b.jpg", Image: []byte("b")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Verified)
	assert.Equal(t, 1, summary.Duplicates)
	assert.False(t, summary.Results[0].IsDuplicate)
	assert.True(t, summary.Results[1].IsDuplicate)
	assert.Equal(t, 1, registry.Len())
}

func TestBatchRunAnnotatesInBatchNearDuplicates(t *testing.T) {
	holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
		"a": reading("john.doe", 95),
		"b": reading("john.don", 95),
	}}
	runner := newTestRunner(t, holistic, nil)

	summary, registry, err := runner.Run(context.Background(), []BatchItem{
		{Name: "a.jpg", Image: []byte("a")},
		{Name: "b.jpg", Image: []byte("b")},
	})
	require.NoError(t, err)

	second := summary.Results[1]
	assert.True(t, second.IsNearDuplicate)
	assert.Equal(t, "john.doe", second.SimilarTo)
	assert.Equal(t, 1, second.EditDistance)
	// A near-duplicate is still accepted into the registry; routing it to
	// the review list is the report writer's concern.
	assert.Equal(t, 2, registry.Len())
	assert.Equal(t, 1, summary.NearDuplicates)
}

func TestBatchRunSkipsRegistryDuplicates(t *testing.T) {
	holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
		"a": reading("john.doe", 95),
	}}
	runner := newTestRunner(t, holistic, func(deps *BatchRunnerDeps) {
		deps.Source = &testutils.StaticRegistrySource{Usernames: []string{"john.doe"}}
	})

	summary, _, err := runner.Run(context.Background(), []BatchItem{
		{Name: "a.jpg", Image: []byte("a")},
	})
	require.NoError(t, err)

	assert.True(t, summary.Results[0].IsDuplicate)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 0, summary.Verified)
}

func TestBatchRunDegradesOnRegistryLoadFailure(t *testing.T) {
	holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
		"a": reading("john.doe", 95),
	}}
	metrics := testutils.NewRecordingMetrics()
	runner := newTestRunner(t, holistic, func(deps *BatchRunnerDeps) {
		deps.Source = &testutils.StaticRegistrySource{Err: errors.New("corrupt file")}
		deps.Metrics = metrics
	})

	summary, _, err := runner.Run(context.Background(), []BatchItem{
		{Name: "a.jpg", Image: []byte("a")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Verified)
	assert.Equal(t, float64(1), metrics.Counters["registry_load_failed"])
}

func TestBatchRunExistenceCheck(t *testing.T) {
	t.Run("absent profile routes to review", func(t *testing.T) {
		holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
			"a": reading("john.doe", 95),
		}}
		runner := newTestRunner(t, holistic, func(deps *BatchRunnerDeps) {
			deps.Checker = &testutils.MockExistenceChecker{Existing: map[string]bool{}}
		})

		summary, registry, err := runner.Run(context.Background(), []BatchItem{
			{Name: "a.jpg", Image: []byte("a")},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusReview, summary.Results[0].Status)
		assert.Empty(t, summary.Results[0].Tier)
		assert.Equal(t, 0, registry.Len())
	})

	t.Run("inconclusive check downgrades to unverified", func(t *testing.T) {
		holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
			"a": reading("john.doe", 95),
		}}
		runner := newTestRunner(t, holistic, func(deps *BatchRunnerDeps) {
			deps.Checker = &testutils.MockExistenceChecker{Inconclusive: true}
		})

		summary, registry, err := runner.Run(context.Background(), []BatchItem{
			{Name: "a.jpg", Image: []byte("a")},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusUnverified, summary.Results[0].Status)
		// Unverified results still claim their username.
		assert.Equal(t, 1, registry.Len())
		assert.Equal(t, 1, summary.Unverified)
	})

	t.Run("existing profile stays verified", func(t *testing.T) {
		holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
			"a": reading("john.doe", 95),
		}}
		checker := &testutils.MockExistenceChecker{Existing: map[string]bool{"john.doe": true}}
		runner := newTestRunner(t, holistic, func(deps *BatchRunnerDeps) {
			deps.Checker = checker
		})

		summary, _, err := runner.Run(context.Background(), []BatchItem{
			{Name: "a.jpg", Image: []byte("a")},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusVerified, summary.Results[0].Status)
		assert.Equal(t, []string{"john.doe"}, checker.Checked)
	})
}

func TestBatchRunSummaryCounts(t *testing.T) {
	holistic := &keyedHolistic{readings: map[string]domain.HolisticReading{
		"verified": reading("john.doe", 95),
		"review":   reading("jane_doe", 80),
	}}
	runner := newTestRunner(t, holistic, nil)

	summary, _, err := runner.Run(context.Background(), []BatchItem{
		{Name: "v.jpg", Image: []byte("verified")},
		{Name: "r.jpg", Image: []byte("review")},
		{Name: "f.jpg", Image: []byte("unknown")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Verified)
	assert.Equal(t, 1, summary.Review)
	assert.Equal(t, 1, summary.Failed)
}

func TestNewBatchRunnerValidation(t *testing.T) {
	_, err := NewBatchRunner(BatchRunnerDeps{})
	assert.Error(t, err)
}
