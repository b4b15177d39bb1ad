package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/cost"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLoader struct {
	records []models.CostRecord
	err     error
	limit   int64
}

func (l *staticLoader) Load(_ context.Context, limit int64) ([]models.CostRecord, error) {
	l.limit = limit

	return l.records, l.err
}

func costRecord(model string, amount float64, tier models.ComplexityTier) models.CostRecord {
	return models.CostRecord{Model: model, Cost: amount, Tier: tier, RecordedAt: time.Now().UTC()}
}

func TestCosts_ReportFromLocalMonitor(t *testing.T) {
	monitor := cost.NewMonitor(cost.Config{}, discardLogger())
	monitor.Record(t.Context(), costRecord("anthropic.claude-3-haiku-20240307-v1:0", 0.002, models.ComplexityTierSimple))

	report, err := NewCosts(cost.Config{}, monitor, nil, discardLogger()).Report(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Calls)
	assert.InDelta(t, 0.002, report.Summary.TotalCost, 1e-12)
	assert.NotNil(t, report.Recommendations)
}

func TestCosts_ReportFromLoader(t *testing.T) {
	loader := &staticLoader{records: []models.CostRecord{
		costRecord("anthropic.claude-3-5-sonnet-20240620-v1:0", 0.5, models.ComplexityTierComplex),
		costRecord("anthropic.claude-3-5-sonnet-20240620-v1:0", 0.25, models.ComplexityTierComplex),
	}}

	service := NewCosts(cost.Config{Capacity: 50, Budget: cost.Budget{PerWindow: 0.8}}, nil, loader, discardLogger())

	report, err := service.Report(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(50), loader.limit)
	assert.Equal(t, 2, report.Summary.Calls)
	assert.InDelta(t, 0.75, report.Summary.TotalCost, 1e-12)

	// The window warning is raised once even though both tiers are inspected.
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "above 80% of the $0.8000 budget")
}

func TestCosts_ReportUsesRecordedNodeCounts(t *testing.T) {
	small := costRecord("anthropic.claude-3-haiku-20240307-v1:0", 0.001, models.ComplexityTierSimple)
	small.NodeCount = 4

	service := NewCosts(cost.Config{}, nil, &staticLoader{records: []models.CostRecord{small}}, discardLogger())

	report, err := service.Report(t.Context())
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"simple workflows of about 4 nodes already run on anthropic.claude-3-haiku-20240307-v1:0; no change needed"},
		report.Recommendations)
}

func TestCosts_ReportLoaderError(t *testing.T) {
	service := NewCosts(cost.Config{}, nil, &staticLoader{err: errors.New("redis down")}, discardLogger())

	_, err := service.Report(t.Context())
	assert.ErrorContains(t, err, "failed to load cost records")
}

func TestCosts_ReportEmpty(t *testing.T) {
	report, err := NewCosts(cost.Config{}, nil, nil, discardLogger()).Report(t.Context())
	require.NoError(t, err)

	assert.Zero(t, report.Summary.Calls)
	assert.Empty(t, report.Recommendations)
}
