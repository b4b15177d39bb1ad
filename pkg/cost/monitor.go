// Package cost prices AI calls, keeps a bounded log of them and reports budget overruns.
package cost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
)

const (
	// DefaultCapacity is the number of records kept in the rolling log.
	DefaultCapacity = 1000

	// premiumShareLimit is the share of simple-plan calls on a premium model above which
	// cheaper-tier reuse is recommended.
	premiumShareLimit = 0.3

	nodeCountTolerance = 2
	tokensPerMillion   = 1_000_000
)

// ErrUnknownModel is returned when a model has no entry in the price table.
var ErrUnknownModel = errors.New("model has no configured price")

// Price is the per-million-token rate of a model.
type Price struct {
	InputPerMillion  float64 `yaml:"input_per_million"  json:"inputPerMillion"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"outputPerMillion"`
}

// PriceTable maps model identifiers to prices.
type PriceTable map[string]Price

// DefaultPrices covers the Bedrock models used by the completion client.
func DefaultPrices() PriceTable {
	return PriceTable{
		"anthropic.claude-3-haiku-20240307-v1:0":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
		"anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPerMillion: 0.8, OutputPerMillion: 4},
		"anthropic.claude-3-5-sonnet-20240620-v1:0": {InputPerMillion: 3, OutputPerMillion: 15},
	}
}

// Budget holds the ceilings checked for every record. Zero disables a ceiling.
type Budget struct {
	PerCall   float64 `json:"perCall"`
	PerWindow float64 `json:"perWindow"`
}

// Sink receives every record in addition to the in-memory log.
type Sink interface {
	Write(ctx context.Context, record models.CostRecord) error
}

// Config configures a Monitor.
type Config struct {
	Prices   PriceTable
	Budget   Budget
	Capacity int
	Sink     Sink
}

// Shape describes a workflow for optimization lookups.
type Shape struct {
	Tier      models.ComplexityTier
	NodeCount int
}

// Summary aggregates the records currently in the log.
type Summary struct {
	Calls        int                     `json:"calls"`
	TotalCost    float64                 `json:"totalCost"`
	InputTokens  int                     `json:"inputTokens"`
	OutputTokens int                     `json:"outputTokens"`
	ByModel      map[string]ModelSummary `json:"byModel"`
	ByTier       map[string]float64      `json:"byTier"`
	Budget       Budget                  `json:"budget"`
	WindowStart  time.Time               `json:"windowStart,omitzero"`
}

// ModelSummary aggregates the records of one model.
type ModelSummary struct {
	Calls int     `json:"calls"`
	Cost  float64 `json:"cost"`
}

// Monitor owns the rolling cost log of one process. Safe for concurrent use.
type Monitor struct {
	prices PriceTable
	budget Budget
	sink   Sink
	logger *slog.Logger

	mu    sync.Mutex
	ring  []models.CostRecord
	next  int
	count int
}

// NewMonitor creates a monitor. Zero config values fall back to defaults.
func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Prices == nil {
		cfg.Prices = DefaultPrices()
	}

	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}

	return &Monitor{
		prices: cfg.Prices,
		budget: cfg.Budget,
		sink:   cfg.Sink,
		logger: logger.With("module", "cost_monitor"),
		ring:   make([]models.CostRecord, cfg.Capacity),
	}
}

// CalculateCost prices a call. The result is linear in both token counts.
func (m *Monitor) CalculateCost(model string, inputTokens, outputTokens int) (float64, error) {
	price, ok := m.prices[model]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	return float64(inputTokens)*price.InputPerMillion/tokensPerMillion +
		float64(outputTokens)*price.OutputPerMillion/tokensPerMillion, nil
}

// NewRecord prices a call into a record without logging it.
func (m *Monitor) NewRecord(model string, inputTokens, outputTokens int, tier models.ComplexityTier) (models.CostRecord, error) {
	cost, err := m.CalculateCost(model, inputTokens, outputTokens)
	if err != nil {
		return models.CostRecord{}, err
	}

	return models.CostRecord{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Tier:         tier,
		RecordedAt:   time.Now().UTC(),
	}, nil
}

// Record appends the record to the log, forwards it to the sink and returns budget warnings.
// It never fails the caller: the call being priced has already happened.
func (m *Monitor) Record(ctx context.Context, record models.CostRecord) []string {
	warnings := m.CheckBudget(record)

	m.mu.Lock()
	m.ring[m.next] = record
	m.next = (m.next + 1) % len(m.ring)
	m.count = min(m.count+1, len(m.ring))
	m.mu.Unlock()

	if m.sink != nil {
		err := m.sink.Write(ctx, record)
		if err != nil {
			m.logger.WarnContext(ctx, "Failed to forward cost record to sink", "error", err, "model", record.Model)
		}
	}

	for _, warning := range warnings {
		m.logger.WarnContext(ctx, "Cost budget exceeded", "warning", warning, "model", record.Model, "job_id", record.JobID)
	}

	return warnings
}

// Restore loads previously persisted records into the log without forwarding them to the sink.
func (m *Monitor) Restore(records []models.CostRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range records {
		m.ring[m.next] = record
		m.next = (m.next + 1) % len(m.ring)
		m.count = min(m.count+1, len(m.ring))
	}
}

// CheckBudget compares a record, logged or hypothetical, against the ceilings.
// The window total includes the record itself.
func (m *Monitor) CheckBudget(record models.CostRecord) []string {
	var warnings []string

	if m.budget.PerCall > 0 && record.Cost > m.budget.PerCall {
		warnings = append(warnings, fmt.Sprintf("call on %s cost $%.6f, above the per-call budget of $%.6f",
			record.Model, record.Cost, m.budget.PerCall))
	}

	if m.budget.PerWindow > 0 {
		total := m.windowTotal() + record.Cost
		if total > m.budget.PerWindow {
			warnings = append(warnings, fmt.Sprintf("window spend would reach $%.6f, above the window budget of $%.6f",
				total, m.budget.PerWindow))
		}
	}

	return warnings
}

// Recent returns up to n records, newest last. A non-positive n returns the whole log.
func (m *Monitor) Recent(n int) []models.CostRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > m.count {
		n = m.count
	}

	records := make([]models.CostRecord, 0, n)
	start := (m.next - n + len(m.ring)) % len(m.ring)

	for i := range n {
		records = append(records, m.ring[(start+i)%len(m.ring)])
	}

	return records
}

// Summary totals the current log.
func (m *Monitor) Summary() Summary {
	records := m.Recent(0)

	summary := Summary{
		Calls:   len(records),
		ByModel: make(map[string]ModelSummary),
		ByTier:  make(map[string]float64),
		Budget:  m.budget,
	}

	for _, record := range records {
		summary.TotalCost += record.Cost
		summary.InputTokens += record.InputTokens
		summary.OutputTokens += record.OutputTokens

		model := summary.ByModel[record.Model]
		model.Calls++
		model.Cost += record.Cost
		summary.ByModel[record.Model] = model

		summary.ByTier[string(record.Tier)] += record.Cost
	}

	if len(records) > 0 {
		summary.WindowStart = records[0].RecordedAt
	}

	return summary
}

// GetOptimizationRecommendations inspects logged calls for workflows of the given shape and
// suggests cheaper-tier reuse when premium models served simple plans disproportionately.
func (m *Monitor) GetOptimizationRecommendations(shape Shape) []string {
	cheapest, cheapestPrice := m.cheapestModel()

	var (
		recommendations []string
		simpleCalls     int
		premiumCalls    int
		premiumCost     float64
		cheapCost       float64
		premiumModels   = make(map[string]bool)
	)

	for _, record := range m.Recent(0) {
		if record.Tier != models.ComplexityTierSimple {
			continue
		}

		if shape.NodeCount > 0 && record.NodeCount > 0 && abs(record.NodeCount-shape.NodeCount) > nodeCountTolerance {
			continue
		}

		simpleCalls++

		price, ok := m.prices[record.Model]
		if !ok || record.Model == cheapest || price.InputPerMillion <= cheapestPrice.InputPerMillion {
			continue
		}

		premiumCalls++
		premiumCost += record.Cost
		premiumModels[record.Model] = true

		cheap, _ := m.CalculateCost(cheapest, record.InputTokens, record.OutputTokens)
		cheapCost += cheap
	}

	if simpleCalls > 0 && float64(premiumCalls)/float64(simpleCalls) > premiumShareLimit {
		names := make([]string, 0, len(premiumModels))
		for name := range premiumModels {
			names = append(names, name)
		}

		sort.Strings(names)

		recommendations = append(recommendations, fmt.Sprintf(
			"%d of %d simple-plan calls used higher-tier models %v; reuse %s for simple plans to save about $%.4f",
			premiumCalls, simpleCalls, names, cheapest, math.Max(premiumCost-cheapCost, 0)))
	}

	if shape.Tier == models.ComplexityTierSimple && premiumCalls == 0 && simpleCalls > 0 {
		size := ""
		if shape.NodeCount > 0 {
			size = fmt.Sprintf(" of about %d nodes", shape.NodeCount)
		}

		recommendations = append(recommendations, fmt.Sprintf(
			"simple workflows%s already run on %s; no change needed", size, cheapest))
	}

	if m.budget.PerWindow > 0 {
		total := m.windowTotal()
		if total > 0.8*m.budget.PerWindow {
			recommendations = append(recommendations, fmt.Sprintf(
				"window spend $%.4f is above 80%% of the $%.4f budget; prefer deterministic generation for simple plans",
				total, m.budget.PerWindow))
		}
	}

	return recommendations
}

// Shapes returns the distinct tier and node count pairs in the log, ordered by tier then size.
func (m *Monitor) Shapes() []Shape {
	seen := make(map[Shape]bool)

	var shapes []Shape

	for _, record := range m.Recent(0) {
		shape := Shape{Tier: record.Tier, NodeCount: record.NodeCount}
		if !seen[shape] {
			seen[shape] = true
			shapes = append(shapes, shape)
		}
	}

	sort.Slice(shapes, func(i, j int) bool {
		if shapes[i].Tier != shapes[j].Tier {
			return shapes[i].Tier < shapes[j].Tier
		}

		return shapes[i].NodeCount < shapes[j].NodeCount
	})

	return shapes
}

// Recommendations runs GetOptimizationRecommendations for every shape in the log and drops repeats.
func (m *Monitor) Recommendations() []string {
	seen := make(map[string]bool)
	recommendations := make([]string, 0)

	for _, shape := range m.Shapes() {
		for _, recommendation := range m.GetOptimizationRecommendations(shape) {
			if !seen[recommendation] {
				seen[recommendation] = true
				recommendations = append(recommendations, recommendation)
			}
		}
	}

	return recommendations
}

func (m *Monitor) windowTotal() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for i := range m.count {
		total += m.ring[(m.next-1-i+len(m.ring))%len(m.ring)].Cost
	}

	return total
}

func (m *Monitor) cheapestModel() (string, Price) {
	names := make([]string, 0, len(m.prices))
	for name := range m.prices {
		names = append(names, name)
	}

	sort.Strings(names)

	var (
		cheapest string
		best     Price
	)

	for _, name := range names {
		price := m.prices[name]
		if cheapest == "" || price.InputPerMillion+price.OutputPerMillion < best.InputPerMillion+best.OutputPerMillion {
			cheapest, best = name, price
		}
	}

	return cheapest, best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}
