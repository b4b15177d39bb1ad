package models

import "time"

// ComplexityTier is the coarse complexity class of a plan.
type ComplexityTier string

const (
	ComplexityTierSimple  ComplexityTier = "simple"
	ComplexityTierComplex ComplexityTier = "complex"
)

// GenerationTier is the cost/quality budget used for AI-assisted calls.
type GenerationTier string

const (
	GenerationTierEconomy GenerationTier = "economy"
	GenerationTierPremium GenerationTier = "premium"
)

// Signal is one weighted contribution to a complexity score.
type Signal struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ComplexityAnalysis is the scored complexity of a plan and its business context.
type ComplexityAnalysis struct {
	Score           float64        `json:"score"`
	Tier            ComplexityTier `json:"tier"`
	RecommendedTier GenerationTier `json:"recommendedTier"`
	Signals         []Signal       `json:"signals,omitempty"`
	Reasoning       []string       `json:"reasoning"`
}

// ValidationResult is the verdict of a validator run.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// CostRecord is one priced AI call. Records are never mutated after creation.
type CostRecord struct {
	Model        string         `json:"model"`
	InputTokens  int            `json:"inputTokens"`
	OutputTokens int            `json:"outputTokens"`
	Cost         float64        `json:"cost"`
	Tier         ComplexityTier `json:"tier"`
	NodeCount    int            `json:"nodeCount,omitempty"`
	JobID        string         `json:"jobId,omitempty"`
	RecordedAt   time.Time      `json:"recordedAt"`
}
