// Package complexity scores orchestration plans to choose a generation tier.
package complexity

import (
	"fmt"
	"math"
	"strings"

	"github.com/flowforge/flowforge/pkg/models"
)

// DefaultThreshold splits simple from complex plans on the 0-15 score scale.
const DefaultThreshold = 5.0

// Signal names.
const (
	SignalDistinctKinds = "distinct_kinds"
	SignalIntegrations  = "integrations"
	SignalAIProcessing  = "ai_processing"
	SignalBranching     = "branching"
	SignalVolume        = "volume"
	SignalMultiSync     = "multi_platform_sync"
)

// Per-signal weight ceilings. Their sum is the maximum score.
const (
	maxKindsWeight       = 3.0
	maxIntegrationWeight = 3.0
	aiWeight             = 2.5
	branchingWeight      = 2.0
	highVolumeWeight     = 2.0
	mediumVolumeWeight   = 1.0
	multiSyncWeight      = 2.5
)

var (
	aiKeywords = []string{
		" ai ", "openai", "gpt", "llm", "classif", "sentiment", "summariz", "summaris",
		"categoriz", "extract", "machine learning", "language model", "intent",
	}
	branchingKinds = []string{
		"if", "switch", "condition", "conditional", "branch", "router", "route", "filter", "decision",
		"n8n-nodes-base.if", "n8n-nodes-base.switch",
	}
	branchingKeywords = []string{" if ", "otherwise", "depending on", "route to", "escalat", "approve or reject"}
	volumeKeywords    = []string{"high volume", "thousands", "bulk", "real-time", "realtime", "every minute", "millions"}
	syncKeywords      = []string{"sync", "synchroniz", "synchronis", "two-way", "bidirectional", "mirror", "replicat"}
	regulated         = []string{"finance", "banking", "healthcare", "insurance", "legal", "government"}
)

// Analyzer computes complexity analyses. It holds configuration only and is safe for concurrent use.
type Analyzer struct {
	threshold float64
}

// NewAnalyzer creates an analyzer. A non-positive threshold selects DefaultThreshold.
func NewAnalyzer(threshold float64) *Analyzer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Analyzer{threshold: threshold}
}

// Threshold returns the score at or above which a plan is complex.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Analyze scores the plan. Identical inputs always produce identical output.
func (a *Analyzer) Analyze(plan *models.OrchestrationPlan, business models.BusinessContext) models.ComplexityAnalysis {
	text := " " + plan.Text() + " " + strings.ToLower(strings.Join(business.ComplexityHints, " ")) + " "

	signals := []models.Signal{
		{Name: SignalDistinctKinds, Weight: kindsWeight(plan)},
		{Name: SignalIntegrations, Weight: integrationsWeight(plan)},
		{Name: SignalAIProcessing, Weight: flagWeight(containsAny(text, aiKeywords), aiWeight)},
		{Name: SignalBranching, Weight: flagWeight(hasBranching(plan, text), branchingWeight)},
		{Name: SignalVolume, Weight: volumeWeight(business.ExpectedVolume, text)},
		{Name: SignalMultiSync, Weight: flagWeight(containsAny(text, syncKeywords) && len(integrations(plan)) >= 2, multiSyncWeight)},
	}

	var (
		score     float64
		reasoning []string
	)

	for _, signal := range signals {
		score += signal.Weight
		if signal.Weight > 0 {
			reasoning = append(reasoning, describe(signal, plan, business))
		}
	}

	score = math.Round(score*100) / 100

	tier := models.ComplexityTierSimple
	if score >= a.threshold {
		tier = models.ComplexityTierComplex
	}

	reasoning = append(reasoning, fmt.Sprintf("score %.2f against threshold %.2f: %s", score, a.threshold, tier))

	if business.Industry != "" && containsAny(strings.ToLower(business.Industry), regulated) {
		reasoning = append(reasoning, fmt.Sprintf("industry %q is regulated; review generated credentials handling", business.Industry))
	}

	return models.ComplexityAnalysis{
		Score:           score,
		Tier:            tier,
		RecommendedTier: RecommendedTier(tier),
		Signals:         signals,
		Reasoning:       reasoning,
	}
}

// RecommendedTier maps a complexity tier to the generation tier used for AI calls.
func RecommendedTier(tier models.ComplexityTier) models.GenerationTier {
	if tier == models.ComplexityTierComplex {
		return models.GenerationTierPremium
	}

	return models.GenerationTierEconomy
}

func kindsWeight(plan *models.OrchestrationPlan) float64 {
	return math.Min(float64(distinctKinds(plan))*0.5, maxKindsWeight)
}

func distinctKinds(plan *models.OrchestrationPlan) int {
	distinct := make(map[string]bool)
	for _, kind := range plan.Kinds() {
		distinct[strings.ToLower(strings.TrimSpace(kind))] = true
	}

	return len(distinct)
}

func integrationsWeight(plan *models.OrchestrationPlan) float64 {
	return math.Min(float64(len(integrations(plan)))*0.75, maxIntegrationWeight)
}

func integrations(plan *models.OrchestrationPlan) []string {
	seen := make(map[string]bool)

	var list []string

	for _, integration := range plan.Integrations {
		key := strings.ToLower(strings.TrimSpace(integration))
		if key != "" && !seen[key] {
			seen[key] = true

			list = append(list, key)
		}
	}

	return list
}

func hasBranching(plan *models.OrchestrationPlan, text string) bool {
	for _, kind := range plan.Kinds() {
		for _, branching := range branchingKinds {
			if strings.EqualFold(kind, branching) {
				return true
			}
		}
	}

	fanOut := make(map[string]int)
	for _, edge := range plan.Edges {
		fanOut[edge.From]++
		if fanOut[edge.From] > 1 {
			return true
		}
	}

	return containsAny(text, branchingKeywords)
}

func volumeWeight(expected int, text string) float64 {
	switch {
	case expected >= 10000:
		return highVolumeWeight
	case expected >= 1000:
		return mediumVolumeWeight
	case expected == 0 && containsAny(text, volumeKeywords):
		return mediumVolumeWeight
	default:
		return 0
	}
}

func flagWeight(present bool, weight float64) float64 {
	if present {
		return weight
	}

	return 0
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}

func describe(signal models.Signal, plan *models.OrchestrationPlan, business models.BusinessContext) string {
	switch signal.Name {
	case SignalDistinctKinds:
		return fmt.Sprintf("%d distinct trigger/step kinds (+%.2f)", distinctKinds(plan), signal.Weight)
	case SignalIntegrations:
		return fmt.Sprintf("%d external integrations (+%.2f)", len(integrations(plan)), signal.Weight)
	case SignalAIProcessing:
		return fmt.Sprintf("AI processing or classification requested (+%.2f)", signal.Weight)
	case SignalBranching:
		return fmt.Sprintf("conditional branching present (+%.2f)", signal.Weight)
	case SignalVolume:
		if business.ExpectedVolume > 0 {
			return fmt.Sprintf("expected volume %d/day (+%.2f)", business.ExpectedVolume, signal.Weight)
		}

		return fmt.Sprintf("high message volume inferred from description (+%.2f)", signal.Weight)
	case SignalMultiSync:
		return fmt.Sprintf("multi-platform synchronization (+%.2f)", signal.Weight)
	default:
		return fmt.Sprintf("%s (+%.2f)", signal.Name, signal.Weight)
	}
}
