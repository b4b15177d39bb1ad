package complexity

import (
	"testing"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signalWeight(analysis models.ComplexityAnalysis, name string) float64 {
	for _, signal := range analysis.Signals {
		if signal.Name == name {
			return signal.Weight
		}
	}

	return -1
}

func complexPlan() *models.OrchestrationPlan {
	return &models.OrchestrationPlan{
		Name:        "Lead sync",
		Description: "Classify leads and sync them to HubSpot",
		Triggers:    []models.TriggerSpec{{ID: "t", Name: "Form", Kind: "webhook"}},
		Steps: []models.StepSpec{
			testutil.Step("classify", "Classify Lead", "ai"),
			testutil.Step("check", "Is Qualified", "if"),
			testutil.Step("crm", "Upsert Contact", "hubspot"),
			testutil.Step("sheet", "Log Row", "sheets"),
			testutil.Step("notify", "Notify Sales", "slack"),
		},
		Integrations: []string{"HubSpot", "sheets", "Slack", "hubspot "},
	}
}

func TestNewAnalyzer_DefaultThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, NewAnalyzer(0).Threshold())
	assert.Equal(t, DefaultThreshold, NewAnalyzer(-3).Threshold())
	assert.Equal(t, 7.5, NewAnalyzer(7.5).Threshold())
}

func TestAnalyze_SimplePlan(t *testing.T) {
	analysis := NewAnalyzer(DefaultThreshold).Analyze(testutil.CreateTestPlan(), models.BusinessContext{ExpectedVolume: 50})

	assert.Equal(t, 1.0, analysis.Score)
	assert.Equal(t, models.ComplexityTierSimple, analysis.Tier)
	assert.Equal(t, models.GenerationTierEconomy, analysis.RecommendedTier)
	assert.Equal(t, 1.0, signalWeight(analysis, SignalDistinctKinds))
	assert.Equal(t, 0.0, signalWeight(analysis, SignalAIProcessing))
	require.Len(t, analysis.Reasoning, 2)
	assert.Equal(t, "2 distinct trigger/step kinds (+1.00)", analysis.Reasoning[0])
	assert.Equal(t, "score 1.00 against threshold 5.00: simple", analysis.Reasoning[1])
}

func TestAnalyze_ComplexPlan(t *testing.T) {
	analysis := NewAnalyzer(DefaultThreshold).Analyze(complexPlan(), models.BusinessContext{ExpectedVolume: 20000})

	assert.Equal(t, 14.25, analysis.Score)
	assert.Equal(t, models.ComplexityTierComplex, analysis.Tier)
	assert.Equal(t, models.GenerationTierPremium, analysis.RecommendedTier)

	assert.Equal(t, 3.0, signalWeight(analysis, SignalDistinctKinds))
	assert.Equal(t, 2.25, signalWeight(analysis, SignalIntegrations))
	assert.Equal(t, 2.5, signalWeight(analysis, SignalAIProcessing))
	assert.Equal(t, 2.0, signalWeight(analysis, SignalBranching))
	assert.Equal(t, 2.0, signalWeight(analysis, SignalVolume))
	assert.Equal(t, 2.5, signalWeight(analysis, SignalMultiSync))

	assert.Contains(t, analysis.Reasoning, "expected volume 20000/day (+2.00)")
	assert.Contains(t, analysis.Reasoning, "3 external integrations (+2.25)")
}

func TestAnalyze_ThresholdIsInclusive(t *testing.T) {
	analysis := NewAnalyzer(1.0).Analyze(testutil.CreateTestPlan(), models.BusinessContext{})

	assert.Equal(t, models.ComplexityTierComplex, analysis.Tier)
}

func TestAnalyze_Deterministic(t *testing.T) {
	analyzer := NewAnalyzer(DefaultThreshold)
	business := models.BusinessContext{Industry: "retail", ExpectedVolume: 1500}

	assert.Equal(t, analyzer.Analyze(complexPlan(), business), analyzer.Analyze(complexPlan(), business))
}

func TestAnalyze_ScoreWithinScale(t *testing.T) {
	plan := complexPlan()
	plan.Integrations = append(plan.Integrations, "airtable", "gmail", "stripe", "zendesk", "jira")
	plan.Steps = append(plan.Steps,
		testutil.Step("a", "A", "airtable"), testutil.Step("b", "B", "gmail"), testutil.Step("c", "C", "code"))

	analysis := NewAnalyzer(DefaultThreshold).Analyze(plan, models.BusinessContext{ExpectedVolume: 1_000_000})

	assert.LessOrEqual(t, analysis.Score, 15.0)
	assert.Equal(t, 3.0, signalWeight(analysis, SignalDistinctKinds))
	assert.Equal(t, 3.0, signalWeight(analysis, SignalIntegrations))
}

func TestAnalyze_Volume(t *testing.T) {
	analyzer := NewAnalyzer(DefaultThreshold)
	plan := testutil.CreateTestPlan()

	assert.Equal(t, 1.0, signalWeight(analyzer.Analyze(plan, models.BusinessContext{ExpectedVolume: 1000}), SignalVolume))
	assert.Equal(t, 2.0, signalWeight(analyzer.Analyze(plan, models.BusinessContext{ExpectedVolume: 10000}), SignalVolume))

	bulk := testutil.CreateTestPlan(func(p *models.OrchestrationPlan) {
		p.Description = "Bulk import of thousands of leads"
	})

	analysis := analyzer.Analyze(bulk, models.BusinessContext{})
	assert.Equal(t, 1.0, signalWeight(analysis, SignalVolume))
	assert.Contains(t, analysis.Reasoning, "high message volume inferred from description (+1.00)")
}

func TestAnalyze_BranchingFromFanOut(t *testing.T) {
	plan := testutil.CreateTestPlan(
		testutil.WithSteps(testutil.Step("a", "A", "set"), testutil.Step("b", "B", "set")),
		testutil.WithEdges(
			models.PlanEdge{From: "trigger", To: "a"},
			models.PlanEdge{From: "trigger", To: "b"},
		),
	)

	analysis := NewAnalyzer(DefaultThreshold).Analyze(plan, models.BusinessContext{})

	assert.Equal(t, 2.0, signalWeight(analysis, SignalBranching))
}

func TestAnalyze_HintsAndRegulatedIndustry(t *testing.T) {
	analysis := NewAnalyzer(DefaultThreshold).Analyze(testutil.CreateTestPlan(), models.BusinessContext{
		Industry:        "Healthcare",
		ComplexityHints: []string{"Sentiment scoring", "escalate urgent tickets"},
	})

	assert.Equal(t, 2.5, signalWeight(analysis, SignalAIProcessing))
	assert.Equal(t, 2.0, signalWeight(analysis, SignalBranching))
	assert.Contains(t, analysis.Reasoning, `industry "Healthcare" is regulated; review generated credentials handling`)
}

func TestRecommendedTier(t *testing.T) {
	assert.Equal(t, models.GenerationTierEconomy, RecommendedTier(models.ComplexityTierSimple))
	assert.Equal(t, models.GenerationTierPremium, RecommendedTier(models.ComplexityTierComplex))
}
