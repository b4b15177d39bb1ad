// Package contextopt selects the node documentation slice passed to AI-assisted generation.
package contextopt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
)

// Archetype is the coarse shape of a workflow.
type Archetype string

const (
	ArchetypeEmailAutomation  Archetype = "email-automation"
	ArchetypeApprovalWorkflow Archetype = "approval-workflow"
	ArchetypeAIProcessing     Archetype = "ai-processing"
	ArchetypeDataSync         Archetype = "data-sync"
	ArchetypeNotification     Archetype = "notification"
	ArchetypeWebhookRelay     Archetype = "webhook-relay"
	ArchetypeGeneric          Archetype = "generic"
)

// ErrUnknownArchetype is returned by ParseArchetype for names outside the archetype set.
var ErrUnknownArchetype = errors.New("unknown workflow archetype")

// ParseArchetype returns the archetype called name, ignoring surrounding space and case.
func ParseArchetype(name string) (Archetype, error) {
	archetype := Archetype(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := profiles[archetype]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownArchetype, name)
	}

	return archetype, nil
}

// Documentation budgets per tier and the hard ceiling applied to both.
const (
	simpleDocCount   = 4
	simpleCharsPer   = 600
	complexDocCount  = 10
	complexCharsPer  = 1500
	MaxNodeDocCount  = 12
	MaxCharsPerDoc   = 2000
	MaxTotalDocChars = 18000
)

// Context is the documentation descriptor handed to AI-assisted generation.
type Context struct {
	Archetype      Archetype `json:"workflowArchetype"`
	FocusNodeKinds []string  `json:"focusNodeKinds"`
	FocusAreas     []string  `json:"focusAreas"`
	NodeDocCount   int       `json:"nodeDocCount"`
	CharsPerDoc    int       `json:"charsPerDoc"`
}

// rule classifies a plan into an archetype when its predicate holds.
type rule struct {
	archetype Archetype
	matches   func(p planFacts) bool
}

type archetypeProfile struct {
	kinds  []string
	topics []string
}

// Rules run in order; the first match wins, generic is the default.
var rules = []rule{
	{ArchetypeApprovalWorkflow, func(p planFacts) bool {
		return p.hasKind("approval", "wait", "manual_review", "human_review") || p.mentions("approval", "approve", "sign-off", "sign off")
	}},
	{ArchetypeAIProcessing, func(p planFacts) bool {
		return p.hasKind("ai", "openai", "llm", "classify", "classification", "summarize", "sentiment") ||
			p.mentions("classify", "classification", "sentiment", "summariz", " llm ", " gpt")
	}},
	{ArchetypeDataSync, func(p planFacts) bool {
		return (p.integrations >= 2 && p.mentions("sync", "synchroniz", "mirror", "replicat", "import", "export")) ||
			(p.hasKind("sheets", "google_sheets", "googlesheets", "postgres", "database", "airtable", "crm", "hubspot") && p.mentions("sync", "update", "record"))
	}},
	{ArchetypeEmailAutomation, func(p planFacts) bool {
		return p.hasKind("email", "gmail", "smtp", "mail", "email_trigger", "inbox", "imap", "emailsend", "emailreadimap") || p.hasIntegration("gmail", "outlook", "email", "smtp")
	}},
	{ArchetypeNotification, func(p planFacts) bool {
		return p.hasKind("slack", "telegram", "notify", "notification", "alert", "sms")
	}},
	{ArchetypeWebhookRelay, func(p planFacts) bool {
		return p.steps <= 2 && p.hasKind("webhook") && p.hasKind("http", "api", "http_request", "httprequest", "rest")
	}},
}

var profiles = map[Archetype]archetypeProfile{
	ArchetypeEmailAutomation: {
		kinds:  []string{"n8n-nodes-base.emailReadImap", "n8n-nodes-base.emailSend", "n8n-nodes-base.gmail", "n8n-nodes-base.if", "n8n-nodes-base.set"},
		topics: []string{"email", "notifications"},
	},
	ArchetypeApprovalWorkflow: {
		kinds:  []string{"n8n-nodes-base.wait", "n8n-nodes-base.if", "n8n-nodes-base.slack", "n8n-nodes-base.emailSend"},
		topics: []string{"approval", "branching", "notifications"},
	},
	ArchetypeAIProcessing: {
		kinds:  []string{"@n8n/n8n-nodes-langchain.openAi", "n8n-nodes-base.switch", "n8n-nodes-base.set", "n8n-nodes-base.code"},
		topics: []string{"ai", "classification", "transformation"},
	},
	ArchetypeDataSync: {
		kinds:  []string{"n8n-nodes-base.scheduleTrigger", "n8n-nodes-base.googleSheets", "n8n-nodes-base.postgres", "n8n-nodes-base.hubspot", "n8n-nodes-base.airtable", "n8n-nodes-base.merge"},
		topics: []string{"data", "sync", "database"},
	},
	ArchetypeNotification: {
		kinds:  []string{"n8n-nodes-base.slack", "n8n-nodes-base.telegram", "n8n-nodes-base.emailSend"},
		topics: []string{"notifications", "chat"},
	},
	ArchetypeWebhookRelay: {
		kinds:  []string{"n8n-nodes-base.webhook", "n8n-nodes-base.httpRequest", "n8n-nodes-base.set"},
		topics: []string{"http"},
	},
	ArchetypeGeneric: {
		kinds:  []string{"n8n-nodes-base.webhook", "n8n-nodes-base.httpRequest", "n8n-nodes-base.set", "n8n-nodes-base.if"},
		topics: []string{"http", "integrations"},
	},
}

// Classify returns the archetype of the plan.
func Classify(plan *models.OrchestrationPlan) Archetype {
	facts := factsOf(plan)

	for _, r := range rules {
		if r.matches(facts) {
			return r.archetype
		}
	}

	return ArchetypeGeneric
}

// Optimize derives the documentation context for a plan under the analysed complexity.
func Optimize(plan *models.OrchestrationPlan, analysis models.ComplexityAnalysis) Context {
	archetype := Classify(plan)
	profile := profiles[archetype]

	docCount, chars := Budget(analysis.Tier)

	return Context{
		Archetype:      archetype,
		FocusNodeKinds: append([]string(nil), profile.kinds...),
		FocusAreas:     append([]string(nil), profile.topics...),
		NodeDocCount:   docCount,
		CharsPerDoc:    chars,
	}
}

// Budget returns the documentation budget for a tier, capped by the hard ceilings.
func Budget(tier models.ComplexityTier) (int, int) {
	docCount, chars := simpleDocCount, simpleCharsPer
	if tier == models.ComplexityTierComplex {
		docCount, chars = complexDocCount, complexCharsPer
	}

	docCount = min(docCount, MaxNodeDocCount)
	chars = min(chars, MaxCharsPerDoc)

	if docCount*chars > MaxTotalDocChars {
		chars = MaxTotalDocChars / docCount
	}

	return docCount, chars
}

// Doc is one truncated template documentation snippet.
type Doc struct {
	Kind string
	Text string
}

// SelectDocs returns the documentation snippets for the context: focus kinds first, then
// templates sharing a focus area, truncated to the budget.
func SelectDocs(registry *templates.Registry, ctx Context) []Doc {
	candidates := make([]*templates.Template, 0, ctx.NodeDocCount)

	for _, kind := range ctx.FocusNodeKinds {
		if template, ok := registry.Get(kind); ok {
			candidates = append(candidates, template)
		}
	}

	candidates = append(candidates, registry.WithTopics(ctx.FocusAreas...)...)

	docs := make([]Doc, 0, ctx.NodeDocCount)
	seen := make(map[string]bool)

	for _, template := range candidates {
		if len(docs) >= ctx.NodeDocCount {
			break
		}

		if seen[template.Kind] {
			continue
		}

		seen[template.Kind] = true
		docs = append(docs, Doc{Kind: template.Kind, Text: truncate(template.Documentation, ctx.CharsPerDoc)})
	}

	return docs
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}

	cut := s[:end]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}

	return cut + "..."
}

type planFacts struct {
	kinds        map[string]bool
	integrations int
	integration  map[string]bool
	steps        int
	text         string
}

func factsOf(plan *models.OrchestrationPlan) planFacts {
	facts := planFacts{
		kinds:       make(map[string]bool),
		integration: make(map[string]bool),
		steps:       len(plan.Steps),
		text:        " " + plan.Text() + " " + strings.ToLower(strings.Join(plan.Integrations, " ")) + " ",
	}

	for _, kind := range plan.Kinds() {
		facts.kinds[normalize(kind)] = true
	}

	for _, integration := range plan.Integrations {
		key := normalize(integration)
		if !facts.integration[key] {
			facts.integration[key] = true
			facts.integrations++
		}
	}

	return facts
}

func (p planFacts) hasKind(kinds ...string) bool {
	for _, kind := range kinds {
		if p.kinds[kind] {
			return true
		}

		for known := range p.kinds {
			// Qualified kinds such as "n8n-nodes-base.gmail"
			if strings.HasSuffix(known, "."+kind) {
				return true
			}
		}
	}

	return false
}

func (p planFacts) hasIntegration(names ...string) bool {
	for _, name := range names {
		if p.integration[name] {
			return true
		}
	}

	return false
}

func (p planFacts) mentions(keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(p.text, keyword) {
			return true
		}
	}

	return false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")

	return strings.ReplaceAll(s, " ", "_")
}
