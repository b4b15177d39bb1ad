// Package templates provides the node template registry used to build and validate workflow graphs.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"dario.cat/mergo"
	"github.com/flowforge/flowforge/pkg/models"
	"gopkg.in/yaml.v3"
)

// Well-known template kinds referenced by the generators.
const (
	KindWebhook     = "n8n-nodes-base.webhook"
	KindHTTPRequest = "n8n-nodes-base.httpRequest"
	KindMerge       = "n8n-nodes-base.merge"
	KindNoOp        = "n8n-nodes-base.noOp"
)

//go:embed catalog.yaml
var builtinCatalog []byte

var (
	// ErrTemplateNotFound is returned when no template matches a kind or alias.
	ErrTemplateNotFound = errors.New("node template not found")

	// ErrDuplicateTemplate is returned when a kind is registered twice.
	ErrDuplicateTemplate = errors.New("node template already registered")
)

// Template describes a known node kind: its parameters, defaults and credential needs.
type Template struct {
	Kind           string              `yaml:"kind"`
	DisplayName    string              `yaml:"display_name"`
	Version        int                 `yaml:"version"`
	Category       models.CategoryType `yaml:"category"`
	Description    string              `yaml:"description"`
	Aliases        []string            `yaml:"aliases"`
	Topics         []string            `yaml:"topics"`
	RequiredParams []string            `yaml:"required_params"`
	Defaults       map[string]any      `yaml:"defaults"`
	Credentials    []string            `yaml:"credentials"`
	RiskyTerminal  bool                `yaml:"risky_terminal"`
	Documentation  string              `yaml:"documentation"`
	Schema         map[string]any      `yaml:"schema"`
}

// IsTrigger reports whether nodes of this kind start a workflow.
func (t *Template) IsTrigger() bool {
	return t.Category == models.CategoryTypeTrigger
}

// NewParameters returns the template defaults overridden by each layer in order.
// None of the input maps is modified.
func (t *Template) NewParameters(layers ...map[string]any) (map[string]any, error) {
	params := deepCopy(t.Defaults)

	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}

		err := mergo.Merge(&params, deepCopy(layer), mergo.WithOverride)
		if err != nil {
			return nil, fmt.Errorf("failed to merge parameters for %s: %w", t.Kind, err)
		}
	}

	return params, nil
}

// MissingParams returns the required parameters that are absent or empty in params.
func (t *Template) MissingParams(params map[string]any) []string {
	var missing []string

	for _, name := range t.RequiredParams {
		value, ok := params[name]
		if !ok || IsEmptyValue(value) {
			missing = append(missing, name)
		}
	}

	return missing
}

// IsEmptyValue reports whether a parameter value counts as not provided.
func IsEmptyValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case map[string]any:
		return len(typed) == 0
	case []any:
		return len(typed) == 0
	default:
		return false
	}
}

type catalogFile struct {
	Templates []*Template `yaml:"templates"`
}

// ParseCatalog decodes a YAML template catalog.
func ParseCatalog(data []byte) ([]*Template, error) {
	var catalog catalogFile

	err := yaml.Unmarshal(data, &catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}

	for _, template := range catalog.Templates {
		if template.Kind == "" {
			return nil, errors.New("template catalog entry without kind")
		}

		if template.Version == 0 {
			template.Version = 1
		}

		if template.Category == "" {
			template.Category = models.CategoryTypeAction
		}
	}

	return catalog.Templates, nil
}

// Registry is the catalog of known node templates.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	templates map[string]*Template
	aliases   map[string]string
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		templates: make(map[string]*Template),
		aliases:   make(map[string]string),
	}
}

// NewDefaultRegistry creates a registry loaded with the built-in catalog.
func NewDefaultRegistry(logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(logger)

	err := reg.RegisterDefaultTemplates()
	if err != nil {
		return nil, err
	}

	return reg, nil
}

// RegisterDefaultTemplates registers every template of the built-in catalog.
func (r *Registry) RegisterDefaultTemplates() error {
	templates, err := ParseCatalog(builtinCatalog)
	if err != nil {
		return err
	}

	for _, template := range templates {
		err := r.Register(template)
		if err != nil {
			return err
		}
	}

	r.logger.Debug("Registered built-in node templates", "count", len(templates))

	return nil
}

// Register adds a template and its aliases.
func (r *Registry) Register(template *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[template.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTemplate, template.Kind)
	}

	r.templates[template.Kind] = template
	r.order = append(r.order, template.Kind)

	for _, alias := range template.Aliases {
		key := normalizeKind(alias)
		if owner, taken := r.aliases[key]; taken {
			r.logger.Warn("Template alias already registered, keeping first owner",
				"alias", alias, "owner", owner, "template", template.Kind)

			continue
		}

		r.aliases[key] = template.Kind
	}

	return nil
}

// Get returns the template registered under the exact kind.
func (r *Registry) Get(kind string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	template, ok := r.templates[kind]

	return template, ok
}

// Resolve maps a loose plan kind ("email", "slack", "n8n-nodes-base.if") to a template.
func (r *Registry) Resolve(kind string) (*Template, error) {
	if template, ok := r.Get(kind); ok {
		return template, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := normalizeKind(kind)
	if owner, ok := r.aliases[key]; ok {
		return r.templates[owner], nil
	}

	// "n8n-nodes-base.Slack" or "nodes-base.slack" style kinds
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		if owner, ok := r.aliases[key[idx+1:]]; ok {
			return r.templates[owner], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, kind)
}

// Fallback returns the generic HTTP-call template used for unknown step kinds.
func (r *Registry) Fallback() (*Template, bool) {
	return r.Get(KindHTTPRequest)
}

// IsRiskyTerminal reports whether a dangling node of this kind is a policy violation.
func (r *Registry) IsRiskyTerminal(kind string) bool {
	template, ok := r.Get(kind)

	return ok && template.RiskyTerminal
}

// Templates returns every registered template in registration order.
func (r *Registry) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Template, 0, len(r.order))
	for _, kind := range r.order {
		list = append(list, r.templates[kind])
	}

	return list
}

// WithTopics returns the templates tagged with any of the given topics, in registration order.
func (r *Registry) WithTopics(topics ...string) []*Template {
	var list []*Template

	for _, template := range r.Templates() {
		for _, topic := range template.Topics {
			if slices.Contains(topics, topic) {
				list = append(list, template)

				break
			}
		}
	}

	return list
}

// HealthCheck reports whether the registry holds the templates the assembler depends on.
func (r *Registry) HealthCheck() (string, bool) {
	for _, kind := range []string{KindWebhook, KindHTTPRequest, KindMerge, KindNoOp} {
		if _, ok := r.Get(kind); !ok {
			return "Registry is missing template " + kind, false
		}
	}

	return "Registry is healthy", true
}

func normalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	kind = strings.ReplaceAll(kind, "-", "_")
	kind = strings.ReplaceAll(kind, " ", "_")

	return kind
}

func deepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}

	return out
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopy(typed)
	case []any:
		list := make([]any, len(typed))
		for i, item := range typed {
			list[i] = deepCopyValue(item)
		}

		return list
	default:
		return v
	}
}
