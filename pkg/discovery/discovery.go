// Package discovery talks to the external node-capability discovery service.
package discovery

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable is returned when the service cannot be reached.
	ErrUnavailable = errors.New("discovery service unavailable")

	// ErrIncompleteResult is returned when a response lacks required fields.
	ErrIncompleteResult = errors.New("discovery service returned an incomplete result")

	// ErrToolFailed is returned when the service reports an error for a call.
	ErrToolFailed = errors.New("discovery tool call failed")
)

// Essentials is the live capability metadata of one node kind.
type Essentials struct {
	Kind           string         `json:"kind"`
	DisplayName    string         `json:"displayName"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category,omitempty"`
	Version        int            `json:"version"`
	RequiredParams []string       `json:"requiredParams,omitempty"`
	Defaults       map[string]any `json:"defaults,omitempty"`
}

// Verdict is the service's opinion on a node configuration.
type Verdict struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Service is the discovery API consumed by the hybrid generator. Every call is bounded by a timeout.
type Service interface {
	Ping(ctx context.Context) error
	SearchNodeKinds(ctx context.Context, query string) ([]string, error)
	GetNodeEssentials(ctx context.Context, kind string) (*Essentials, error)
	ValidateNodeConfiguration(ctx context.Context, kind string, params map[string]any) (*Verdict, error)
}

// NormalizeKind converts the service's short node types to engine node kinds.
func NormalizeKind(kind string) string {
	kind = strings.TrimSpace(kind)

	switch {
	case strings.HasPrefix(kind, "nodes-base."):
		return "n8n-" + kind
	case strings.HasPrefix(kind, "nodes-langchain."):
		return "@n8n/n8n-" + kind
	default:
		return kind
	}
}
