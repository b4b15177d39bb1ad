// Package completion calls the external AI text-completion service.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/flowforge/flowforge/pkg/models"
)

var (
	// ErrMalformedJSON is returned when a completion does not contain the expected JSON.
	ErrMalformedJSON = errors.New("completion did not contain valid JSON")

	// ErrThrottled is returned when the provider rejects the call for rate reasons.
	ErrThrottled = errors.New("completion provider throttled the request")

	// ErrAccessDenied is returned for credential or permission failures.
	ErrAccessDenied = errors.New("completion provider denied access")

	// ErrUnavailable covers provider-side outages.
	ErrUnavailable = errors.New("completion provider unavailable")
)

// Request is one prompt for the completion service.
type Request struct {
	System    string
	Prompt    string
	Tier      models.GenerationTier
	MaxTokens int
}

// Response is the completion text and the usage it was billed for.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer turns prompts into completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// DecodeJSON extracts the JSON object in a completion (bare or inside a fenced block) into v.
func DecodeJSON(text string, v any) error {
	body := strings.TrimSpace(text)

	if start := strings.Index(body, "```"); start >= 0 {
		rest := body[start+3:]
		rest = strings.TrimPrefix(rest, "json")

		if end := strings.Index(rest, "```"); end >= 0 {
			body = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')

	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object found", ErrMalformedJSON)
	}

	err := json.Unmarshal([]byte(body[start:end+1]), v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}

	return nil
}
