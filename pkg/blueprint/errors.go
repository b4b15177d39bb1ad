package blueprint

import (
	"errors"
	"fmt"
)

// Construction failures. These are fatal for a job: the plan cannot be represented as a graph.
var (
	ErrEmptyPlan           = errors.New("plan has no triggers and no steps")
	ErrUnknownStepKind     = errors.New("no node template for step kind")
	ErrDuplicateElement    = errors.New("duplicate trigger or step id")
	ErrUnknownEdgeEndpoint = errors.New("edge references an unknown trigger or step")
	ErrEdgeIntoTrigger     = errors.New("edge targets a trigger")
	ErrCyclicPlan          = errors.New("plan edges form a cycle")
	ErrMissingParameter    = errors.New("required parameter is missing or empty")
)

// ConstructionError describes why a plan element could not be turned into a node.
type ConstructionError struct {
	ElementID string // Trigger or step id, empty for plan-level failures
	Kind      string // Requested kind, if applicable
	Message   string // Additional context
	Err       error  // Underlying sentinel
}

func (e *ConstructionError) Error() string {
	target := "plan"
	if e.ElementID != "" {
		target = fmt.Sprintf("element %q", e.ElementID)
	}

	if e.Kind != "" {
		target += fmt.Sprintf(" (kind %q)", e.Kind)
	}

	if e.Message != "" {
		return fmt.Sprintf("cannot construct %s: %v: %s", target, e.Err, e.Message)
	}

	return fmt.Sprintf("cannot construct %s: %v", target, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

func (e *ConstructionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsConstructionError reports whether err is a blueprint construction failure.
func IsConstructionError(err error) bool {
	var constructionErr *ConstructionError

	return errors.As(err, &constructionErr)
}

func newConstructionError(elementID, kind string, err error, message string) *ConstructionError {
	return &ConstructionError{
		ElementID: elementID,
		Kind:      kind,
		Message:   message,
		Err:       err,
	}
}
