package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for rule lifecycle and catalog operations.
var (
	// ErrDuplicateCode indicates rule creation with a code that already exists.
	ErrDuplicateCode = errors.New("rule code already exists")

	// ErrNotFound indicates an operation referencing a nonexistent rule.
	ErrNotFound = errors.New("rule not found")

	// ErrVersionNotFound indicates a rollback target version that does not exist.
	ErrVersionNotFound = errors.New("rule version not found")

	// ErrConcurrentModification indicates an optimistic-lock conflict during
	// a rule mutation. The caller may retry against the new state.
	ErrConcurrentModification = errors.New("rule modified concurrently")

	// ErrCatalogUnavailable indicates the rule catalog could not be queried.
	// Fatal to a pipeline run: no trace is produced and the claim must be
	// treated as not adjudicated.
	ErrCatalogUnavailable = errors.New("rule catalog unavailable")

	// ErrInvalidCondition indicates a condition tree that fails structural
	// validation (empty AND/OR, NOT without exactly one child, unknown
	// operator, or excessive depth).
	ErrInvalidCondition = errors.New("invalid condition")
)

// EvaluationErrorKind classifies evaluation failures scoped to one rule.
type EvaluationErrorKind string

const (
	// DepthExceeded means condition recursion exceeded MaxConditionDepth.
	DepthExceeded EvaluationErrorKind = "depth_exceeded"

	// TypeMismatch means an operator was applied to incomparable value types.
	// Ordering operators absorb mismatches into the node trace instead of
	// raising this; it surfaces only where a result cannot be recorded at all.
	TypeMismatch EvaluationErrorKind = "type_mismatch"
)

// EvaluationError is scoped to one rule's evaluation during a pipeline run.
// The pipeline records it on that rule's trace entry and continues.
type EvaluationError struct {
	Kind  EvaluationErrorKind
	Field string // offending comparison field, when known
}

func (e *EvaluationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("evaluation failed: %s (field %q)", e.Kind, e.Field)
	}
	return fmt.Sprintf("evaluation failed: %s", e.Kind)
}

// IsEvaluationError reports whether err is an EvaluationError and returns it.
func IsEvaluationError(err error) (*EvaluationError, bool) {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
