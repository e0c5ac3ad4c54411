package dataflow

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Wrap sites add context with
// fmt.Errorf("...: %w", err); callers test with errors.Is.
var (
	// ErrCycle is returned when evaluation re-enters a node that is already
	// being computed, which means the graph contains a dependency cycle.
	ErrCycle = errors.New("dataflow: dependency cycle")

	// ErrRegistryMiss is returned when a specification replay expects a node
	// to be present in the registry and it is not.
	ErrRegistryMiss = errors.New("dataflow: spec not found in registry")

	// ErrDeriveUnsupported is returned by operators that have no symbolic
	// derivation rule for the requested variable.
	ErrDeriveUnsupported = errors.New("dataflow: derivation not supported")

	// ErrNotParameter is returned when SetValue is called on a node that is
	// not a parameter.
	ErrNotParameter = errors.New("dataflow: node is not a parameter")

	// ErrNoIdentity is returned when derivation needs a zero or one constant
	// of an element type that cannot provide one.
	ErrNoIdentity = errors.New("dataflow: element has no zero/one constant")
)

// ConstructionError reports a dependency-pattern violation detected while
// building a node: wrong dependency count, a nil dependency, or a dependency
// of the wrong element type. It always names the operator kind of the node
// under construction and, where applicable, the offending dependency index.
type ConstructionError struct {
	Kind   Kind   // operator kind of the node being constructed
	Index  int    // offending dependency index, or -1
	Reason string // human-readable detail
}

func (e *ConstructionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("dataflow: constructing %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("dataflow: constructing %s: dependency %d: %s", e.Kind, e.Index, e.Reason)
}

func newConstructionError(kind Kind, index int, format string, args ...any) error {
	return &ConstructionError{Kind: kind, Index: index, Reason: fmt.Sprintf(format, args...)}
}
