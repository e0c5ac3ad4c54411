// Package dataflow implements the incremental evaluation and differentiation
// engine behind Yggdrasil.
//
// A computation is a directed acyclic graph of typed value nodes. Leaves are
// constants and externally mutable parameters; interior nodes are pure
// functions of their dependencies, described by an Op. The engine:
//   - computes node values on demand (pull-based, left-to-right),
//   - invalidates the minimum set of nodes when a parameter changes,
//   - merges structurally identical subgraphs through a per-Context registry
//     (common-subexpression elimination),
//   - symbolically derives a graph with respect to a parameter node,
//     producing a new graph that computes the derivative.
//
// Example:
//
//	ctx := dataflow.NewContext()
//	x, _ := ctx.Parameter(dataflow.Float, dataflow.ScalarDim, 2.0)
//	k, _ := ctx.Constant(dataflow.Float, dataflow.ScalarDim, 3.0)
//	sum, _ := ctx.NewComputed(addOp{}, x, k)
//
//	v, _ := dataflow.Value[float64](sum) // 5.0
//	x.SetValue(4.0)                      // invalidates sum
//	v, _ = dataflow.Value[float64](sum)  // 7.0, recomputed once
//
// A Context and the graphs built from it are single-threaded. Independent
// contexts may be driven concurrently by separate goroutines.
package dataflow

import (
	"fmt"
	"weak"
)

// Kind is the run-time identifier of an operator, used for registry hashing
// and merging. Leaves use KindConstant and KindParameter.
type Kind string

// Kinds of the two leaf node shapes.
const (
	KindConstant  Kind = "Constant"
	KindParameter Kind = "Parameter"
)

// Op describes a computed-node operator: its identity, dependency pattern,
// result type, compute function and symbolic derivation rule.
//
// Compute must be a pure function of the dependency values. It receives the
// node's previous value (nil before the first evaluation) so matrix-valued
// operators can reuse allocations, and the dependency values in declaration
// order, already validated against Pattern.
//
// Derive is only invoked after the engine's short-circuits: self is known to
// transitively depend on variable and is not a constant. Rules assemble a new
// sub-DAG through the same Context, so derivative graphs share nodes with the
// primal graph wherever structurally possible.
type Op interface {
	Kind() Kind
	Pattern() Pattern
	Result() (Element, Dim)
	Compute(prev any, deps []any) (any, error)
	Derive(ctx *Context, self, variable *Node) (*Node, error)
	Description() string
}

// OpArguments is implemented by operators carrying non-dependency arguments
// (output dimensions, transpose flags, opaque model handles). Two nodes of
// equal kind and dependencies merge only when their arguments compare equal.
// HashArguments folds the arguments into the registry bucket key, so equal
// arguments must hash equal. Operators without additional arguments need not
// implement it.
type OpArguments interface {
	CompareArguments(other Op) bool
	HashArguments() uint64
}

// Node is the central entity of the engine: a typed value slot plus a
// dependency vector, validity flag and reverse edges.
//
// Nodes are created by a Context (constants, parameters, NewComputed) and
// never mutated after construction except for their value and validity (and
// a parameter's stored value through SetValue). Reverse edges are weak: a
// dependent never keeps a dropped subgraph alive.
type Node struct {
	kind Kind
	op   Op // nil for constants and parameters
	elem Element
	dim  Dim

	deps       []*Node
	dependents []weak.Pointer[Node]

	val       any
	valid     bool
	constant  bool
	computing bool // evaluation re-entrance marker

	nComputed int // instrumentation: times the compute function ran
}

// Kind returns the node's operator kind.
func (n *Node) Kind() Kind { return n.kind }

// Op returns the node's operator, or nil for constants and parameters.
func (n *Node) Op() Op { return n.op }

// Element returns the node's element type.
func (n *Node) Element() Element { return n.elem }

// Dim returns the node's value dimension.
func (n *Node) Dim() Dim { return n.dim }

// Deps returns the ordered dependency vector. The returned slice is shared;
// callers must not modify it.
func (n *Node) Deps() []*Node { return n.deps }

// Dependents returns the nodes currently depending on this one. Dependents
// that have been garbage collected are skipped.
func (n *Node) Dependents() []*Node {
	out := make([]*Node, 0, len(n.dependents))
	for _, wp := range n.dependents {
		if d := wp.Value(); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// IsValid reports whether the stored value reflects the current values of
// all transitive parameters.
func (n *Node) IsValid() bool { return n.valid }

// IsConstant reports whether the node is a constant, or a computed node all
// of whose dependencies are constants.
func (n *Node) IsConstant() bool { return n.constant }

// ComputeCount returns how many times the node's compute function has run.
// Constants and parameters always report zero.
func (n *Node) ComputeCount() int { return n.nComputed }

// Description returns a short human-readable description used by DOT dumps.
func (n *Node) Description() string {
	if n.op != nil {
		return n.op.Description()
	}
	return fmt.Sprintf("%s(%v)", n.kind, n.val)
}

// DebugInfo returns the value slot state for detailed DOT dumps.
func (n *Node) DebugInfo() string {
	if !n.valid {
		return "invalid"
	}
	return fmt.Sprintf("%v", n.val)
}

// GetValue is the single evaluation entry point. If the node is valid its
// stored value is returned. Otherwise dependencies are refreshed recursively
// left-to-right, the compute function runs, and the node becomes valid.
//
// A fatal compute error propagates to the caller and leaves the node
// invalid; retrying after fixing inputs is permitted. Re-entering a node
// that is already computing reports ErrCycle.
func (n *Node) GetValue() (any, error) {
	if n.valid {
		return n.val, nil
	}
	if n.computing {
		return nil, fmt.Errorf("%w: re-entered %s", ErrCycle, n.kind)
	}
	n.computing = true
	defer func() { n.computing = false }()

	args := make([]any, len(n.deps))
	for i, d := range n.deps {
		v, err := d.GetValue()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := n.op.Compute(n.val, args)
	n.nComputed++
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", n.kind, err)
	}
	n.val = v
	n.valid = true
	return v, nil
}

// Value evaluates n and returns its value as T.
func Value[T any](n *Node) (T, error) {
	var zero T
	v, err := n.GetValue()
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("dataflow: node %s holds %T, not %T", n.kind, v, zero)
	}
	return t, nil
}

// SetValue mutates a parameter node. If the new value differs from the
// stored one, every transitive dependent is invalidated. Calling SetValue on
// a non-parameter node is an error.
func (n *Node) SetValue(v any) error {
	if n.kind != KindParameter {
		return fmt.Errorf("%w: %s", ErrNotParameter, n.kind)
	}
	if !n.elem.Accepts(v) {
		return fmt.Errorf("dataflow: parameter of element %s rejects value %T", n.elem.Name(), v)
	}
	if de, ok := n.elem.(DimensionedElement); ok && !de.Fits(v, n.dim) {
		return fmt.Errorf("dataflow: parameter of element %s: value does not fit dimension %s", n.elem.Name(), n.dim)
	}
	if n.elem.Equal(n.val, v) {
		return nil
	}
	n.val = v
	n.invalidateDependents()
	return nil
}

// invalidateDependents walks reverse edges, marking valid dependents stale.
// Already-invalid dependents prune the traversal, which keeps invalidation
// O(affected subgraph). Dead weak pointers are compacted on the way.
func (n *Node) invalidateDependents() {
	live := n.dependents[:0]
	for _, wp := range n.dependents {
		d := wp.Value()
		if d == nil {
			continue
		}
		live = append(live, wp)
		if d.valid {
			d.valid = false
			d.invalidateDependents()
		}
	}
	n.dependents = live
}

// DependsOn reports whether n transitively depends on target (or is target).
func (n *Node) DependsOn(target *Node) bool {
	return dependsOn(n, target, make(map[*Node]bool))
}

func dependsOn(n, target *Node, seen map[*Node]bool) bool {
	if n == target {
		return true
	}
	if seen[n] {
		return false
	}
	seen[n] = true
	for _, d := range n.deps {
		if dependsOn(d, target, seen) {
			return true
		}
	}
	return false
}

// Derive returns a node computing the partial derivative of n with respect
// to the parameter node variable.
//
// Constants and nodes that do not transitively depend on variable derive to
// the Context's cached zero constant of n's element and dimension; n derives
// to the cached one constant with respect to itself. Everything else
// dispatches to the operator's derivation rule. Higher derivatives are
// obtained by calling Derive on a derivative node.
func (n *Node) Derive(ctx *Context, variable *Node) (*Node, error) {
	if n == variable {
		return ctx.One(n.elem, n.dim)
	}
	if n.constant || !n.DependsOn(variable) {
		return ctx.Zero(n.elem, n.dim)
	}
	if n.op == nil {
		// Distinct leaves never transitively depend on a variable.
		return nil, fmt.Errorf("%w: leaf %s", ErrDeriveUnsupported, n.kind)
	}
	return n.op.Derive(ctx, n, variable)
}

// Recreate returns an equivalent node built with a different dependency
// vector, going through the Context registry. Leaves recreate to themselves
// when given no dependencies. Derivation rules use Recreate to rebuild an
// operator over derived dependencies.
func (n *Node) Recreate(ctx *Context, deps []*Node) (*Node, error) {
	if n.op == nil {
		if len(deps) != 0 {
			return nil, newConstructionError(n.kind, -1, "leaf recreated with %d dependencies", len(deps))
		}
		return n, nil
	}
	return ctx.NewComputed(n.op, deps...)
}

// IsConstantZero reports whether n is a constant holding the zero of its
// element type. Derivation rules use it to drop vanishing summands.
func IsConstantZero(n *Node) bool {
	return n != nil && n.constant && n.valid && n.elem.IsZero(n.val)
}

// IsConstantOne reports whether n is a constant holding the one of its
// element type.
func IsConstantOne(n *Node) bool {
	return n != nil && n.constant && n.valid && n.elem.IsOne(n.val)
}

// FilterNodes returns deps without the nodes matching drop. The input slice
// is not modified.
func FilterNodes(deps []*Node, drop func(*Node) bool) []*Node {
	out := make([]*Node, 0, len(deps))
	for _, d := range deps {
		if !drop(d) {
			out = append(out, d)
		}
	}
	return out
}
