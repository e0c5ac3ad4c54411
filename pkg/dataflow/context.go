package dataflow

import (
	"fmt"
	"weak"
)

// registryKey buckets registry candidates by operator kind, dependency count,
// first dependency identity and the hash of the operator's additional
// arguments. Full pointer equality of the dependency vector plus
// additional-argument comparison is still verified per candidate; the bucket
// key only needs to be cheap and stable.
type registryKey struct {
	kind     Kind
	depCount int
	firstDep *Node  // nil when there are no dependencies
	args     uint64 // HashArguments of the operator, 0 without arguments
}

// identityKey addresses the cached zero/one constants per element and shape.
type identityKey struct {
	elem Element
	dim  Dim
}

// Context owns a registry of computed nodes and the cached zero/one
// constants. It is the unit of graph identity and memory scope: nodes built
// through the same Context merge structurally identical subgraphs into a
// single node; different Contexts never share.
//
// The registry pins every node it stores. Purge is the only way to release
// cached nodes whose only holders are other cached nodes.
//
// A Context is single-threaded. Use one Context per goroutine, or serialize
// access externally.
type Context struct {
	registry map[registryKey][]*Node
	zeros    map[identityKey]*Node
	ones     map[identityKey]*Node

	noMerge bool // set while instantiating a spec without reuse
	replay  bool // set while replaying a spec against the registry
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{
		registry: make(map[registryKey][]*Node),
		zeros:    make(map[identityKey]*Node),
		ones:     make(map[identityKey]*Node),
	}
}

// Constant creates a constant node holding v. Constants are permanently
// valid. Zero and one values fold onto the Context's cached identity
// constants, so trivial expressions merge without a registry entry.
func (c *Context) Constant(elem Element, dim Dim, v any) (*Node, error) {
	if !elem.Accepts(v) {
		return nil, fmt.Errorf("dataflow: constant of element %s rejects value %T", elem.Name(), v)
	}
	if de, ok := elem.(DimensionedElement); ok && !de.Fits(v, dim) {
		return nil, fmt.Errorf("dataflow: constant of element %s: value does not fit dimension %s", elem.Name(), dim)
	}
	if elem.IsZero(v) {
		return c.Zero(elem, dim)
	}
	if elem.IsOne(v) {
		return c.One(elem, dim)
	}
	return &Node{kind: KindConstant, elem: elem, dim: dim, val: v, valid: true, constant: true}, nil
}

// Parameter creates a mutable leaf node holding v. Changing it through
// SetValue invalidates all transitive dependents.
func (c *Context) Parameter(elem Element, dim Dim, v any) (*Node, error) {
	if !elem.Accepts(v) {
		return nil, fmt.Errorf("dataflow: parameter of element %s rejects value %T", elem.Name(), v)
	}
	if de, ok := elem.(DimensionedElement); ok && !de.Fits(v, dim) {
		return nil, fmt.Errorf("dataflow: parameter of element %s: value does not fit dimension %s", elem.Name(), dim)
	}
	return &Node{kind: KindParameter, elem: elem, dim: dim, val: v, valid: true}, nil
}

// Zero returns the Context's cached zero constant for the element and shape.
func (c *Context) Zero(elem Element, dim Dim) (*Node, error) {
	if n, ok := c.zeros[identityKey{elem, dim}]; ok {
		return n, nil
	}
	v := elem.Zero(dim)
	if v == nil {
		return nil, fmt.Errorf("%w: zero of %s", ErrNoIdentity, elem.Name())
	}
	n := &Node{kind: KindConstant, elem: elem, dim: dim, val: v, valid: true, constant: true}
	c.zeros[identityKey{elem, dim}] = n
	return n, nil
}

// One returns the Context's cached one constant for the element and shape.
func (c *Context) One(elem Element, dim Dim) (*Node, error) {
	if n, ok := c.ones[identityKey{elem, dim}]; ok {
		return n, nil
	}
	v := elem.One(dim)
	if v == nil {
		return nil, fmt.Errorf("%w: one of %s", ErrNoIdentity, elem.Name())
	}
	n := &Node{kind: KindConstant, elem: elem, dim: dim, val: v, valid: true, constant: true}
	c.ones[identityKey{elem, dim}] = n
	return n, nil
}

// NewComputed builds (or reuses) a computed node for op over deps.
//
// The dependency vector is validated against the operator's pattern; a
// mismatch is a fatal construction error naming the operator kind and the
// offending index. When an equivalent node already exists in the registry
// (equal kind, pointer-equal dependencies, equal additional arguments), that
// node is returned instead of a new one.
func (c *Context) NewComputed(op Op, deps ...*Node) (*Node, error) {
	if err := op.Pattern().check(op.Kind(), deps); err != nil {
		return nil, err
	}
	if c.noMerge {
		return newComputed(op, deps), nil
	}
	key := makeRegistryKey(op, deps)
	for _, cand := range c.registry[key] {
		if nodesEqual(cand.deps, deps) && argumentsEqual(cand.op, op) {
			return cand, nil
		}
	}
	if c.replay {
		return nil, fmt.Errorf("%w: %s", ErrRegistryMiss, op.Kind())
	}
	n := newComputed(op, deps)
	c.registry[key] = append(c.registry[key], n)
	return n, nil
}

// Lookup returns the registered node built from op over pointer-equal
// dependencies, if any. The candidate's additional arguments must compare
// equal to op's, so argument-carrying variants of the same kind resolve to
// their own node.
func (c *Context) Lookup(op Op, deps []*Node) (*Node, bool) {
	for _, cand := range c.registry[makeRegistryKey(op, deps)] {
		if nodesEqual(cand.deps, deps) && argumentsEqual(cand.op, op) {
			return cand, true
		}
	}
	return nil, false
}

// Size returns the number of registered nodes.
func (c *Context) Size() int {
	total := 0
	for _, bucket := range c.registry {
		total += len(bucket)
	}
	return total
}

// Purge drops every registry entry and cached identity constant. Graphs
// whose roots are still externally held stay alive; everything pinned only
// by the Context becomes collectable.
func (c *Context) Purge() {
	c.registry = make(map[registryKey][]*Node)
	c.zeros = make(map[identityKey]*Node)
	c.ones = make(map[identityKey]*Node)
}

// foreachRegistered visits every registered node with its bucket key.
func (c *Context) foreachRegistered(visit func(key registryKey, n *Node)) {
	for key, bucket := range c.registry {
		for _, n := range bucket {
			visit(key, n)
		}
	}
}

func newComputed(op Op, deps []*Node) *Node {
	elem, dim := op.Result()
	n := &Node{
		kind:     op.Kind(),
		op:       op,
		elem:     elem,
		dim:      dim,
		deps:     deps,
		constant: allConstant(deps),
	}
	for _, d := range deps {
		d.dependents = append(d.dependents, weak.Make(n))
	}
	return n
}

// allConstant reports whether every dependency is constant; such a computed
// node is itself constant (the optimizer short-circuits its derivatives).
func allConstant(deps []*Node) bool {
	for _, d := range deps {
		if !d.constant {
			return false
		}
	}
	return true
}

func makeRegistryKey(op Op, deps []*Node) registryKey {
	key := registryKey{kind: op.Kind(), depCount: len(deps)}
	if len(deps) > 0 {
		key.firstDep = deps[0]
	}
	if oa, ok := op.(OpArguments); ok {
		key.args = oa.HashArguments()
	}
	return key
}

// nodesEqual reports pointer equality of two dependency vectors. Identity is
// sufficient: the registry guarantees uniqueness of sub-expressions, so
// pointer equality already implies structural equality of the whole subtree.
func nodesEqual(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// argumentsEqual compares operator additional arguments. Operators that do
// not implement OpArguments carry none and always merge on kind plus
// dependencies.
func argumentsEqual(a, b Op) bool {
	aa, aok := a.(OpArguments)
	_, bok := b.(OpArguments)
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	return aa.CompareArguments(b)
}
