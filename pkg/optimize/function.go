// Package optimize exposes a scalar dataflow node as a numeric objective
// over a set of named Float parameters, and drives gonum optimizers against
// it. Derivative nodes are created once per parameter and cached, so an
// optimization loop pays graph construction only on its first step.
package optimize

import (
	"fmt"
	"sort"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
)

// Function is a scalar objective f(p1, ..., pn) backed by a dataflow graph.
// Setting a parameter invalidates the affected cone; reading the value or a
// derivative recomputes only what changed.
type Function struct {
	ctx   *dataflow.Context
	root  *dataflow.Node
	names []string
	nodes map[string]*dataflow.Node

	first  map[string]*dataflow.Node
	second map[string]*dataflow.Node
}

// NewFunction wraps a scalar Float node and its mutable parameter leaves.
// Every node in params must be a Float parameter of the same graph.
func NewFunction(ctx *dataflow.Context, root *dataflow.Node, params map[string]*dataflow.Node) (*Function, error) {
	if root == nil {
		return nil, fmt.Errorf("optimize: nil objective root")
	}
	if root.Element() != dataflow.Float || root.Dim() != dataflow.ScalarDim {
		return nil, fmt.Errorf("optimize: objective must be a scalar float, got %s %s", root.Element().Name(), root.Dim())
	}
	f := &Function{
		ctx:    ctx,
		root:   root,
		nodes:  make(map[string]*dataflow.Node, len(params)),
		first:  make(map[string]*dataflow.Node, len(params)),
		second: make(map[string]*dataflow.Node, len(params)),
	}
	for name, n := range params {
		if n == nil || n.Kind() != dataflow.KindParameter || n.Element() != dataflow.Float {
			return nil, fmt.Errorf("optimize: %q is not a float parameter node", name)
		}
		f.nodes[name] = n
		f.names = append(f.names, name)
	}
	sort.Strings(f.names)
	return f, nil
}

// ParameterNames returns the parameter names in sorted order.
func (f *Function) ParameterNames() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

func (f *Function) node(name string) (*dataflow.Node, error) {
	n, ok := f.nodes[name]
	if !ok {
		return nil, fmt.Errorf("optimize: unknown parameter %q", name)
	}
	return n, nil
}

// Value evaluates the objective at the current parameter values.
func (f *Function) Value() (float64, error) {
	return dataflow.Value[float64](f.root)
}

// Parameter returns the current value of a parameter.
func (f *Function) Parameter(name string) (float64, error) {
	n, err := f.node(name)
	if err != nil {
		return 0, err
	}
	return dataflow.Value[float64](n)
}

// SetParameter updates a parameter, invalidating the dependent part of the
// graph. Setting the current value is a no-op.
func (f *Function) SetParameter(name string, v float64) error {
	n, err := f.node(name)
	if err != nil {
		return err
	}
	return n.SetValue(v)
}

// FirstOrderDerivative evaluates df/dname, deriving the graph on first use.
func (f *Function) FirstOrderDerivative(name string) (float64, error) {
	d, err := f.firstNode(name)
	if err != nil {
		return 0, err
	}
	return dataflow.Value[float64](d)
}

// SecondOrderDerivative evaluates d2f/dname2, deriving on first use.
func (f *Function) SecondOrderDerivative(name string) (float64, error) {
	d, err := f.firstNode(name)
	if err != nil {
		return 0, err
	}
	d2, ok := f.second[name]
	if !ok {
		n, err := f.node(name)
		if err != nil {
			return 0, err
		}
		d2, err = d.Derive(f.ctx, n)
		if err != nil {
			return 0, err
		}
		f.second[name] = d2
	}
	return dataflow.Value[float64](d2)
}

func (f *Function) firstNode(name string) (*dataflow.Node, error) {
	if d, ok := f.first[name]; ok {
		return d, nil
	}
	n, err := f.node(name)
	if err != nil {
		return nil, err
	}
	d, err := f.root.Derive(f.ctx, n)
	if err != nil {
		return nil, err
	}
	f.first[name] = d
	return d, nil
}

// Differentiable reports whether symbolic first derivatives exist for every
// parameter, deriving and caching them as a side effect.
func (f *Function) Differentiable() bool {
	for _, name := range f.names {
		if _, err := f.firstNode(name); err != nil {
			return false
		}
	}
	return true
}
