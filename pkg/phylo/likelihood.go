package phylo

import (
	"fmt"
	"hash/fnv"

	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
	"github.com/orneryd/yggdrasil/pkg/numeric"
)

// Model is the element for configured substitution model values. Configured
// models carry no numeric identity constants, so zero/one short-circuits
// never apply to them.
var Model dataflow.Element = modelElement{}

// modelState is the value held by a ConfiguredModel node: the model
// definition bound to concrete parameter values, with the equilibrium
// frequencies and normalized generator evaluated once.
type modelState struct {
	model     SubstitutionModel
	params    []float64
	freqs     []float64
	generator *mat.Dense
}

type modelElement struct{}

func (modelElement) Name() string { return "model" }

func (modelElement) Accepts(v any) bool {
	_, ok := v.(*modelState)
	return ok
}

func (modelElement) Equal(a, b any) bool {
	am, aok := a.(*modelState)
	bm, bok := b.(*modelState)
	if !aok || !bok || am.model != bm.model || len(am.params) != len(bm.params) {
		return false
	}
	for i := range am.params {
		if am.params[i] != bm.params[i] {
			return false
		}
	}
	return true
}

func (modelElement) Zero(dataflow.Dim) any { return nil }
func (modelElement) One(dataflow.Dim) any  { return nil }
func (modelElement) IsZero(any) bool       { return false }
func (modelElement) IsOne(any) bool        { return false }

// configuredModelOp binds a model definition to its parameter nodes. The
// model definition is an additional argument: two configured nodes over the
// same parameters merge only when they share the definition.
type configuredModelOp struct {
	model SubstitutionModel
}

func (configuredModelOp) Kind() dataflow.Kind { return "ConfiguredModel" }

func (o configuredModelOp) Pattern() dataflow.Pattern {
	return dataflow.ArrayOf(dataflow.Float, len(o.model.ParameterNames()))
}

func (o configuredModelOp) Result() (dataflow.Element, dataflow.Dim) {
	return Model, dataflow.ScalarDim
}

func (o configuredModelOp) Description() string { return o.model.Name() }

func (o configuredModelOp) Compute(prev any, deps []any) (any, error) {
	params := make([]float64, len(deps))
	for i, d := range deps {
		params[i] = d.(float64)
	}
	freqs, err := o.model.Frequencies(params)
	if err != nil {
		return nil, err
	}
	gen, err := o.model.Generator(params)
	if err != nil {
		return nil, err
	}
	return &modelState{model: o.model, params: params, freqs: freqs, generator: gen}, nil
}

func (o configuredModelOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	return nil, fmt.Errorf("%s with respect to %s: %w", o.Kind(), variable.Description(), dataflow.ErrDeriveUnsupported)
}

func (o configuredModelOp) CompareArguments(other dataflow.Op) bool {
	p, ok := other.(configuredModelOp)
	return ok && o.model == p.model
}

func (o configuredModelOp) HashArguments() uint64 {
	h := fnv.New64a()
	h.Write([]byte(o.model.Name()))
	return h.Sum64()
}

// NewConfiguredModel binds model to one Float parameter node per entry of
// model.ParameterNames, in order.
func NewConfiguredModel(ctx *dataflow.Context, model SubstitutionModel, params ...*dataflow.Node) (*dataflow.Node, error) {
	return ctx.NewComputed(configuredModelOp{model: model}, params...)
}

// modelOf recovers the model definition from a ConfiguredModel node.
func modelOf(n *dataflow.Node) (SubstitutionModel, error) {
	op, ok := n.Op().(configuredModelOp)
	if !ok {
		return nil, fmt.Errorf("phylo: %s node is not a configured model", n.Kind())
	}
	return op.model, nil
}

// equilibriumFrequenciesOp extracts the equilibrium frequencies of a
// configured model as a 1 x k row vector.
type equilibriumFrequenciesOp struct {
	k int
}

func (equilibriumFrequenciesOp) Kind() dataflow.Kind { return "EquilibriumFrequenciesFromModel" }

func (equilibriumFrequenciesOp) Pattern() dataflow.Pattern { return dataflow.FunctionOf(Model) }

func (o equilibriumFrequenciesOp) Result() (dataflow.Element, dataflow.Dim) {
	return numeric.Matrix, dataflow.Dim{Rows: 1, Cols: o.k}
}

func (equilibriumFrequenciesOp) Description() string { return "pi" }

func (o equilibriumFrequenciesOp) Compute(prev any, deps []any) (any, error) {
	state := deps[0].(*modelState)
	out, ok := prev.(*mat.Dense)
	if !ok {
		out = mat.NewDense(1, o.k, nil)
	}
	for i, f := range state.freqs {
		out.Set(0, i, f)
	}
	return out, nil
}

func (o equilibriumFrequenciesOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(equilibriumFrequenciesOp)
	return ok && oo == o
}

func (o equilibriumFrequenciesOp) HashArguments() uint64 { return uint64(o.k) }

func (o equilibriumFrequenciesOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	if !self.DependsOn(variable) {
		return ctx.Zero(numeric.Matrix, dataflow.Dim{Rows: 1, Cols: o.k})
	}
	return nil, fmt.Errorf("%s with respect to %s: %w", o.Kind(), variable.Description(), dataflow.ErrDeriveUnsupported)
}

// NewEquilibriumFrequencies builds the equilibrium frequency row of a
// configured model node.
func NewEquilibriumFrequencies(ctx *dataflow.Context, model *dataflow.Node) (*dataflow.Node, error) {
	m, err := modelOf(model)
	if err != nil {
		return nil, err
	}
	return ctx.NewComputed(equilibriumFrequenciesOp{k: len(m.Alphabet())}, model)
}

// transitionMatrixOp computes exp(Q t) for a configured model and a branch
// length, or one of its first two derivatives in t. Branch-length
// derivatives chain into the next-order operator; derivatives mediated by
// the model parameters are not available symbolically.
type transitionMatrixOp struct {
	order int
	k     int
}

var transitionKinds = [3]dataflow.Kind{
	"TransitionMatrixFromModel",
	"TransitionMatrixFirstBrlenDerivative",
	"TransitionMatrixSecondBrlenDerivative",
}

func (o transitionMatrixOp) Kind() dataflow.Kind { return transitionKinds[o.order] }

func (transitionMatrixOp) Pattern() dataflow.Pattern {
	return dataflow.FunctionOf(Model, dataflow.Float)
}

func (o transitionMatrixOp) Result() (dataflow.Element, dataflow.Dim) {
	return numeric.Matrix, dataflow.Dim{Rows: o.k, Cols: o.k}
}

func (o transitionMatrixOp) Description() string {
	switch o.order {
	case 1:
		return "dP/dt"
	case 2:
		return "d2P/dt2"
	}
	return "P(t)"
}

func (o transitionMatrixOp) Compute(prev any, deps []any) (any, error) {
	state := deps[0].(*modelState)
	t := deps[1].(float64)
	if t < 0 {
		return nil, fmt.Errorf("phylo: negative branch length %g", t)
	}

	var qt mat.Dense
	qt.Scale(t, state.generator)
	var p mat.Dense
	p.Exp(&qt)

	out, ok := prev.(*mat.Dense)
	if !ok {
		out = mat.NewDense(o.k, o.k, nil)
	}
	switch o.order {
	case 0:
		out.Copy(&p)
	case 1:
		out.Mul(state.generator, &p)
	case 2:
		var qp mat.Dense
		qp.Mul(state.generator, &p)
		out.Mul(state.generator, &qp)
	}
	return out, nil
}

func (o transitionMatrixOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	model, brlen := self.Deps()[0], self.Deps()[1]
	if model.DependsOn(variable) {
		return nil, fmt.Errorf("%s with respect to model parameter %s: %w", o.Kind(), variable.Description(), dataflow.ErrDeriveUnsupported)
	}
	dt, err := brlen.Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	if dataflow.IsConstantZero(dt) {
		return ctx.Zero(numeric.Matrix, dataflow.Dim{Rows: o.k, Cols: o.k})
	}
	if o.order == 2 {
		return nil, fmt.Errorf("%s: third-order branch derivative: %w", o.Kind(), dataflow.ErrDeriveUnsupported)
	}
	next, err := ctx.NewComputed(transitionMatrixOp{order: o.order + 1, k: o.k}, model, brlen)
	if err != nil {
		return nil, err
	}
	if dataflow.IsConstantOne(dt) {
		return next, nil
	}
	return numeric.NewScaleMatrix(ctx, dt, next)
}

func (o transitionMatrixOp) CompareArguments(other dataflow.Op) bool {
	p, ok := other.(transitionMatrixOp)
	return ok && o == p
}

func (o transitionMatrixOp) HashArguments() uint64 {
	return uint64(o.order)<<32 | uint64(o.k)
}

func newTransitionMatrix(ctx *dataflow.Context, order int, model, brlen *dataflow.Node) (*dataflow.Node, error) {
	m, err := modelOf(model)
	if err != nil {
		return nil, err
	}
	return ctx.NewComputed(transitionMatrixOp{order: order, k: len(m.Alphabet())}, model, brlen)
}

// NewTransitionMatrix builds exp(Q t) for a configured model node and a
// Float branch length node.
func NewTransitionMatrix(ctx *dataflow.Context, model, brlen *dataflow.Node) (*dataflow.Node, error) {
	return newTransitionMatrix(ctx, 0, model, brlen)
}

// NewTransitionMatrixFirstBrlenDerivative builds Q exp(Q t).
func NewTransitionMatrixFirstBrlenDerivative(ctx *dataflow.Context, model, brlen *dataflow.Node) (*dataflow.Node, error) {
	return newTransitionMatrix(ctx, 1, model, brlen)
}

// NewTransitionMatrixSecondBrlenDerivative builds Q^2 exp(Q t).
func NewTransitionMatrixSecondBrlenDerivative(ctx *dataflow.Context, model, brlen *dataflow.Node) (*dataflow.Node, error) {
	return newTransitionMatrix(ctx, 2, model, brlen)
}
