package numeric

import (
	"fmt"
	"hash/fnv"

	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
)

// cwiseElemOK reports whether the element is supported by the elementwise
// operators.
func cwiseElemOK(elem dataflow.Element) bool {
	return elem == dataflow.Float || elem == Matrix
}

func argHash(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// cwiseAddOp sums any number of dependencies elementwise; identity is 0.
type cwiseAddOp struct {
	elem dataflow.Element
	dim  dataflow.Dim
}

func (o cwiseAddOp) Kind() dataflow.Kind {
	return dataflow.Kind("CWiseAdd(" + o.elem.Name() + ")")
}

func (o cwiseAddOp) Pattern() dataflow.Pattern { return dataflow.ReductionOf(o.elem) }
func (o cwiseAddOp) Result() (dataflow.Element, dataflow.Dim) { return o.elem, o.dim }
func (o cwiseAddOp) Description() string { return "+" }

func (o cwiseAddOp) Compute(prev any, deps []any) (any, error) {
	if o.elem == dataflow.Float {
		sum := 0.0
		for _, d := range deps {
			sum += d.(float64)
		}
		return sum, nil
	}
	out := reuse(prev, o.dim.Rows, o.dim.Cols)
	for _, d := range deps {
		out.Add(out, d.(*mat.Dense))
	}
	return out, nil
}

func (o cwiseAddOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	derived := make([]*dataflow.Node, 0, len(self.Deps()))
	for _, d := range self.Deps() {
		dd, err := d.Derive(ctx, variable)
		if err != nil {
			return nil, err
		}
		derived = append(derived, dd)
	}
	derived = dataflow.FilterNodes(derived, dataflow.IsConstantZero)
	switch len(derived) {
	case 0:
		return ctx.Zero(o.elem, o.dim)
	case 1:
		return derived[0], nil
	default:
		return self.Recreate(ctx, derived)
	}
}

func (o cwiseAddOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(cwiseAddOp)
	return ok && oo.elem == o.elem && oo.dim == o.dim
}

func (o cwiseAddOp) HashArguments() uint64 {
	return argHash(string(o.Kind()), o.dim.String())
}

// NewCWiseAdd builds an elementwise sum over deps. An empty dependency list
// yields the zero constant.
func NewCWiseAdd(ctx *dataflow.Context, elem dataflow.Element, dim dataflow.Dim, deps ...*dataflow.Node) (*dataflow.Node, error) {
	if !cwiseElemOK(elem) {
		return nil, fmt.Errorf("numeric: CWiseAdd does not support element %s", elem.Name())
	}
	if len(deps) == 0 {
		return ctx.Zero(elem, dim)
	}
	return ctx.NewComputed(cwiseAddOp{elem: elem, dim: dim}, deps...)
}

// cwiseMulOp multiplies any number of dependencies elementwise; identity
// is 1.
type cwiseMulOp struct {
	elem dataflow.Element
	dim  dataflow.Dim
}

func (o cwiseMulOp) Kind() dataflow.Kind {
	return dataflow.Kind("CWiseMul(" + o.elem.Name() + ")")
}

func (o cwiseMulOp) Pattern() dataflow.Pattern { return dataflow.ReductionOf(o.elem) }
func (o cwiseMulOp) Result() (dataflow.Element, dataflow.Dim) { return o.elem, o.dim }
func (o cwiseMulOp) Description() string { return "*" }

func (o cwiseMulOp) Compute(prev any, deps []any) (any, error) {
	if o.elem == dataflow.Float {
		prod := 1.0
		for _, d := range deps {
			prod *= d.(float64)
		}
		return prod, nil
	}
	out := reuse(prev, o.dim.Rows, o.dim.Cols)
	fill(out, 1)
	for _, d := range deps {
		out.MulElem(out, d.(*mat.Dense))
	}
	return out, nil
}

// Derive applies the product rule: sum over i of the product with dependency
// i replaced by its derivative. Terms with a vanishing derivative are
// dropped, and constant-one factors are elided from each term.
func (o cwiseMulOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	deps := self.Deps()
	terms := make([]*dataflow.Node, 0, len(deps))
	for i := range deps {
		di, err := deps[i].Derive(ctx, variable)
		if err != nil {
			return nil, err
		}
		if dataflow.IsConstantZero(di) {
			continue
		}
		factors := make([]*dataflow.Node, len(deps))
		copy(factors, deps)
		factors[i] = di
		factors = dataflow.FilterNodes(factors, dataflow.IsConstantOne)
		var term *dataflow.Node
		switch len(factors) {
		case 0:
			term, err = ctx.One(o.elem, o.dim)
		case 1:
			term = factors[0]
		default:
			term, err = self.Recreate(ctx, factors)
		}
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	switch len(terms) {
	case 0:
		return ctx.Zero(o.elem, o.dim)
	case 1:
		return terms[0], nil
	default:
		return NewCWiseAdd(ctx, o.elem, o.dim, terms...)
	}
}

func (o cwiseMulOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(cwiseMulOp)
	return ok && oo.elem == o.elem && oo.dim == o.dim
}

func (o cwiseMulOp) HashArguments() uint64 {
	return argHash(string(o.Kind()), o.dim.String())
}

// NewCWiseMul builds an elementwise product over deps. An empty dependency
// list yields the one constant.
func NewCWiseMul(ctx *dataflow.Context, elem dataflow.Element, dim dataflow.Dim, deps ...*dataflow.Node) (*dataflow.Node, error) {
	if !cwiseElemOK(elem) {
		return nil, fmt.Errorf("numeric: CWiseMul does not support element %s", elem.Name())
	}
	if len(deps) == 0 {
		return ctx.One(elem, dim)
	}
	return ctx.NewComputed(cwiseMulOp{elem: elem, dim: dim}, deps...)
}

// cwiseNegOp negates its single dependency elementwise.
type cwiseNegOp struct {
	elem dataflow.Element
	dim  dataflow.Dim
}

func (o cwiseNegOp) Kind() dataflow.Kind {
	return dataflow.Kind("CWiseNeg(" + o.elem.Name() + ")")
}

func (o cwiseNegOp) Pattern() dataflow.Pattern { return dataflow.FunctionOf(o.elem) }
func (o cwiseNegOp) Result() (dataflow.Element, dataflow.Dim) { return o.elem, o.dim }
func (o cwiseNegOp) Description() string { return "-x" }

func (o cwiseNegOp) Compute(prev any, deps []any) (any, error) {
	if o.elem == dataflow.Float {
		return -deps[0].(float64), nil
	}
	out := reuse(prev, o.dim.Rows, o.dim.Cols)
	out.Scale(-1, deps[0].(*mat.Dense))
	return out, nil
}

func (o cwiseNegOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	dd, err := self.Deps()[0].Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	return self.Recreate(ctx, []*dataflow.Node{dd})
}

func (o cwiseNegOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(cwiseNegOp)
	return ok && oo.elem == o.elem && oo.dim == o.dim
}

func (o cwiseNegOp) HashArguments() uint64 {
	return argHash(string(o.Kind()), o.dim.String())
}

// NewCWiseNeg builds the elementwise negation of dep.
func NewCWiseNeg(ctx *dataflow.Context, dep *dataflow.Node) (*dataflow.Node, error) {
	if !cwiseElemOK(dep.Element()) {
		return nil, fmt.Errorf("numeric: CWiseNeg does not support element %s", dep.Element().Name())
	}
	return ctx.NewComputed(cwiseNegOp{elem: dep.Element(), dim: dep.Dim()}, dep)
}

// cwiseInverseOp computes the elementwise reciprocal of its dependency.
type cwiseInverseOp struct {
	elem dataflow.Element
	dim  dataflow.Dim
}

func (o cwiseInverseOp) Kind() dataflow.Kind {
	return dataflow.Kind("CWiseInverse(" + o.elem.Name() + ")")
}

func (o cwiseInverseOp) Pattern() dataflow.Pattern { return dataflow.FunctionOf(o.elem) }
func (o cwiseInverseOp) Result() (dataflow.Element, dataflow.Dim) { return o.elem, o.dim }
func (o cwiseInverseOp) Description() string { return "1/x" }

func (o cwiseInverseOp) Compute(prev any, deps []any) (any, error) {
	if o.elem == dataflow.Float {
		x := deps[0].(float64)
		if x == 0 {
			return nil, fmt.Errorf("reciprocal of zero")
		}
		return 1 / x, nil
	}
	in := deps[0].(*mat.Dense)
	out := reuse(prev, o.dim.Rows, o.dim.Cols)
	for i := 0; i < o.dim.Rows; i++ {
		for j := 0; j < o.dim.Cols; j++ {
			x := in.At(i, j)
			if x == 0 {
				return nil, fmt.Errorf("reciprocal of zero at (%d,%d)", i, j)
			}
			out.Set(i, j, 1/x)
		}
	}
	return out, nil
}

// Derive uses d(1/v) = -(1/v)^2 dv, reusing self as the already-built 1/v.
func (o cwiseInverseOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	dv, err := self.Deps()[0].Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	sq, err := NewCWiseMul(ctx, o.elem, o.dim, self, self, dv)
	if err != nil {
		return nil, err
	}
	return NewCWiseNeg(ctx, sq)
}

func (o cwiseInverseOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(cwiseInverseOp)
	return ok && oo.elem == o.elem && oo.dim == o.dim
}

func (o cwiseInverseOp) HashArguments() uint64 {
	return argHash(string(o.Kind()), o.dim.String())
}

// NewCWiseInverse builds the elementwise reciprocal of dep.
func NewCWiseInverse(ctx *dataflow.Context, dep *dataflow.Node) (*dataflow.Node, error) {
	if !cwiseElemOK(dep.Element()) {
		return nil, fmt.Errorf("numeric: CWiseInverse does not support element %s", dep.Element().Name())
	}
	return ctx.NewComputed(cwiseInverseOp{elem: dep.Element(), dim: dep.Dim()}, dep)
}
