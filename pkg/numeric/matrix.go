package numeric

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
)

// matrixProductOp multiplies two dense matrices, with optional per-operand
// transposition. Transpose flags and the output dimension are additional
// arguments: equal-dependency products with different flags never merge.
type matrixProductOp struct {
	transA bool
	transB bool
	dim    dataflow.Dim
}

func (matrixProductOp) Kind() dataflow.Kind { return "MatrixProduct" }

func (matrixProductOp) Pattern() dataflow.Pattern { return dataflow.FunctionOf(Matrix, Matrix) }

func (o matrixProductOp) Result() (dataflow.Element, dataflow.Dim) { return Matrix, o.dim }

func (o matrixProductOp) Description() string {
	a, b := "a", "b"
	if o.transA {
		a = "aT"
	}
	if o.transB {
		b = "bT"
	}
	return a + " x " + b
}

func (o matrixProductOp) Compute(prev any, deps []any) (any, error) {
	var am, bm mat.Matrix = deps[0].(*mat.Dense), deps[1].(*mat.Dense)
	if o.transA {
		am = am.T()
	}
	if o.transB {
		bm = bm.T()
	}
	out := reuse(prev, o.dim.Rows, o.dim.Cols)
	out.Mul(am, bm)
	return out, nil
}

// Derive applies the product rule d(AB) = dA B + A dB, preserving the
// transpose flags on each operand. Vanishing terms are dropped.
func (o matrixProductOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	a, b := self.Deps()[0], self.Deps()[1]
	da, err := a.Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	db, err := b.Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	var terms []*dataflow.Node
	if !dataflow.IsConstantZero(da) {
		term, err := ctx.NewComputed(o, da, b)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if !dataflow.IsConstantZero(db) {
		term, err := ctx.NewComputed(o, a, db)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	switch len(terms) {
	case 0:
		return ctx.Zero(Matrix, o.dim)
	case 1:
		return terms[0], nil
	default:
		return NewCWiseAdd(ctx, Matrix, o.dim, terms...)
	}
}

func (o matrixProductOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(matrixProductOp)
	return ok && oo == o
}

func (o matrixProductOp) HashArguments() uint64 {
	return argHash("MatrixProduct", fmt.Sprint(o.transA), fmt.Sprint(o.transB), o.dim.String())
}

// NewMatrixProduct builds op(a) x op(b) where op transposes its operand when
// the corresponding flag is set. The inner dimensions must agree; a mismatch
// is a construction error.
func NewMatrixProduct(ctx *dataflow.Context, transA, transB bool, a, b *dataflow.Node) (*dataflow.Node, error) {
	ad, bd := a.Dim(), b.Dim()
	ar, ac := ad.Rows, ad.Cols
	if transA {
		ar, ac = ac, ar
	}
	br, bc := bd.Rows, bd.Cols
	if transB {
		br, bc = bc, br
	}
	if ac != br {
		return nil, fmt.Errorf("numeric: MatrixProduct inner dimensions %d and %d do not agree", ac, br)
	}
	op := matrixProductOp{transA: transA, transB: transB, dim: dataflow.Dim{Rows: ar, Cols: bc}}
	return ctx.NewComputed(op, a, b)
}

// scaleMatrixOp multiplies a matrix by a scalar.
type scaleMatrixOp struct {
	dim dataflow.Dim
}

func (scaleMatrixOp) Kind() dataflow.Kind { return "ScaleMatrix" }

func (scaleMatrixOp) Pattern() dataflow.Pattern {
	return dataflow.FunctionOf(dataflow.Float, Matrix)
}

func (o scaleMatrixOp) Result() (dataflow.Element, dataflow.Dim) { return Matrix, o.dim }

func (scaleMatrixOp) Description() string { return "s * m" }

func (o scaleMatrixOp) Compute(prev any, deps []any) (any, error) {
	s := deps[0].(float64)
	m := deps[1].(*mat.Dense)
	out := reuse(prev, o.dim.Rows, o.dim.Cols)
	out.Scale(s, m)
	return out, nil
}

// Derive applies the product rule d(s m) = ds m + s dm.
func (o scaleMatrixOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	s, m := self.Deps()[0], self.Deps()[1]
	ds, err := s.Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	dm, err := m.Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	var terms []*dataflow.Node
	if !dataflow.IsConstantZero(ds) {
		term := m
		if !dataflow.IsConstantOne(ds) {
			if term, err = ctx.NewComputed(o, ds, m); err != nil {
				return nil, err
			}
		}
		terms = append(terms, term)
	}
	if !dataflow.IsConstantZero(dm) {
		term, err := ctx.NewComputed(o, s, dm)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	switch len(terms) {
	case 0:
		return ctx.Zero(Matrix, o.dim)
	case 1:
		return terms[0], nil
	default:
		return NewCWiseAdd(ctx, Matrix, o.dim, terms...)
	}
}

func (o scaleMatrixOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(scaleMatrixOp)
	return ok && oo == o
}

func (o scaleMatrixOp) HashArguments() uint64 {
	return argHash("ScaleMatrix", o.dim.String())
}

// NewScaleMatrix builds scalar times matrix.
func NewScaleMatrix(ctx *dataflow.Context, scalar, matrix *dataflow.Node) (*dataflow.Node, error) {
	return ctx.NewComputed(scaleMatrixOp{dim: matrix.Dim()}, scalar, matrix)
}
