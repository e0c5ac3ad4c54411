package numeric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
)

// sumOfElementsOp reduces a matrix to the scalar sum of its entries.
type sumOfElementsOp struct {
	depDim dataflow.Dim
}

func (sumOfElementsOp) Kind() dataflow.Kind { return "SumOfElements" }

func (sumOfElementsOp) Pattern() dataflow.Pattern { return dataflow.FunctionOf(Matrix) }

func (sumOfElementsOp) Result() (dataflow.Element, dataflow.Dim) {
	return dataflow.Float, dataflow.ScalarDim
}

func (sumOfElementsOp) Description() string { return "sum(m)" }

func (sumOfElementsOp) Compute(_ any, deps []any) (any, error) {
	return mat.Sum(deps[0].(*mat.Dense)), nil
}

// Derive: the sum is linear, so d(sum v)/dx = sum(dv/dx).
func (o sumOfElementsOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	dv, err := self.Deps()[0].Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	return self.Recreate(ctx, []*dataflow.Node{dv})
}

func (o sumOfElementsOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(sumOfElementsOp)
	return ok && oo == o
}

func (o sumOfElementsOp) HashArguments() uint64 {
	return argHash("SumOfElements", o.depDim.String())
}

// NewSumOfElements builds the scalar sum of all entries of dep.
func NewSumOfElements(ctx *dataflow.Context, dep *dataflow.Node) (*dataflow.Node, error) {
	return ctx.NewComputed(sumOfElementsOp{depDim: dep.Dim()}, dep)
}

// sumOfLogarithmsOp reduces a row vector (or any matrix) to the scalar sum
// of the logarithms of its entries. This is the terminal reduction of a
// phylogenetic likelihood: total log-likelihood = sum over sites of
// log(site likelihood).
type sumOfLogarithmsOp struct {
	depDim dataflow.Dim
}

func (sumOfLogarithmsOp) Kind() dataflow.Kind { return "SumOfLogarithms" }

func (sumOfLogarithmsOp) Pattern() dataflow.Pattern { return dataflow.FunctionOf(Matrix) }

func (sumOfLogarithmsOp) Result() (dataflow.Element, dataflow.Dim) {
	return dataflow.Float, dataflow.ScalarDim
}

func (sumOfLogarithmsOp) Description() string { return "sum(log(m))" }

func (o sumOfLogarithmsOp) Compute(_ any, deps []any) (any, error) {
	m := deps[0].(*mat.Dense)
	r, c := m.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if v <= 0 {
				return nil, fmt.Errorf("log of non-positive value %g at (%d,%d)", v, i, j)
			}
			sum += math.Log(v)
		}
	}
	return sum, nil
}

// Derive: d(sum log v)/dx = sum(dv/dx / v), assembled as
// SumOfElements(CWiseMul(CWiseInverse(v), dv)).
func (o sumOfLogarithmsOp) Derive(ctx *dataflow.Context, self, variable *dataflow.Node) (*dataflow.Node, error) {
	v := self.Deps()[0]
	dv, err := v.Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	inv, err := NewCWiseInverse(ctx, v)
	if err != nil {
		return nil, err
	}
	ratio, err := NewCWiseMul(ctx, Matrix, v.Dim(), inv, dv)
	if err != nil {
		return nil, err
	}
	return NewSumOfElements(ctx, ratio)
}

func (o sumOfLogarithmsOp) CompareArguments(other dataflow.Op) bool {
	oo, ok := other.(sumOfLogarithmsOp)
	return ok && oo == o
}

func (o sumOfLogarithmsOp) HashArguments() uint64 {
	return argHash("SumOfLogarithms", o.depDim.String())
}

// NewSumOfLogarithms builds the scalar sum of logarithms of the entries of
// dep. Evaluation fails with a numeric error when any entry is non-positive.
func NewSumOfLogarithms(ctx *dataflow.Context, dep *dataflow.Node) (*dataflow.Node, error) {
	return ctx.NewComputed(sumOfLogarithmsOp{depDim: dep.Dim()}, dep)
}
