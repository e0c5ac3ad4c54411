// Package numeric provides the concrete numeric operators of the Yggdrasil
// dataflow engine: elementwise arithmetic, matrix products, reductions and
// their symbolic derivation rules, over scalar floats and gonum dense
// matrices.
//
// Row vectors are represented as 1xN matrices so the same MatrixProduct
// operator covers vector-matrix products (for example equilibrium
// frequencies times a conditional likelihood matrix).
//
// Example:
//
//	ctx := dataflow.NewContext()
//	x, _ := ctx.Parameter(dataflow.Float, dataflow.ScalarDim, 2.0)
//	x2, _ := numeric.NewCWiseMul(ctx, dataflow.Float, dataflow.ScalarDim, x, x)
//
//	d, _ := x2.Derive(ctx, x)            // 2x, assembled symbolically
//	v, _ := dataflow.Value[float64](d)   // 4.0
package numeric

import (
	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
)

// Matrix is the dense-matrix element. Values are *mat.Dense; row vectors are
// 1xN matrices.
var Matrix dataflow.Element = matrixElement{}

type matrixElement struct{}

func (matrixElement) Name() string { return "matrix" }

func (matrixElement) Accepts(v any) bool {
	_, ok := v.(*mat.Dense)
	return ok
}

func (matrixElement) Equal(a, b any) bool {
	am, aok := a.(*mat.Dense)
	bm, bok := b.(*mat.Dense)
	return aok && bok && mat.Equal(am, bm)
}

func (matrixElement) Zero(dim dataflow.Dim) any {
	return mat.NewDense(dim.Rows, dim.Cols, nil)
}

func (matrixElement) One(dim dataflow.Dim) any {
	m := mat.NewDense(dim.Rows, dim.Cols, nil)
	fill(m, 1)
	return m
}

func (matrixElement) Fits(v any, dim dataflow.Dim) bool {
	m, ok := v.(*mat.Dense)
	if !ok {
		return false
	}
	r, c := m.Dims()
	return r == dim.Rows && c == dim.Cols
}

func (matrixElement) IsZero(v any) bool { return uniform(v, 0) }
func (matrixElement) IsOne(v any) bool { return uniform(v, 1) }

func fill(m *mat.Dense, v float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, v)
		}
	}
}

func uniform(v any, want float64) bool {
	m, ok := v.(*mat.Dense)
	if !ok {
		return false
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != want {
				return false
			}
		}
	}
	return true
}

// reuse returns prev as a cleared r x c dense matrix when shapes match, or a
// fresh one. Operators use it so repeated evaluations do not reallocate.
func reuse(prev any, r, c int) *mat.Dense {
	if m, ok := prev.(*mat.Dense); ok {
		pr, pc := m.Dims()
		if pr == r && pc == c {
			m.Zero()
			return m
		}
	}
	return mat.NewDense(r, c, nil)
}
