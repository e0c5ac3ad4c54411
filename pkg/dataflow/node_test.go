package dataflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test element and operators: a small integer algebra, enough to exercise
// the evaluation and invalidation protocol without linear algebra.

type intElement struct{}

var elInt Element = intElement{}

func (intElement) Name() string { return "int" }

func (intElement) Accepts(v any) bool {
	_, ok := v.(int)
	return ok
}

func (intElement) Equal(a, b any) bool {
	av, aok := a.(int)
	bv, bok := b.(int)
	return aok && bok && av == bv
}

func (intElement) Zero(Dim) any { return 0 }
func (intElement) One(Dim) any { return 1 }

func (intElement) IsZero(v any) bool {
	i, ok := v.(int)
	return ok && i == 0
}

func (intElement) IsOne(v any) bool {
	i, ok := v.(int)
	return ok && i == 1
}

// addIntOp sums any number of int dependencies; identity is 0.
type addIntOp struct{}

func (addIntOp) Kind() Kind { return "AddInt" }
func (addIntOp) Pattern() Pattern { return ReductionOf(elInt) }
func (addIntOp) Result() (Element, Dim) { return elInt, ScalarDim }
func (addIntOp) Description() string { return "+" }

func (addIntOp) Compute(_ any, deps []any) (any, error) {
	sum := 0
	for _, d := range deps {
		sum += d.(int)
	}
	return sum, nil
}

func (addIntOp) Derive(ctx *Context, self, variable *Node) (*Node, error) {
	derived := make([]*Node, 0, len(self.Deps()))
	for _, d := range self.Deps() {
		dd, err := d.Derive(ctx, variable)
		if err != nil {
			return nil, err
		}
		derived = append(derived, dd)
	}
	derived = FilterNodes(derived, IsConstantZero)
	if len(derived) == 0 {
		return ctx.Zero(elInt, ScalarDim)
	}
	if len(derived) == 1 {
		return derived[0], nil
	}
	return self.Recreate(ctx, derived)
}

// negIntOp negates a single int dependency.
type negIntOp struct{}

func (negIntOp) Kind() Kind { return "NegInt" }
func (negIntOp) Pattern() Pattern { return FunctionOf(elInt) }
func (negIntOp) Result() (Element, Dim) { return elInt, ScalarDim }
func (negIntOp) Description() string { return "-x" }

func (negIntOp) Compute(_ any, deps []any) (any, error) {
	return -deps[0].(int), nil
}

func (negIntOp) Derive(ctx *Context, self, variable *Node) (*Node, error) {
	dd, err := self.Deps()[0].Derive(ctx, variable)
	if err != nil {
		return nil, err
	}
	return self.Recreate(ctx, []*Node{dd})
}

// failIntOp always fails to compute.
type failIntOp struct{}

func (failIntOp) Kind() Kind { return "FailInt" }
func (failIntOp) Pattern() Pattern { return ReductionOf(elInt) }
func (failIntOp) Result() (Element, Dim) { return elInt, ScalarDim }
func (failIntOp) Description() string { return "fail" }

func (failIntOp) Compute(_ any, _ []any) (any, error) {
	return nil, fmt.Errorf("domain error")
}

func (failIntOp) Derive(*Context, *Node, *Node) (*Node, error) {
	return nil, ErrDeriveUnsupported
}

func intParam(t *testing.T, ctx *Context, v int) *Node {
	t.Helper()
	p, err := ctx.Parameter(elInt, ScalarDim, v)
	require.NoError(t, err)
	return p
}

func intValue(t *testing.T, n *Node) int {
	t.Helper()
	v, err := Value[int](n)
	require.NoError(t, err)
	return v
}

// TestSimpleReductionTree builds the DAG
//
//	p1__n1__n2__root
//	p2_/   /
//	p3____/__n3
//	p4______/
//
// and checks lazy evaluation and minimal invalidation step by step.
func TestSimpleReductionTree(t *testing.T) {
	ctx := NewContext()
	p1 := intParam(t, ctx, 42)
	p2 := intParam(t, ctx, 1)
	p3 := intParam(t, ctx, 0)
	p4 := intParam(t, ctx, 3)

	n1, err := ctx.NewComputed(addIntOp{}, p1, p2)
	require.NoError(t, err)
	n2, err := ctx.NewComputed(addIntOp{}, n1, p3)
	require.NoError(t, err)
	root, err := ctx.NewComputed(negIntOp{}, n2)
	require.NoError(t, err)
	n3, err := ctx.NewComputed(addIntOp{}, p3, p4)
	require.NoError(t, err)

	// Initially only leaves are valid.
	assert.True(t, p1.IsValid())
	assert.False(t, n2.IsValid())
	assert.False(t, root.IsValid())
	assert.False(t, n3.IsValid())

	// Pulling an intermediate value validates its cone only.
	assert.Equal(t, 43, intValue(t, n2))
	assert.True(t, n2.IsValid())
	assert.False(t, root.IsValid())
	assert.False(t, n3.IsValid())

	assert.Equal(t, -43, intValue(t, root))
	assert.True(t, root.IsValid())
	assert.False(t, n3.IsValid())

	assert.Equal(t, 3, intValue(t, n3))
	assert.True(t, n3.IsValid())

	// Changing p3 invalidates its cone but not n1.
	require.NoError(t, p3.SetValue(10))
	assert.True(t, p3.IsValid())
	assert.False(t, root.IsValid())
	assert.False(t, n3.IsValid())
	assert.True(t, n1.IsValid())

	assert.Equal(t, -53, intValue(t, root))
	assert.False(t, n3.IsValid())
	assert.Equal(t, 13, intValue(t, n3))
}

func TestEvaluationIdempotence(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 5)
	n, err := ctx.NewComputed(addIntOp{}, p, p)
	require.NoError(t, err)

	assert.Equal(t, 10, intValue(t, n))
	assert.Equal(t, 10, intValue(t, n))
	assert.Equal(t, 1, n.ComputeCount(), "unchanged parameters must not recompute")

	require.NoError(t, p.SetValue(6))
	assert.Equal(t, 12, intValue(t, n))
	assert.Equal(t, 2, n.ComputeCount())
}

func TestInvalidationMinimality(t *testing.T) {
	ctx := NewContext()
	pa := intParam(t, ctx, 1)
	pb := intParam(t, ctx, 2)
	left, err := ctx.NewComputed(negIntOp{}, pa)
	require.NoError(t, err)
	right, err := ctx.NewComputed(negIntOp{}, pb)
	require.NoError(t, err)
	top, err := ctx.NewComputed(addIntOp{}, left, right)
	require.NoError(t, err)

	assert.Equal(t, -3, intValue(t, top))

	// Changing pa recomputes left and top, never right.
	require.NoError(t, pa.SetValue(10))
	assert.Equal(t, -12, intValue(t, top))
	assert.Equal(t, 2, left.ComputeCount())
	assert.Equal(t, 1, right.ComputeCount())
	assert.Equal(t, 2, top.ComputeCount())
}

func TestSetValueSemantics(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 7)
	n, err := ctx.NewComputed(negIntOp{}, p)
	require.NoError(t, err)
	assert.Equal(t, -7, intValue(t, n))

	t.Run("same_value_is_a_no_op", func(t *testing.T) {
		require.NoError(t, p.SetValue(7))
		assert.True(t, n.IsValid())
	})

	t.Run("wrong_element_rejected", func(t *testing.T) {
		assert.Error(t, p.SetValue(7.5))
	})

	t.Run("non_parameter_rejected", func(t *testing.T) {
		err := n.SetValue(1)
		assert.ErrorIs(t, err, ErrNotParameter)
	})

	t.Run("constant_rejected", func(t *testing.T) {
		c, err := ctx.Constant(elInt, ScalarDim, 9)
		require.NoError(t, err)
		assert.ErrorIs(t, c.SetValue(1), ErrNotParameter)
		assert.True(t, c.IsValid(), "constants are permanently valid")
		assert.True(t, c.IsConstant())
	})
}

func TestConstructionErrors(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 1)
	f, err := ctx.Parameter(Float, ScalarDim, 1.0)
	require.NoError(t, err)

	t.Run("dependency_count_mismatch", func(t *testing.T) {
		_, err := ctx.NewComputed(negIntOp{}, p, p)
		var ce *ConstructionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, Kind("NegInt"), ce.Kind)
		assert.Equal(t, -1, ce.Index)
	})

	t.Run("nil_dependency", func(t *testing.T) {
		_, err := ctx.NewComputed(addIntOp{}, p, nil)
		var ce *ConstructionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 1, ce.Index)
	})

	t.Run("element_type_mismatch", func(t *testing.T) {
		_, err := ctx.NewComputed(negIntOp{}, f)
		var ce *ConstructionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 0, ce.Index)
		assert.Contains(t, ce.Error(), "int")
	})
}

func TestEvaluationErrorLeavesNodeInvalid(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 1)
	bad, err := ctx.NewComputed(failIntOp{}, p)
	require.NoError(t, err)
	top, err := ctx.NewComputed(negIntOp{}, bad)
	require.NoError(t, err)

	_, err = top.GetValue()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FailInt")
	assert.False(t, bad.IsValid())
	assert.False(t, top.IsValid())
}

func TestCycleDetection(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 1)
	a, err := ctx.NewComputed(addIntOp{}, p)
	require.NoError(t, err)
	b, err := ctx.NewComputed(addIntOp{}, a)
	require.NoError(t, err)

	// Builders cannot create cycles; force one through the back door to
	// check the evaluation guard.
	a.deps[0] = b

	_, err = b.GetValue()
	assert.True(t, errors.Is(err, ErrCycle), "got %v", err)
}

func TestConstantPropagation(t *testing.T) {
	ctx := NewContext()
	c1, err := ctx.Constant(elInt, ScalarDim, 2)
	require.NoError(t, err)
	c2, err := ctx.Constant(elInt, ScalarDim, 3)
	require.NoError(t, err)
	p := intParam(t, ctx, 4)

	allConst, err := ctx.NewComputed(addIntOp{}, c1, c2)
	require.NoError(t, err)
	mixed, err := ctx.NewComputed(addIntOp{}, c1, p)
	require.NoError(t, err)

	assert.True(t, allConst.IsConstant(), "computed node over constants is constant")
	assert.False(t, mixed.IsConstant())
	assert.False(t, p.IsConstant())
}
