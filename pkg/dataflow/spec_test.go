package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSpecTree(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 2)
	q := intParam(t, ctx, 3)

	spec := AlwaysGenerate{
		Op: negIntOp{},
		Deps: []Spec{
			AlwaysGenerate{
				Op:   addIntOp{},
				Deps: []Spec{ReturnNode{Node: p}, ReturnNode{Node: q}},
			},
		},
	}

	root, err := ctx.Build(spec)
	require.NoError(t, err)
	assert.Equal(t, -5, intValue(t, root))
	assert.Equal(t, Kind("NegInt"), root.Kind())
}

func TestBuildSpecTwiceSharesRoot(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 2)

	spec := AlwaysGenerate{Op: negIntOp{}, Deps: []Spec{ReturnNode{Node: p}}}

	r1, err := ctx.Build(spec)
	require.NoError(t, err)
	r2, err := ctx.Build(spec)
	require.NoError(t, err)
	assert.Same(t, r1, r2, "building the same spec twice must return the same node")
}

func TestInstantiateWithoutReuse(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 2)
	spec := AlwaysGenerate{Op: negIntOp{}, Deps: []Spec{ReturnNode{Node: p}}}

	merged, err := ctx.Build(spec)
	require.NoError(t, err)
	fresh, err := ctx.InstantiateWithoutReuse(spec)
	require.NoError(t, err)
	assert.NotSame(t, merged, fresh)
	assert.Equal(t, -2, intValue(t, fresh))

	// The detached node was never registered.
	again, err := ctx.Build(spec)
	require.NoError(t, err)
	assert.Same(t, merged, again)
}

func TestReturnNodeInjectsLeaf(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 7)

	n, err := ctx.Build(ReturnNode{Node: p})
	require.NoError(t, err)
	assert.Same(t, p, n)
	assert.Contains(t, ReturnNode{Node: p}.Description(), "Parameter")
}

func TestDebugHash(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 1)
	q := intParam(t, ctx, 2)

	s1 := AlwaysGenerate{Op: addIntOp{}, Deps: []Spec{ReturnNode{Node: p}}}
	s2 := AlwaysGenerate{Op: addIntOp{}, Deps: []Spec{ReturnNode{Node: p}}}
	s3 := AlwaysGenerate{Op: negIntOp{}, Deps: []Spec{ReturnNode{Node: q}}}

	assert.Equal(t, DebugHash(s1), DebugHash(s2), "structurally equal specs hash equal")
	assert.NotEqual(t, DebugHash(s1), DebugHash(s3))
}
