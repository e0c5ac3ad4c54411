package dataflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDot(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 1)
	n, err := ctx.NewComputed(negIntOp{}, p)
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, WriteDot(&b, DotShowDependencyIndex, n))
	out := b.String()

	assert.True(t, strings.HasPrefix(out, "digraph {\n"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, dotNodeKey(n))
	assert.Contains(t, out, dotNodeKey(p))
	assert.Contains(t, out, "color=blue")
	assert.Contains(t, out, `label="0"`, "dependency index labels requested")
}

func TestWriteDotDetailedInfo(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 4)
	n, err := ctx.NewComputed(negIntOp{}, p)
	require.NoError(t, err)
	_, err = n.GetValue()
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, WriteDot(&b, DotDetailedNodeInfo, n))
	assert.Contains(t, b.String(), "-4", "detailed dumps include the value slot")
}

func TestWriteRegistryDot(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 1)
	_, err := ctx.NewComputed(negIntOp{}, p)
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, WriteRegistryDot(&b, ctx, 0))
	out := b.String()
	assert.Contains(t, out, "shape=Mrecord", "registry keys use Mrecord shape")
	assert.Contains(t, out, "K", "registry key tag")
}

func TestWriteSpecDot(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 2)
	spec := AlwaysGenerate{Op: negIntOp{}, Deps: []Spec{ReturnNode{Node: p}}}

	var b strings.Builder
	require.NoError(t, WriteSpecDot(&b, ctx, spec, 0))
	out := b.String()
	assert.Contains(t, out, "color=red", "spec nodes and spec edges are red")
	assert.Contains(t, out, "color=green", "spec to realized node edges are green")
}

func TestWriteSpecReplayDot(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 2)
	spec := AlwaysGenerate{Op: negIntOp{}, Deps: []Spec{ReturnNode{Node: p}}}

	t.Run("replay_before_build_misses", func(t *testing.T) {
		var b strings.Builder
		err := WriteSpecReplayDot(&b, ctx, spec, 0)
		assert.ErrorIs(t, err, ErrRegistryMiss)
	})

	t.Run("replay_after_build_resolves", func(t *testing.T) {
		built, err := ctx.Build(spec)
		require.NoError(t, err)

		var b strings.Builder
		require.NoError(t, WriteSpecReplayDot(&b, ctx, spec, DotShowRegistryLinks))
		out := b.String()
		assert.Contains(t, out, dotNodeKey(built))
		assert.Contains(t, out, "shape=Mrecord")
	})
}

func TestWriteSpecReplayDotRespectsArguments(t *testing.T) {
	ctx := NewContext()
	p := intParam(t, ctx, 2)
	twice, err := ctx.NewComputed(scaleIntOp{factor: 2}, p)
	require.NoError(t, err)
	thrice, err := ctx.NewComputed(scaleIntOp{factor: 3}, p)
	require.NoError(t, err)

	spec := AlwaysGenerate{Op: scaleIntOp{factor: 3}, Deps: []Spec{ReturnNode{Node: p}}}
	var b strings.Builder
	require.NoError(t, WriteSpecReplayDot(&b, ctx, spec, 0))
	out := b.String()
	assert.Contains(t, out, "-> "+dotNodeKey(thrice)+" [color=green]")
	assert.NotContains(t, out, "-> "+dotNodeKey(twice)+" [color=green]",
		"replay must not resolve to a different-argument variant")

	miss := AlwaysGenerate{Op: scaleIntOp{factor: 4}, Deps: []Spec{ReturnNode{Node: p}}}
	var discard strings.Builder
	err = WriteSpecReplayDot(&discard, ctx, miss, 0)
	assert.ErrorIs(t, err, ErrRegistryMiss)
}

func TestDotLabelEscape(t *testing.T) {
	assert.Equal(t, `a\<b\>c\|d\{e\}f\ g`, dotLabelEscape("a<b>c|d{e}f g"))
}
