package phylo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNewick(t *testing.T) {
	tree, err := ParseNewick("((A:0.1,B:0.2)ab:0.05,C:0.3);")
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Branches)
	assert.Equal(t, -1, tree.Root.Branch)
	require.Len(t, tree.Root.Children, 2)

	ab := tree.Root.Children[0]
	assert.Equal(t, "ab", ab.Name)
	assert.InDelta(t, 0.05, ab.Length, 1e-12)
	require.Len(t, ab.Children, 2)
	assert.Equal(t, "A", ab.Children[0].Name)
	assert.InDelta(t, 0.1, ab.Children[0].Length, 1e-12)

	c := tree.Root.Children[1]
	assert.Equal(t, "C", c.Name)
	assert.True(t, c.IsLeaf())

	// Branch indices are unique and cover 0..Branches-1.
	seen := map[int]bool{}
	for _, leaf := range tree.Leaves() {
		seen[leaf.Branch] = true
	}
	seen[ab.Branch] = true
	assert.Len(t, seen, 4)

	leaves := tree.Leaves()
	require.Len(t, leaves, 3)
	assert.Equal(t, "A", leaves[0].Name)
	assert.Equal(t, "C", leaves[2].Name)
}

func TestParseNewickWhitespaceAndMissingLengths(t *testing.T) {
	tree, err := ParseNewick(" (A:1, (B, C):2) ;\n")
	require.NoError(t, err)
	require.Len(t, tree.Root.Children, 2)
	bc := tree.Root.Children[1]
	assert.InDelta(t, 0, bc.Children[0].Length, 1e-12)
	assert.InDelta(t, 2, bc.Length, 1e-12)
}

func TestParseNewickErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"missing_semicolon", "(A:1,B:2)"},
		{"trailing_input", "(A:1,B:2); extra"},
		{"unterminated_group", "(A:1,B:2;"},
		{"unnamed_leaf", "(:1,B:2);"},
		{"bad_length", "(A:x,B:2);"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseNewick(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestReadFasta(t *testing.T) {
	in := strings.NewReader(">B some comment\nACGT\nACGT\n\n>A\nTTTTGGGG\n")
	a, err := ReadFasta(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, a.Names)
	assert.Equal(t, 8, a.Sites)
	sb, ok := a.Sequence("B")
	require.True(t, ok)
	assert.Equal(t, "ACGTACGT", sb)
}

func TestReadFastaErrors(t *testing.T) {
	t.Run("data_before_header", func(t *testing.T) {
		_, err := ReadFasta(strings.NewReader("ACGT\n"))
		assert.Error(t, err)
	})
	t.Run("record_without_name", func(t *testing.T) {
		_, err := ReadFasta(strings.NewReader(">\nACGT\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "without a name")

		_, err = ReadFasta(strings.NewReader(">   \nACGT\n"))
		assert.Error(t, err)
	})
	t.Run("duplicate_record", func(t *testing.T) {
		_, err := ReadFasta(strings.NewReader(">A\nAC\n>A\nGT\n"))
		assert.Error(t, err)
	})
	t.Run("ragged_alignment", func(t *testing.T) {
		_, err := ReadFasta(strings.NewReader(">A\nACGT\n>B\nAC\n"))
		assert.Error(t, err)
	})
}

func TestLeafConditional(t *testing.T) {
	m, err := LeafConditional("ACGT", "AG-R")
	require.NoError(t, err)

	r, c := m.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 4, c)

	// Site 0: A only.
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(1, 0))
	// Site 1: G only.
	assert.Equal(t, 1.0, m.At(2, 1))
	// Site 2: gap, all states compatible.
	for s := 0; s < 4; s++ {
		assert.Equal(t, 1.0, m.At(s, 2))
	}
	// Site 3: R = A or G.
	assert.Equal(t, 1.0, m.At(0, 3))
	assert.Equal(t, 0.0, m.At(1, 3))
	assert.Equal(t, 1.0, m.At(2, 3))
	assert.Equal(t, 0.0, m.At(3, 3))

	_, err = LeafConditional("ACGT", "AZ")
	assert.Error(t, err)
}
