package phylo

import (
	"fmt"
	"strconv"

	"github.com/orneryd/yggdrasil/pkg/dataflow"
	"github.com/orneryd/yggdrasil/pkg/numeric"
)

// assembly carries the shared leaves of one likelihood graph: the configured
// model node, the branch length parameters and the alignment data the spec
// tree closes over.
type assembly struct {
	model    *dataflow.Node
	branches map[int]*dataflow.Node
	align    *Alignment
	alphabet string
	k, sites int

	// leaves caches leaf conditional nodes by taxon so that rebuilding the
	// same plan reuses the same data leaves, and with them the whole graph.
	leaves map[string]*dataflow.Node
}

func (a *assembly) condDim() dataflow.Dim {
	return dataflow.Dim{Rows: a.k, Cols: a.sites}
}

// ConditionalLikelihoodSpec plans the conditional likelihood matrix of a
// subtree: the per-state, per-site probability of the data below the node.
// Leaves encode the observed sequence directly; interior nodes multiply the
// forward likelihoods of their children elementwise.
type ConditionalLikelihoodSpec struct {
	a    *assembly
	node *TreeNode
}

func (s ConditionalLikelihoodSpec) Kind() dataflow.Kind {
	if s.node.IsLeaf() {
		return dataflow.KindConstant
	}
	return dataflow.Kind("CWiseMul(" + numeric.Matrix.Name() + ")")
}

func (s ConditionalLikelihoodSpec) Dependencies() []dataflow.Spec {
	if s.node.IsLeaf() {
		return nil
	}
	deps := make([]dataflow.Spec, 0, len(s.node.Children))
	for _, c := range s.node.Children {
		deps = append(deps, ForwardLikelihoodSpec{a: s.a, node: c})
	}
	return deps
}

func (s ConditionalLikelihoodSpec) Build(ctx *dataflow.Context, deps []*dataflow.Node) (*dataflow.Node, error) {
	if !s.node.IsLeaf() {
		return numeric.NewCWiseMul(ctx, numeric.Matrix, s.a.condDim(), deps...)
	}
	if n, ok := s.a.leaves[s.node.Name]; ok {
		return n, nil
	}
	seq, ok := s.a.align.Sequence(s.node.Name)
	if !ok {
		return nil, fmt.Errorf("phylo: leaf %q has no sequence in the alignment", s.node.Name)
	}
	m, err := LeafConditional(s.a.alphabet, seq)
	if err != nil {
		return nil, err
	}
	n, err := ctx.Constant(numeric.Matrix, s.a.condDim(), m)
	if err != nil {
		return nil, err
	}
	s.a.leaves[s.node.Name] = n
	return n, nil
}

func (s ConditionalLikelihoodSpec) Description() string {
	if s.node.Name != "" {
		return "cond " + s.node.Name
	}
	return "cond"
}

// ForwardLikelihoodSpec plans the likelihood of a subtree as seen from its
// parent: the child conditional pushed through the branch transition matrix,
// P(t) x C.
type ForwardLikelihoodSpec struct {
	a    *assembly
	node *TreeNode
}

func (ForwardLikelihoodSpec) Kind() dataflow.Kind { return "MatrixProduct" }

func (s ForwardLikelihoodSpec) Dependencies() []dataflow.Spec {
	return []dataflow.Spec{
		TransitionMatrixSpec{a: s.a, node: s.node},
		ConditionalLikelihoodSpec{a: s.a, node: s.node},
	}
}

func (s ForwardLikelihoodSpec) Build(ctx *dataflow.Context, deps []*dataflow.Node) (*dataflow.Node, error) {
	return numeric.NewMatrixProduct(ctx, false, false, deps[0], deps[1])
}

func (s ForwardLikelihoodSpec) Description() string {
	return "forward " + strconv.Itoa(s.node.Branch)
}

// TransitionMatrixSpec plans exp(Q t) for the branch above a node.
type TransitionMatrixSpec struct {
	a    *assembly
	node *TreeNode
}

func (TransitionMatrixSpec) Kind() dataflow.Kind { return "TransitionMatrixFromModel" }

func (s TransitionMatrixSpec) Dependencies() []dataflow.Spec {
	return []dataflow.Spec{
		dataflow.ReturnNode{Node: s.a.model},
		dataflow.ReturnNode{Node: s.a.branches[s.node.Branch]},
	}
}

func (s TransitionMatrixSpec) Build(ctx *dataflow.Context, deps []*dataflow.Node) (*dataflow.Node, error) {
	return NewTransitionMatrix(ctx, deps[0], deps[1])
}

func (s TransitionMatrixSpec) Description() string {
	return "P " + strconv.Itoa(s.node.Branch)
}

// EquilibriumFrequenciesSpec plans the model's equilibrium frequency row.
type EquilibriumFrequenciesSpec struct {
	a *assembly
}

func (EquilibriumFrequenciesSpec) Kind() dataflow.Kind { return "EquilibriumFrequenciesFromModel" }

func (s EquilibriumFrequenciesSpec) Dependencies() []dataflow.Spec {
	return []dataflow.Spec{dataflow.ReturnNode{Node: s.a.model}}
}

func (s EquilibriumFrequenciesSpec) Build(ctx *dataflow.Context, deps []*dataflow.Node) (*dataflow.Node, error) {
	return NewEquilibriumFrequencies(ctx, deps[0])
}

func (EquilibriumFrequenciesSpec) Description() string { return "pi" }

// SiteLikelihoodsSpec plans the per-site likelihood row: equilibrium
// frequencies times the root conditional.
type SiteLikelihoodsSpec struct {
	a    *assembly
	root *TreeNode
}

func (SiteLikelihoodsSpec) Kind() dataflow.Kind { return "MatrixProduct" }

func (s SiteLikelihoodsSpec) Dependencies() []dataflow.Spec {
	return []dataflow.Spec{
		EquilibriumFrequenciesSpec{a: s.a},
		ConditionalLikelihoodSpec{a: s.a, node: s.root},
	}
}

func (s SiteLikelihoodsSpec) Build(ctx *dataflow.Context, deps []*dataflow.Node) (*dataflow.Node, error) {
	return numeric.NewMatrixProduct(ctx, false, false, deps[0], deps[1])
}

func (SiteLikelihoodsSpec) Description() string { return "site likelihoods" }

// LogLikelihoodSpec plans the total log-likelihood: the sum of the log of
// each per-site likelihood.
type LogLikelihoodSpec struct {
	a    *assembly
	root *TreeNode
}

func (LogLikelihoodSpec) Kind() dataflow.Kind { return "SumOfLogarithms" }

func (s LogLikelihoodSpec) Dependencies() []dataflow.Spec {
	return []dataflow.Spec{SiteLikelihoodsSpec{a: s.a, root: s.root}}
}

func (s LogLikelihoodSpec) Build(ctx *dataflow.Context, deps []*dataflow.Node) (*dataflow.Node, error) {
	return numeric.NewSumOfLogarithms(ctx, deps[0])
}

func (LogLikelihoodSpec) Description() string { return "log-likelihood" }

// LikelihoodGraph is a compiled likelihood computation: the scalar
// log-likelihood root plus the mutable leaves it depends on.
type LikelihoodGraph struct {
	// Root evaluates to the total log-likelihood.
	Root *dataflow.Node

	// Model is the ConfiguredModel node shared by all branches.
	Model *dataflow.Node

	// Parameters maps model parameter names to their Float nodes.
	Parameters map[string]*dataflow.Node

	// BranchLengths maps branch indices to their Float nodes.
	BranchLengths map[int]*dataflow.Node

	spec dataflow.Spec
}

// Spec returns the plan the graph was built from, for DOT dumps and
// rebuild-sharing checks.
func (g *LikelihoodGraph) Spec() dataflow.Spec { return g.spec }

// LogLikelihood evaluates the root.
func (g *LikelihoodGraph) LogLikelihood() (float64, error) {
	return dataflow.Value[float64](g.Root)
}

// BuildLogLikelihood compiles the log-likelihood of an alignment on a tree
// under a substitution model. Branch lengths are taken from the tree; model
// parameters are taken from params, falling back to the model defaults.
// Every mutable input becomes a Parameter node, so updating one through
// SetValue invalidates exactly the dependent cone.
func BuildLogLikelihood(ctx *dataflow.Context, tree *Tree, align *Alignment, model SubstitutionModel, params map[string]float64) (*LikelihoodGraph, error) {
	names := model.ParameterNames()
	defaults := model.DefaultParameters()
	paramNodes := make(map[string]*dataflow.Node, len(names))
	deps := make([]*dataflow.Node, 0, len(names))
	for i, name := range names {
		v, ok := params[name]
		if !ok {
			v = defaults[i]
		}
		n, err := ctx.Parameter(dataflow.Float, dataflow.ScalarDim, v)
		if err != nil {
			return nil, err
		}
		paramNodes[name] = n
		deps = append(deps, n)
	}
	for name := range params {
		if _, ok := paramNodes[name]; !ok {
			return nil, fmt.Errorf("phylo: model %s has no parameter %q", model.Name(), name)
		}
	}

	modelNode, err := NewConfiguredModel(ctx, model, deps...)
	if err != nil {
		return nil, err
	}

	branches := make(map[int]*dataflow.Node, tree.Branches)
	var walk func(n *TreeNode) error
	walk = func(n *TreeNode) error {
		if n.Branch >= 0 {
			b, err := ctx.Parameter(dataflow.Float, dataflow.ScalarDim, n.Length)
			if err != nil {
				return err
			}
			branches[n.Branch] = b
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(tree.Root); err != nil {
		return nil, err
	}

	a := &assembly{
		model:    modelNode,
		branches: branches,
		align:    align,
		alphabet: model.Alphabet(),
		k:        len(model.Alphabet()),
		sites:    align.Sites,
		leaves:   make(map[string]*dataflow.Node),
	}
	spec := LogLikelihoodSpec{a: a, root: tree.Root}
	root, err := ctx.Build(spec)
	if err != nil {
		return nil, err
	}
	return &LikelihoodGraph{
		Root:          root,
		Model:         modelNode,
		Parameters:    paramNodes,
		BranchLengths: branches,
		spec:          spec,
	}, nil
}
