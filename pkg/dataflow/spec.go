package dataflow

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Spec is a plan describing a node to be built: its operator kind and the
// plans of its dependencies. Specs are cheap value types; they are composed
// freely and only turn into nodes when a Context builds them.
//
// Context.Build drives the recursion: dependencies are resolved first, each
// through the registry, so building the same specification twice on one
// Context yields the same node (common-subexpression elimination).
type Spec interface {
	// Kind returns the operator kind of the node this spec builds.
	Kind() Kind

	// Dependencies returns the sub-specifications describing the node's
	// dependencies, in order.
	Dependencies() []Spec

	// Build constructs the node from resolved dependencies. Implementations
	// go through ctx.NewComputed so the registry can merge.
	Build(ctx *Context, deps []*Node) (*Node, error)

	// Description is a short human-readable label for DOT dumps.
	Description() string
}

// Build resolves the spec tree into a node graph, merging through the
// Context registry. Leaf specs (no dependencies) build directly and are not
// registered; they inject constants, parameters or pre-existing nodes.
func (c *Context) Build(spec Spec) (*Node, error) {
	depSpecs := spec.Dependencies()
	deps := make([]*Node, 0, len(depSpecs))
	for _, ds := range depSpecs {
		d, err := c.Build(ds)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return spec.Build(c, deps)
}

// InstantiateWithoutReuse builds the spec tree without registry merging:
// every interior spec yields a fresh node. Used by DOT spec dumps to show
// the un-merged shape of a plan.
func (c *Context) InstantiateWithoutReuse(spec Spec) (*Node, error) {
	c.noMerge = true
	defer func() { c.noMerge = false }()
	return c.Build(spec)
}

// ReturnNode is the leaf spec yielding a stored pre-existing node. It is how
// externally created leaves (parameters, data constants) are injected into a
// spec tree.
type ReturnNode struct {
	Node *Node
}

func (ReturnNode) Kind() Kind { return "ReturnNode" }
func (ReturnNode) Dependencies() []Spec { return nil }

func (r ReturnNode) Build(*Context, []*Node) (*Node, error) { return r.Node, nil }

func (r ReturnNode) Description() string {
	return "Parameter(" + r.Node.Description() + ")"
}

// AlwaysGenerate is the convenience spec for plans that always produce a
// node of a fixed operator over sub-specifications.
type AlwaysGenerate struct {
	Op   Op
	Deps []Spec
}

func (a AlwaysGenerate) Kind() Kind { return a.Op.Kind() }
func (a AlwaysGenerate) Dependencies() []Spec { return a.Deps }

func (a AlwaysGenerate) Build(ctx *Context, deps []*Node) (*Node, error) {
	return ctx.NewComputed(a.Op, deps...)
}

func (a AlwaysGenerate) Description() string { return a.Op.Description() }

// DebugHash returns a structural blake3 hash of the spec tree, derived from
// kinds, descriptions and child hashes. It identifies specs in DOT dumps and
// is debug-only: the registry never keys by spec, only by realized-node
// identity.
func DebugHash(s Spec) uint64 {
	h := blake3.New(8, nil)
	h.Write([]byte(s.Kind()))
	h.Write([]byte{0})
	h.Write([]byte(s.Description()))
	for _, d := range s.Dependencies() {
		var child [8]byte
		binary.LittleEndian.PutUint64(child[:], DebugHash(d))
		h.Write(child[:])
	}
	var sum [8]byte
	h.Sum(sum[:0])
	return binary.LittleEndian.Uint64(sum[:])
}
