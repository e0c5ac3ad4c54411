package dataflow

import (
	"fmt"
	"hash/fnv"
	"io"
	"strings"
)

// DotOptions selects optional detail in DOT dumps.
type DotOptions uint

const (
	// DotShowDependencyIndex labels node-to-dependency edges with the
	// dependency index.
	DotShowDependencyIndex DotOptions = 1 << iota
	// DotFollowDependents also walks reverse edges from the entry points.
	DotFollowDependents
	// DotShowRegistryLinks adds registry keys and their links to stored
	// nodes in spec replay dumps.
	DotShowRegistryLinks
	// DotDetailedNodeInfo appends the value slot state to node labels.
	DotDetailedNodeInfo
)

// dotLabelEscape escapes the characters meaningful inside a record label.
func dotLabelEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		if strings.ContainsRune(`<>|{} `, c) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// dotKey builds a short probably-unique key: a type tag letter followed by a
// hash reduced to 16 bits. N = node, K = registry key, S = spec.
func dotKey(tag byte, hash uint64) string {
	return fmt.Sprintf("%c%d", tag, uint16(hash))
}

func dotNodeKey(n *Node) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%p", n)
	return dotKey('N', h.Sum64())
}

func dotRegistryKey(key registryKey) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d/%p/%d", key.kind, key.depCount, key.firstDep, key.args)
	return dotKey('K', h.Sum64())
}

func dotSpecKey(s Spec) string {
	return dotKey('S', DebugHash(s))
}

func dotNode(w io.Writer, n *Node, opts DotOptions) {
	label := dotNodeKey(n) + "|" + dotLabelEscape(n.Description())
	if opts&DotDetailedNodeInfo != 0 {
		label += "|" + dotLabelEscape(n.DebugInfo())
	}
	fmt.Fprintf(w, "\t%s [color=blue,shape=record,label=\"%s\"];\n", dotNodeKey(n), label)
}

func dotRegistryEntry(w io.Writer, key registryKey, n *Node) {
	fmt.Fprintf(w, "\t%s [shape=Mrecord,label=\"{%s|{%s|%d}}\"];\n",
		dotRegistryKey(key), dotRegistryKey(key), dotLabelEscape(string(key.kind)), key.depCount)
	fmt.Fprintf(w, "\t%s -> %s;\n", dotRegistryKey(key), dotNodeKey(n))
}

func dotSpec(w io.Writer, s Spec) {
	fmt.Fprintf(w, "\t%s [color=red,shape=record,label=\"{%s|%s}\"];\n",
		dotSpecKey(s), dotSpecKey(s), dotLabelEscape(s.Description()))
}

// dotDagStructure walks the graph from the entry points and writes node and
// dependency edges (blue).
func dotDagStructure(w io.Writer, entry []*Node, opts DotOptions) {
	visited := make(map[*Node]bool)
	queue := append([]*Node(nil), entry...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		dotNode(w, n, opts)

		if opts&DotFollowDependents != 0 {
			for _, d := range n.Dependents() {
				if !visited[d] {
					queue = append(queue, d)
				}
			}
		}
		for i, d := range n.deps {
			if opts&DotShowDependencyIndex != 0 {
				fmt.Fprintf(w, "\t%s -> %s [color=blue,label=\"%d\"];\n", dotNodeKey(n), dotNodeKey(d), i)
			} else {
				fmt.Fprintf(w, "\t%s -> %s [color=blue];\n", dotNodeKey(n), dotNodeKey(d))
			}
			if !visited[d] {
				queue = append(queue, d)
			}
		}
	}
}

// WriteDot writes the node graph reachable from the entry points as a DOT
// digraph.
func WriteDot(w io.Writer, opts DotOptions, entry ...*Node) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}
	dotDagStructure(w, entry, opts)
	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteRegistryDot writes every registered node of the Context, each with
// its registry key (Mrecord, black key-to-node edge), plus the reachable
// graph structure.
func WriteRegistryDot(w io.Writer, c *Context, opts DotOptions) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}
	var entry []*Node
	c.foreachRegistered(func(key registryKey, n *Node) {
		dotRegistryEntry(w, key, n)
		entry = append(entry, n)
	})
	dotDagStructure(w, entry, opts)
	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteSpecDot instantiates the spec without registry reuse and writes the
// spec tree (red records, red spec-to-subspec edges), the green edges from
// each spec to its built node, and the resulting graph structure.
func WriteSpecDot(w io.Writer, c *Context, spec Spec, opts DotOptions) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}
	root, err := dotPlaySpec(w, c, spec)
	if err != nil {
		return err
	}
	dotDagStructure(w, []*Node{root}, opts)
	_, err = fmt.Fprintln(w, "}")
	return err
}

func dotPlaySpec(w io.Writer, c *Context, spec Spec) (*Node, error) {
	dotSpec(w, spec)
	depSpecs := spec.Dependencies()
	deps := make([]*Node, 0, len(depSpecs))
	for _, ds := range depSpecs {
		d, err := dotPlaySpec(w, c, ds)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(w, "\t%s -> %s [color=red];\n", dotSpecKey(spec), dotSpecKey(ds))
		deps = append(deps, d)
	}
	c.noMerge = true
	n, err := spec.Build(c, deps)
	c.noMerge = false
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "\t%s -> %s [color=green];\n", dotSpecKey(spec), dotNodeKey(n))
	return n, nil
}

// WriteSpecReplayDot replays the spec against the Context's populated
// registry: the spec tree is drawn in red, green edges point at the
// registered nodes the replay resolves to. A spec that was never built on
// this Context fails with ErrRegistryMiss.
func WriteSpecReplayDot(w io.Writer, c *Context, spec Spec, opts DotOptions) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}
	root, err := dotReplaySpec(w, c, spec)
	if err != nil {
		return err
	}
	dotDagStructure(w, []*Node{root}, opts)
	if opts&DotShowRegistryLinks != 0 {
		c.foreachRegistered(func(key registryKey, n *Node) {
			dotRegistryEntry(w, key, n)
		})
	}
	_, err = fmt.Fprintln(w, "}")
	return err
}

func dotReplaySpec(w io.Writer, c *Context, spec Spec) (*Node, error) {
	dotSpec(w, spec)
	depSpecs := spec.Dependencies()
	if len(depSpecs) == 0 {
		// Leaf specs rebuild directly; they were never registered.
		n, err := spec.Build(c, nil)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(w, "\t%s -> %s [color=green];\n", dotSpecKey(spec), dotNodeKey(n))
		return n, nil
	}
	deps := make([]*Node, 0, len(depSpecs))
	for _, ds := range depSpecs {
		d, err := dotReplaySpec(w, c, ds)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(w, "\t%s -> %s [color=red];\n", dotSpecKey(spec), dotSpecKey(ds))
		deps = append(deps, d)
	}
	// Building in replay mode resolves through the registry with the spec's
	// own operator, so argument-carrying variants of the same kind cannot
	// cross-resolve. A miss reports ErrRegistryMiss instead of creating.
	c.replay = true
	n, err := spec.Build(c, deps)
	c.replay = false
	if err != nil {
		return nil, fmt.Errorf("replay of %s: %w", spec.Kind(), err)
	}
	fmt.Fprintf(w, "\t%s -> %s [color=green];\n", dotSpecKey(spec), dotNodeKey(n))
	return n, nil
}
