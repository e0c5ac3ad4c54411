package phylo

import (
	"fmt"
	"strconv"
	"strings"
)

// TreeNode is one node of a rooted phylogenetic tree. Branch describes the
// edge to the parent: the root carries none.
type TreeNode struct {
	// Name is the taxon label, empty for unnamed interior nodes.
	Name string

	// Branch is the index of the edge to the parent, -1 at the root.
	Branch int

	// Length is the length of the edge to the parent, 0 at the root.
	Length float64

	Children []*TreeNode
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool { return len(n.Children) == 0 }

// Tree is a rooted tree with branches numbered 0..Branches-1 in the order
// they close during parsing.
type Tree struct {
	Root     *TreeNode
	Branches int
}

// Leaves returns the leaf nodes in left-to-right order.
func (t *Tree) Leaves() []*TreeNode {
	var out []*TreeNode
	var walk func(n *TreeNode)
	walk = func(n *TreeNode) {
		if n.IsLeaf() {
			out = append(out, n)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

// ParseNewick parses a rooted tree in Newick notation, e.g.
// "((A:0.1,B:0.2):0.05,C:0.3);". Unlabeled interior nodes and omitted
// branch lengths are accepted; quoted labels are not.
func ParseNewick(s string) (*Tree, error) {
	p := &newickParser{src: strings.TrimSpace(s)}
	root, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eat(';') {
		return nil, p.errorf("expected ';'")
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing input")
	}
	root.Branch = -1
	root.Length = 0
	return &Tree{Root: root, Branches: p.branches}, nil
}

type newickParser struct {
	src      string
	pos      int
	branches int
}

func (p *newickParser) errorf(format string, args ...any) error {
	return fmt.Errorf("phylo: newick at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *newickParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *newickParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *newickParser) eat(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

// node parses a subtree: either "(child,child,...)" or a bare leaf label,
// followed by an optional label and ":length".
func (p *newickParser) node() (*TreeNode, error) {
	p.skipSpace()
	n := &TreeNode{}
	if p.eat('(') {
		for {
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			child.Branch = p.branches
			p.branches++
			n.Children = append(n.Children, child)
			p.skipSpace()
			if p.eat(',') {
				continue
			}
			if p.eat(')') {
				break
			}
			return nil, p.errorf("expected ',' or ')'")
		}
	}
	n.Name = p.label()
	if n.Name == "" && n.IsLeaf() {
		return nil, p.errorf("leaf without a label")
	}
	p.skipSpace()
	if p.eat(':') {
		length, err := p.number()
		if err != nil {
			return nil, err
		}
		n.Length = length
	}
	return n, nil
}

func (p *newickParser) label() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("(),:; \t\n\r", p.src[p.pos]) < 0 {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *newickParser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("(),:;", p.src[p.pos]) < 0 {
		p.pos++
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.src[start:p.pos]), 64)
	if err != nil {
		return 0, p.errorf("bad branch length %q", p.src[start:p.pos])
	}
	return v, nil
}
