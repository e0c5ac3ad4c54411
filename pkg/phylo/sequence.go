package phylo

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Alignment holds aligned sequences keyed by taxon name.
type Alignment struct {
	// Names lists the taxa in file order.
	Names []string

	// Sites is the common sequence length.
	Sites int

	seqs map[string]string
}

// Sequence returns the aligned sequence for a taxon.
func (a *Alignment) Sequence(name string) (string, bool) {
	s, ok := a.seqs[name]
	return s, ok
}

// NewAlignment builds an alignment from name/sequence pairs, checking that
// all sequences share one length.
func NewAlignment(seqs map[string]string) (*Alignment, error) {
	a := &Alignment{seqs: make(map[string]string, len(seqs))}
	for name := range seqs {
		a.Names = append(a.Names, name)
	}
	// Deterministic order for error messages and graph construction.
	sort.Strings(a.Names)
	for _, name := range a.Names {
		s := strings.ToUpper(strings.TrimSpace(seqs[name]))
		if a.Sites == 0 {
			a.Sites = len(s)
		}
		if len(s) != a.Sites || a.Sites == 0 {
			return nil, fmt.Errorf("phylo: sequence %q has length %d, want %d", name, len(s), a.Sites)
		}
		a.seqs[name] = s
	}
	if len(a.Names) == 0 {
		return nil, fmt.Errorf("phylo: empty alignment")
	}
	return a, nil
}

// ReadFasta reads an alignment in FASTA format. The header line up to the
// first whitespace names the taxon.
func ReadFasta(r io.Reader) (*Alignment, error) {
	seqs := make(map[string]string)
	var name string
	var cur strings.Builder
	flush := func() error {
		if name == "" {
			return nil
		}
		if _, dup := seqs[name]; dup {
			return fmt.Errorf("phylo: duplicate fasta record %q", name)
		}
		seqs[name] = cur.String()
		cur.Reset()
		return nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, ">"):
			if err := flush(); err != nil {
				return nil, err
			}
			fields := strings.Fields(line[1:])
			if len(fields) == 0 {
				return nil, fmt.Errorf("phylo: fasta record without a name")
			}
			name = fields[0]
		case name == "":
			return nil, fmt.Errorf("phylo: fasta data before first header")
		default:
			cur.WriteString(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phylo: reading fasta: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return NewAlignment(seqs)
}

// iupacNucleotide maps ambiguity codes to the set of compatible states in
// ACGT order. Plain states and gaps are handled separately.
var iupacNucleotide = map[byte]string{
	'R': "AG", 'Y': "CT", 'S': "CG", 'W': "AT", 'K': "GT", 'M': "AC",
	'B': "CGT", 'D': "AGT", 'H': "ACT", 'V': "ACG",
}

// LeafConditional encodes a sequence as a k x sites 0/1 matrix: entry
// (state, site) is 1 when the observed symbol is compatible with the state.
// Gaps and fully ambiguous symbols yield an all-ones column.
func LeafConditional(alphabet, seq string) (*mat.Dense, error) {
	k := len(alphabet)
	out := mat.NewDense(k, len(seq), nil)
	for site := 0; site < len(seq); site++ {
		c := seq[site]
		switch {
		case strings.IndexByte(alphabet, c) >= 0:
			out.Set(strings.IndexByte(alphabet, c), site, 1)
		case c == '-' || c == '?' || c == 'N' || c == 'X':
			for s := 0; s < k; s++ {
				out.Set(s, site, 1)
			}
		default:
			set, ok := iupacNucleotide[c]
			if !ok {
				return nil, fmt.Errorf("phylo: symbol %q at site %d is not in alphabet %q", c, site, alphabet)
			}
			for s := 0; s < k; s++ {
				if strings.IndexByte(set, alphabet[s]) >= 0 {
					out.Set(s, site, 1)
				}
			}
		}
	}
	return out, nil
}
