// Package phylo assembles phylogenetic likelihood computations as dataflow
// graphs. A tree and an alignment are compiled into a DAG of numeric nodes
// rooted at the log-likelihood, so that changing a branch length or a model
// parameter recomputes only the affected cone of the tree.
package phylo

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SubstitutionModel describes a continuous-time Markov substitution model
// over a fixed state alphabet. Implementations are stateless: parameter
// values are passed in explicitly, so a single model definition can back
// several configured instances in one graph.
type SubstitutionModel interface {
	// Name identifies the model, e.g. "T92".
	Name() string

	// Alphabet returns the state letters in matrix order.
	Alphabet() string

	// ParameterNames returns the free parameter names in the order
	// Frequencies and Generator expect them.
	ParameterNames() []string

	// DefaultParameters returns a valid starting point, aligned with
	// ParameterNames.
	DefaultParameters() []float64

	// Frequencies returns the equilibrium state frequencies.
	Frequencies(params []float64) ([]float64, error)

	// Generator returns the normalized rate matrix Q, scaled so that the
	// expected substitution rate at equilibrium is one.
	Generator(params []float64) (*mat.Dense, error)
}

// T92 is the Tamura 1992 nucleotide model: one transition/transversion
// ratio kappa and one equilibrium GC content theta.
type T92 struct{}

func (T92) Name() string { return "T92" }

func (T92) Alphabet() string { return "ACGT" }

func (T92) ParameterNames() []string { return []string{"kappa", "theta"} }

func (T92) DefaultParameters() []float64 { return []float64{2.0, 0.5} }

func (T92) Frequencies(params []float64) ([]float64, error) {
	if err := t92Check(params); err != nil {
		return nil, err
	}
	theta := params[1]
	return []float64{(1 - theta) / 2, theta / 2, theta / 2, (1 - theta) / 2}, nil
}

func (m T92) Generator(params []float64) (*mat.Dense, error) {
	freqs, err := m.Frequencies(params)
	if err != nil {
		return nil, err
	}
	kappa := params[0]

	q := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		var row float64
		for j := 0; j < 4; j++ {
			if i == j {
				continue
			}
			rate := freqs[j]
			if isTransition(i, j) {
				rate *= kappa
			}
			q.Set(i, j, rate)
			row += rate
		}
		q.Set(i, i, -row)
	}

	// Normalize to one expected substitution per unit time.
	var lambda float64
	for i := 0; i < 4; i++ {
		lambda -= freqs[i] * q.At(i, i)
	}
	q.Scale(1/lambda, q)
	return q, nil
}

// isTransition reports whether the pair is A<->G or C<->T, in ACGT order.
func isTransition(i, j int) bool {
	return i != j && (i+j == 2 || i+j == 4)
}

func t92Check(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("phylo: T92 expects 2 parameters, got %d", len(params))
	}
	if params[0] <= 0 {
		return fmt.Errorf("phylo: T92 kappa must be positive, got %g", params[0])
	}
	if params[1] <= 0 || params[1] >= 1 {
		return fmt.Errorf("phylo: T92 theta must be in (0, 1), got %g", params[1])
	}
	return nil
}
