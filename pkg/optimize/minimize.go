package optimize

import (
	"fmt"
	"math"

	gopt "gonum.org/v1/gonum/optimize"
)

// Result reports the outcome of a minimization.
type Result struct {
	// Value is the objective at the optimum found.
	Value float64

	// Parameters holds the optimal parameter values by name.
	Parameters map[string]float64

	// Evaluations counts objective evaluations performed.
	Evaluations int
}

// Settings tunes Minimize. The zero value asks for gradient-based descent
// when the graph supports it, with gonum's default convergence thresholds.
type Settings struct {
	// MaxEvaluations bounds objective evaluations, 0 for no bound.
	MaxEvaluations int

	// ForceGradientFree selects a derivative-free method even when
	// symbolic derivatives are available.
	ForceGradientFree bool
}

// Minimize drives a gonum optimizer over the function's parameters starting
// from their current values. Parameter points where the graph fails to
// evaluate (out-of-domain trials such as negative branch lengths) are
// treated as infinitely bad rather than aborting the search. On success the
// graph parameters are left set to the optimum.
func Minimize(f *Function, settings Settings) (*Result, error) {
	names := f.ParameterNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("optimize: no parameters to optimize")
	}
	x0 := make([]float64, len(names))
	for i, name := range names {
		v, err := f.Parameter(name)
		if err != nil {
			return nil, err
		}
		x0[i] = v
	}

	apply := func(x []float64) error {
		for i, name := range names {
			if err := f.SetParameter(name, x[i]); err != nil {
				return err
			}
		}
		return nil
	}

	problem := gopt.Problem{
		Func: func(x []float64) float64 {
			if err := apply(x); err != nil {
				return math.Inf(1)
			}
			v, err := f.Value()
			if err != nil {
				return math.Inf(1)
			}
			return v
		},
	}

	var method gopt.Method = &gopt.NelderMead{}
	if !settings.ForceGradientFree && f.Differentiable() {
		problem.Grad = func(grad, x []float64) {
			if err := apply(x); err != nil {
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			for i, name := range names {
				d, err := f.FirstOrderDerivative(name)
				if err != nil {
					d = 0
				}
				grad[i] = d
			}
		}
		method = &gopt.LBFGS{}
	}

	gs := &gopt.Settings{FuncEvaluations: settings.MaxEvaluations}
	res, err := gopt.Minimize(problem, x0, gs, method)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	if err := apply(res.X); err != nil {
		return nil, err
	}
	out := &Result{
		Value:       res.F,
		Parameters:  make(map[string]float64, len(names)),
		Evaluations: res.FuncEvaluations,
	}
	for i, name := range names {
		out.Parameters[name] = res.X[i]
	}
	return out, nil
}
