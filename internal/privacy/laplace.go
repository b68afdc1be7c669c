package privacy

import (
	"math"
	"math/rand/v2"

	dErrors "zkattend/pkg/domain-errors"
)

// Laplace implements the Laplace mechanism for ε-differential privacy on
// numeric releases. It is stateless apart from randomness consumption, so a
// single instance is safe to share across concurrent callers.
type Laplace struct {
	epsilon float64
}

// NewLaplace validates the privacy budget and returns a mechanism.
// Smaller ε adds more noise and yields stronger privacy.
func NewLaplace(epsilon float64) (*Laplace, error) {
	if epsilon <= 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidBudget, "epsilon must be positive, got %g", epsilon)
	}
	return &Laplace{epsilon: epsilon}, nil
}

// Epsilon returns the budget the mechanism was built with.
func (l *Laplace) Epsilon() float64 { return l.epsilon }

// AddNoise adds one zero-mean Laplace sample with scale sensitivity/ε.
func (l *Laplace) AddNoise(value, sensitivity float64) (float64, error) {
	if sensitivity < 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidBudget, "sensitivity must be non-negative, got %g", sensitivity)
	}
	return value + sample(sensitivity/l.epsilon), nil
}

// AddNoiseToCounts noises each count independently and clamps the results to
// zero. Noise can go negative; released counts never are.
func (l *Laplace) AddNoiseToCounts(counts map[string]int, sensitivity float64) (map[string]float64, error) {
	if sensitivity < 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidBudget, "sensitivity must be non-negative, got %g", sensitivity)
	}
	noisy := make(map[string]float64, len(counts))
	for key, count := range counts {
		noisy[key] = math.Max(0, float64(count)+sample(sensitivity/l.epsilon))
	}
	return noisy, nil
}

// transitionSensitivity bounds how much one user can shift a single
// transition probability.
const transitionSensitivity = 0.01

// PrivatizeTransitionMatrix noises every probability, clamps to [0,1], and
// re-normalizes each row to sum to 1. A row zeroed out by clamping becomes a
// uniform distribution over its width rather than an error.
func (l *Laplace) PrivatizeTransitionMatrix(matrix map[string][]float64) map[string][]float64 {
	noisy := make(map[string][]float64, len(matrix))
	for state, probs := range matrix {
		row := make([]float64, len(probs))
		total := 0.0
		for i, p := range probs {
			v := p + sample(transitionSensitivity/l.epsilon)
			v = math.Max(0, math.Min(1, v))
			row[i] = v
			total += v
		}
		if total > 0 {
			for i := range row {
				row[i] /= total
			}
		} else if len(row) > 0 {
			uniform := 1.0 / float64(len(row))
			for i := range row {
				row[i] = uniform
			}
		}
		noisy[state] = row
	}
	return noisy
}

// SplitBudget divides a global budget equally across n parallel releases and
// returns a mechanism carrying the per-release share. This is simple equal
// composition, not adaptive accounting.
func SplitBudget(epsilon float64, n int) (*Laplace, error) {
	if n <= 0 {
		return NewLaplace(epsilon)
	}
	return NewLaplace(epsilon / float64(n))
}

// sample draws from Laplace(0, scale) by inverse CDF.
func sample(scale float64) float64 {
	if scale == 0 {
		return 0
	}
	u := rand.Float64() - 0.5
	if u < 0 {
		return scale * math.Log(1+2*u)
	}
	return -scale * math.Log(1-2*u)
}
