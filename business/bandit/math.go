package bandit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate marks an update or factorization that would corrupt the arm
// statistics. Such updates are skipped.
var ErrDegenerate = errors.New("bandit: degenerate update")

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (a *ArmState) aSym() *mat.SymDense    { return mat.NewSymDense(a.Dim, a.A) }
func (a *ArmState) aInvSym() *mat.SymDense { return mat.NewSymDense(a.Dim, a.AInv) }

// mean is θᵀx.
func (a *ArmState) mean(x []float64) float64 {
	return floats.Dot(a.Theta, x)
}

// width is sqrt(xᵀA⁻¹x), the confidence width of the estimate at x.
func (a *ArmState) width(x []float64) float64 {
	xv := mat.NewVecDense(a.Dim, x)
	q := mat.Inner(xv, a.aInvSym(), xv)
	if q <= 0 || !finite(q) {
		return 0
	}
	return math.Sqrt(q)
}

// observe folds one (x, r) observation into the arm in place. A⁻¹ is kept
// current with a Sherman–Morrison rank-one update and recomputed from a
// Cholesky factorization of A every refactorEvery updates.
func (a *ArmState) observe(x []float64, reward float64, refactorEvery int) error {
	if len(x) != a.Dim {
		return fmt.Errorf("%w: context dimension %d, arm dimension %d", ErrDegenerate, len(x), a.Dim)
	}
	if !finite(reward) || !finite(x...) {
		return fmt.Errorf("%w: non-finite input", ErrDegenerate)
	}

	xv := mat.NewVecDense(a.Dim, x)
	ainv := a.aInvSym()

	var u mat.VecDense
	u.MulVec(ainv, xv)
	denom := 1 + mat.Dot(xv, &u)
	if !finite(denom) || denom < 1e-12 {
		return fmt.Errorf("%w: sherman-morrison denominator %g", ErrDegenerate, denom)
	}

	design := a.aSym()
	design.SymRankOne(design, 1, xv)
	ainv.SymRankOne(ainv, -1/denom, &u)
	floats.AddScaled(a.B, reward, x)

	a.Plays++
	a.CumulativeReward += reward
	a.SinceRefactor++
	if refactorEvery > 0 && a.SinceRefactor >= refactorEvery {
		if err := a.refactor(); err != nil {
			return err
		}
	}
	return a.solve()
}

// refactor recomputes A⁻¹ from scratch.
func (a *ArmState) refactor() error {
	var chol mat.Cholesky
	if ok := chol.Factorize(a.aSym()); !ok {
		return fmt.Errorf("%w: design matrix not positive definite", ErrDegenerate)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	for i := 0; i < a.Dim; i++ {
		for j := i; j < a.Dim; j++ {
			a.AInv[i*a.Dim+j] = inv.At(i, j)
		}
	}
	a.SinceRefactor = 0
	return nil
}

// solve sets θ = A⁻¹b.
func (a *ArmState) solve() error {
	var theta mat.VecDense
	theta.MulVec(a.aInvSym(), mat.NewVecDense(a.Dim, a.B))
	raw := theta.RawVector()
	for i := 0; i < a.Dim; i++ {
		v := raw.Data[i*raw.Inc]
		if !finite(v) {
			return fmt.Errorf("%w: non-finite coefficient", ErrDegenerate)
		}
		a.Theta[i] = v
	}
	return nil
}

// sample draws θ̃ ~ N(θ, A⁻¹) and returns θ̃ᵀx. With A = UᵀU the draw is
// θ + U⁻¹z for standard normal z.
func (a *ArmState) sample(x []float64, normal func() float64) (float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a.aSym()); !ok {
		return 0, fmt.Errorf("%w: design matrix not positive definite", ErrDegenerate)
	}
	u := chol.RawU()

	d := a.Dim
	z := make([]float64, d)
	for i := range z {
		z[i] = normal()
	}

	// back substitution for U w = z
	w := make([]float64, d)
	for i := d - 1; i >= 0; i-- {
		s := z[i]
		for j := i + 1; j < d; j++ {
			s -= u.At(i, j) * w[j]
		}
		w[i] = s / u.At(i, i)
	}

	score := 0.0
	for i := 0; i < d; i++ {
		score += (a.Theta[i] + w[i]) * x[i]
	}
	if !finite(score) {
		return 0, fmt.Errorf("%w: non-finite sample", ErrDegenerate)
	}
	return score, nil
}
