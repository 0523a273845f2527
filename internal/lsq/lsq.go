// Package lsq provides bounded nonlinear least-squares curve fitting with the
// Levenberg–Marquardt method.
//
// Bounds are enforced by projecting every trial point onto the feasible box.
// The parameter covariance is estimated from the Jacobian at the solution with
// an SVD pseudo-inverse, so redundant parameter combinations yield a finite
// (rank-deficient) covariance instead of an error.
package lsq

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Errors returned by Fit.
var (
	ErrDimension     = errors.New("lsq: dimension mismatch")
	ErrTooFewPoints  = errors.New("lsq: fewer data points than parameters")
	ErrNonFinite     = errors.New("lsq: model is not finite at the starting point")
	ErrNotConverged  = errors.New("lsq: iteration limit reached without convergence")
	ErrInfeasibleBox = errors.New("lsq: lower bound exceeds upper bound")
)

// Problem describes a curve y ≈ Model(x, p).
type Problem struct {
	X, Y []float64

	// Model evaluates the curve at x for parameters p.
	Model func(x float64, p []float64) float64

	// Gradient writes ∂Model/∂p at x into dst. When nil, central finite
	// differences are used.
	Gradient func(x float64, p, dst []float64)

	// Lower and Upper bound each parameter; nil means unbounded. Use ±Inf
	// for individual unbounded parameters.
	Lower, Upper []float64
}

// Settings controls the iteration.
type Settings struct {
	MaxIterations int
	FTol          float64 // relative cost reduction considered converged
	XTol          float64 // relative step size considered converged
	GTol          float64 // gradient infinity norm considered converged
	InitialLambda float64
}

// DefaultSettings returns tolerances comparable to MINPACK's defaults with a
// generous iteration cap.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 10000,
		FTol:          1e-10,
		XTol:          1e-10,
		GTol:          1e-12,
		InitialLambda: 1e-3,
	}
}

// Reason names the criterion that ended the iteration.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonFTol
	ReasonXTol
	ReasonGTol
	ReasonZeroCost
)

func (r Reason) String() string {
	switch r {
	case ReasonFTol:
		return "ftol"
	case ReasonXTol:
		return "xtol"
	case ReasonGTol:
		return "gtol"
	case ReasonZeroCost:
		return "zero-cost"
	default:
		return "none"
	}
}

// Result holds a converged fit.
type Result struct {
	Params     []float64
	Covariance *mat.SymDense
	Cost       float64 // residual sum of squares
	Iterations int
	Reason     Reason
}

// StdErr returns the square roots of the covariance diagonal.
func (r Result) StdErr() []float64 {
	if r.Covariance == nil {
		return nil
	}
	n := r.Covariance.SymmetricDim()
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sqrt(r.Covariance.At(i, i))
	}
	return out
}

const (
	lambdaMax   = 1e16
	lambdaMin   = 1e-15
	lambdaScale = 10
	diagFloor   = 1e-12
)

// Fit minimizes Σ (Y[i] - Model(X[i], p))² starting from start.
func Fit(ctx context.Context, prob Problem, start []float64, s Settings) (Result, error) {
	m := len(prob.X)
	n := len(start)
	if len(prob.Y) != m || prob.Model == nil {
		return Result{}, ErrDimension
	}
	if (prob.Lower != nil && len(prob.Lower) != n) || (prob.Upper != nil && len(prob.Upper) != n) {
		return Result{}, ErrDimension
	}
	if m < n {
		return Result{}, fmt.Errorf("%w: %d points, %d parameters", ErrTooFewPoints, m, n)
	}
	for i := 0; i < n; i++ {
		if lower(prob, i) > upper(prob, i) {
			return Result{}, ErrInfeasibleBox
		}
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultSettings().MaxIterations
	}
	if s.InitialLambda <= 0 {
		s.InitialLambda = DefaultSettings().InitialLambda
	}

	p := make([]float64, n)
	copy(p, start)
	project(prob, p)

	r := make([]float64, m)
	cost := residuals(prob, p, r)
	if !isFinite(cost) {
		return Result{}, ErrNonFinite
	}

	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	trialR := make([]float64, m)
	active := make([]bool, n)
	lambda := s.InitialLambda

	var (
		jtj  mat.SymDense
		grad mat.VecDense
	)

	for iter := 1; iter <= s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if cost == 0 {
			return finish(prob, p, cost, iter-1, ReasonZeroCost, jac), nil
		}

		jacobian(prob, p, jac)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		// Parameters held at a bound by the descent direction are frozen for
		// this iteration; the rest take a damped Gauss-Newton step.
		g := grad.RawVector().Data
		for i := range active {
			active[i] = (p[i] <= lower(prob, i) && g[i] <= 0) || (p[i] >= upper(prob, i) && g[i] >= 0)
		}
		if projectedGradNorm(g, active) <= s.GTol {
			return finish(prob, p, cost, iter-1, ReasonGTol, jac), nil
		}

		for {
			step, ok := solveDamped(&jtj, &grad, lambda, active)
			if ok {
				for i := range trial {
					trial[i] = p[i] + step[i]
				}
				project(prob, trial)
				floats.SubTo(step, trial, p)

				if floats.Norm(step, 2) <= s.XTol*(floats.Norm(p, 2)+s.XTol) {
					return finish(prob, p, cost, iter, ReasonXTol, jac), nil
				}

				trialCost := residuals(prob, trial, trialR)
				if isFinite(trialCost) && trialCost < cost {
					prevCost := cost
					predicted := predictedReduction(&jtj, &grad, step)
					copy(p, trial)
					copy(r, trialR)
					cost = trialCost
					lambda = math.Max(lambda/lambdaScale, lambdaMin)

					if prevCost-cost <= s.FTol*prevCost && predicted <= s.FTol*prevCost {
						return finish(prob, p, cost, iter, ReasonFTol, jac), nil
					}
					break
				}
			}

			lambda *= lambdaScale
			if lambda > lambdaMax {
				return Result{}, fmt.Errorf("%w: damping exhausted after %d iterations", ErrNotConverged, iter)
			}
		}
	}

	return Result{}, fmt.Errorf("%w: %d iterations", ErrNotConverged, s.MaxIterations)
}

// solveDamped solves (JᵀJ + λ·diag(JᵀJ)) δ = Jᵀr with δ fixed at zero for
// active parameters.
func solveDamped(jtj *mat.SymDense, grad *mat.VecDense, lambda float64, active []bool) ([]float64, bool) {
	n := jtj.SymmetricDim()

	maxDiag := 0.0
	for i := 0; i < n; i++ {
		maxDiag = math.Max(maxDiag, jtj.At(i, i))
	}
	floor := math.Max(maxDiag*diagFloor, diagFloor)

	a := mat.NewSymDense(n, nil)
	a.CopySym(jtj)
	for i := 0; i < n; i++ {
		d := math.Max(jtj.At(i, i), floor)
		a.SetSym(i, i, jtj.At(i, i)+lambda*d)
	}

	rhs := mat.VecDenseCopyOf(grad)
	for i, fixed := range active {
		if !fixed {
			continue
		}
		for j := 0; j < n; j++ {
			a.SetSym(i, j, 0)
		}
		a.SetSym(i, i, 1)
		rhs.SetVec(i, 0)
	}

	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, false
	}

	var step mat.VecDense
	if err := chol.SolveVecTo(&step, rhs); err != nil {
		return nil, false
	}
	out := make([]float64, n)
	copy(out, step.RawVector().Data)
	for _, v := range out {
		if !isFinite(v) {
			return nil, false
		}
	}
	return out, true
}

func projectedGradNorm(g []float64, active []bool) float64 {
	var norm float64
	for i, v := range g {
		if !active[i] {
			norm = math.Max(norm, math.Abs(v))
		}
	}
	return norm
}

// predictedReduction is the cost decrease the linearized model expects from
// step: 2·δᵀJᵀr − δᵀJᵀJδ.
func predictedReduction(jtj *mat.SymDense, grad *mat.VecDense, step []float64) float64 {
	d := mat.NewVecDense(len(step), step)
	return 2*mat.Dot(d, grad) - mat.Inner(d, jtj, d)
}

func finish(prob Problem, p []float64, cost float64, iters int, reason Reason, jac *mat.Dense) Result {
	jacobian(prob, p, jac)
	params := make([]float64, len(p))
	copy(params, p)
	return Result{
		Params:     params,
		Covariance: covariance(jac, cost),
		Cost:       cost,
		Iterations: iters,
		Reason:     reason,
	}
}

// covariance returns s²·pinv(JᵀJ) with s² = cost/(m-n), computed from the
// thin SVD of J. Singular values below eps·max(m,n)·s₀ are discarded. With no
// degrees of freedom left every entry is +Inf.
func covariance(jac *mat.Dense, cost float64) *mat.SymDense {
	m, n := jac.Dims()
	cov := mat.NewSymDense(n, nil)

	if m <= n {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				cov.SetSym(i, j, math.Inf(1))
			}
		}
		return cov
	}

	var svd mat.SVD
	if !svd.Factorize(jac, mat.SVDThin) {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				cov.SetSym(i, j, math.Inf(1))
			}
		}
		return cov
	}
	values := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	threshold := 0.0
	if len(values) > 0 {
		threshold = 2.220446049250313e-16 * float64(max(m, n)) * values[0]
	}

	s2 := cost / float64(m-n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var sum float64
			for k, sv := range values {
				if sv <= threshold {
					continue
				}
				sum += v.At(i, k) * v.At(j, k) / (sv * sv)
			}
			cov.SetSym(i, j, sum*s2)
		}
	}
	return cov
}

func residuals(prob Problem, p, dst []float64) float64 {
	var cost float64
	for i, x := range prob.X {
		r := prob.Y[i] - prob.Model(x, p)
		dst[i] = r
		cost += r * r
	}
	return cost
}

func jacobian(prob Problem, p []float64, jac *mat.Dense) {
	_, n := jac.Dims()
	row := make([]float64, n)

	if prob.Gradient != nil {
		for i, x := range prob.X {
			prob.Gradient(x, p, row)
			jac.SetRow(i, row)
		}
		return
	}

	work := make([]float64, n)
	copy(work, p)
	for j := 0; j < n; j++ {
		h := 1e-7 * math.Max(math.Abs(p[j]), 1)
		for i, x := range prob.X {
			work[j] = p[j] + h
			fp := prob.Model(x, work)
			work[j] = p[j] - h
			fm := prob.Model(x, work)
			jac.Set(i, j, (fp-fm)/(2*h))
		}
		work[j] = p[j]
	}
}

func project(prob Problem, p []float64) {
	for i := range p {
		if lo := lower(prob, i); p[i] < lo {
			p[i] = lo
		}
		if hi := upper(prob, i); p[i] > hi {
			p[i] = hi
		}
	}
}

func lower(prob Problem, i int) float64 {
	if prob.Lower == nil {
		return math.Inf(-1)
	}
	return prob.Lower[i]
}

func upper(prob Problem, i int) float64 {
	if prob.Upper == nil {
		return math.Inf(1)
	}
	return prob.Upper[i]
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
