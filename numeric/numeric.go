// Package numeric holds the bounded iterative estimators shared by the curve math.
package numeric

import "math"

const (
	// MaxIterations caps every iterative solve in the router.
	MaxIterations = 255

	// DerivativeStepRatio is the initial finite-difference step as a fraction of the evaluation point.
	DerivativeStepRatio = 1e-4
	// DerivativeTolerance is the relative agreement required between consecutive estimates.
	DerivativeTolerance = 1e-10

	// Epsilon is the float64 machine epsilon.
	Epsilon = 2.220446049250313e-16
)

// Estimate is the result of a bounded iterative computation. Callers that
// only need the number read Value; Converged=false marks a best-effort value
// taken at the iteration cap or at the precision floor.
type Estimate struct {
	Value      float64
	Iterations int
	Converged  bool
}

// Exact wraps a closed-form value.
func Exact(v float64) Estimate {
	return Estimate{Value: v, Converged: true}
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SymmetricDerivative estimates f'(x) with central differences. The step
// starts at x*DerivativeStepRatio (never below minStep) and is halved until
// two consecutive estimates agree within DerivativeTolerance, or until their
// difference is within the rounding noise of f, which is relNoise*|f(x)| per
// evaluation. Near the lower domain bound (x-h < 0) a forward difference is used.
//
// If the estimates start diverging the previous one is returned unconverged.
// Converged is also false when a difference is not finite, when the step
// can no longer move x, or at MaxIterations; a non-finite first difference
// is returned as is. Agreement at the noise floor counts as converged.
func SymmetricDerivative(f func(float64) float64, x, minStep, relNoise float64) Estimate {
	h := x * DerivativeStepRatio
	if h < minStep {
		h = minStep
	}
	if h <= 0 || !IsFinite(h) {
		return Estimate{Value: math.NaN()}
	}
	if relNoise < Epsilon {
		relNoise = Epsilon
	}

	fx := f(x)
	diff := func(h float64) float64 {
		if x-h < 0 {
			return (f(x+h) - fx) / h
		}
		return (f(x+h) - f(x-h)) / (2 * h)
	}

	prev := diff(h)
	if !IsFinite(prev) {
		return Estimate{Value: prev, Iterations: 1}
	}

	noise := relNoise * math.Abs(fx)
	lastDelta := math.Inf(1)
	for i := 2; i <= MaxIterations; i++ {
		h /= 2
		if x+h == x {
			return Estimate{Value: prev, Iterations: i - 1}
		}
		cur := diff(h)
		if !IsFinite(cur) {
			return Estimate{Value: prev, Iterations: i}
		}

		delta := math.Abs(cur - prev)
		if delta <= DerivativeTolerance*math.Abs(cur) || delta <= noise/h {
			return Estimate{Value: cur, Iterations: i, Converged: true}
		}
		if delta > lastDelta {
			return Estimate{Value: prev, Iterations: i}
		}
		lastDelta = delta
		prev = cur
	}
	return Estimate{Value: prev, Iterations: MaxIterations}
}
