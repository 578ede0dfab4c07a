// Package stable prices swaps against StableSwap-invariant pools.
//
// Balances are normalized (human units). The invariant D satisfies
//
//	A·n^n·S + D = A·n^n·D + D^(n+1) / (n^n·P)
//
// where S is the balance sum and P the balance product.
package stable

import (
	"math"
	"slices"

	"github.com/safedollar-finance/balancer-sor/numeric"
)

// invariantTolerance is the absolute change below which the invariant is final.
const invariantTolerance = 1e-18

// Noise levels used when differentiating the curve numerically.
const (
	priceNoise  = 1e-12
	amountNoise = 1e-13
	stepFloor   = 1e-9
)

// Pair is the stable-pool view of one (tokenIn, tokenOut) direction.
// IndexIn is -1 when the pool share token is sold, IndexOut is -1 when it is bought.
type Pair struct {
	Amp         float64
	SwapFee     float64
	Balances    []float64
	IndexIn     int
	IndexOut    int
	TotalShares float64
	Invariant   float64
}

func ampTimesNn(amp float64, n int) float64 {
	return amp * math.Pow(float64(n), float64(n))
}

// Invariant solves for D by fixed-point iteration seeded at the balance sum.
// It stops when two iterates differ by less than 1e-18, or by no more than the
// float64 resolution of D.
func Invariant(amp float64, balances []float64) numeric.Estimate {
	n := float64(len(balances))
	sum := 0.0
	for _, b := range balances {
		sum += b
	}
	if sum == 0 {
		return numeric.Exact(0)
	}

	ann := ampTimesNn(amp, len(balances))
	d := sum
	for i := 1; i <= numeric.MaxIterations; i++ {
		pD := balances[0] * n
		for _, b := range balances[1:] {
			pD = pD * b * n / d
		}
		prev := d
		d = (n*d*d + ann*sum*pD) / ((n+1)*d + (ann-1)*pD)

		delta := math.Abs(d - prev)
		if delta < invariantTolerance || delta <= 4*numeric.Epsilon*d {
			return numeric.Estimate{Value: d, Iterations: i, Converged: true}
		}
	}
	return numeric.Estimate{Value: d, Iterations: numeric.MaxIterations}
}

// SolveBalance returns the balance of token index that keeps the invariant at
// d given all other balances, as the positive root of
//
//	y² + (S' + D/(A·n^n) − D)·y − D^(n+1)/(A·n^(2n)·P') = 0
//
// where S' and P' range over the other balances.
func SolveBalance(amp float64, balances []float64, d float64, index int) float64 {
	n := len(balances)
	ann := ampTimesNn(amp, n)
	nn := math.Pow(float64(n), float64(n))

	sum := 0.0
	p := d
	for j, b := range balances {
		if j == index {
			continue
		}
		sum += b
		p = p * d / b
	}
	p = p * d / (ann * nn)

	t := d - (sum + d/ann)
	if t >= 0 {
		return (t + math.Sqrt(t*t+4*p)) / 2
	}
	// Rationalized form of (sqrt(t²+4p) - |t|) / 2, exact when 4p << t².
	t = -t
	return 2 * p / (math.Sqrt(t*t+4*p) + t)
}

// spotPrice is the marginal rate tokenIn per tokenOut at the given balances,
// from implicit differentiation of the invariant, with the fee charged on the input.
func spotPrice(p Pair, balances []float64) float64 {
	n := float64(len(balances))
	ann := ampTimesNn(p.Amp, len(balances))
	k := p.Invariant
	for _, b := range balances {
		k *= p.Invariant / (n * b)
	}
	return (ann + k/balances[p.IndexOut]) / ((1 - p.SwapFee) * (ann + k/balances[p.IndexIn]))
}

// --- token -> token ---

func ExactTokenInForTokenOut(amount float64, p Pair) float64 {
	balances := slices.Clone(p.Balances)
	balances[p.IndexIn] += amount * (1 - p.SwapFee)
	return p.Balances[p.IndexOut] - SolveBalance(p.Amp, balances, p.Invariant, p.IndexOut)
}

func TokenInForExactTokenOut(amount float64, p Pair) float64 {
	balances := slices.Clone(p.Balances)
	balances[p.IndexOut] -= amount
	in := SolveBalance(p.Amp, balances, p.Invariant, p.IndexIn) - p.Balances[p.IndexIn]
	return in / (1 - p.SwapFee)
}

func SpotPriceAfterSwapExactTokenInForTokenOut(amount float64, p Pair) float64 {
	balances := slices.Clone(p.Balances)
	balances[p.IndexIn] += amount * (1 - p.SwapFee)
	balances[p.IndexOut] = SolveBalance(p.Amp, balances, p.Invariant, p.IndexOut)
	return spotPrice(p, balances)
}

func SpotPriceAfterSwapTokenInForExactTokenOut(amount float64, p Pair) float64 {
	balances := slices.Clone(p.Balances)
	balances[p.IndexOut] -= amount
	balances[p.IndexIn] = SolveBalance(p.Amp, balances, p.Invariant, p.IndexIn)
	return spotPrice(p, balances)
}

func DerivativeSpotPriceAfterSwapExactTokenInForTokenOut(amount float64, p Pair) numeric.Estimate {
	f := func(a float64) float64 { return SpotPriceAfterSwapExactTokenInForTokenOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.Balances[p.IndexIn], priceNoise)
}

func DerivativeSpotPriceAfterSwapTokenInForExactTokenOut(amount float64, p Pair) numeric.Estimate {
	f := func(a float64) float64 { return SpotPriceAfterSwapTokenInForExactTokenOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.Balances[p.IndexOut], priceNoise)
}

// --- token -> pool share (join) ---
//
// Single-token joins and exits are charged the swap fee only on the part that
// is not proportional to the pool composition.

func totalBalance(balances []float64) float64 {
	s := 0.0
	for _, b := range balances {
		s += b
	}
	return s
}

func ExactTokenInForBPTOut(amount float64, p Pair) float64 {
	i := p.IndexIn
	bi := p.Balances[i]
	weight := bi / totalBalance(p.Balances)
	ratioWithFee := (bi + amount) / bi
	invariantRatioWithFees := ratioWithFee*weight + (1 - weight)

	amountWithoutFee := amount
	if ratioWithFee > invariantRatioWithFees {
		nonTaxable := bi * (invariantRatioWithFees - 1)
		amountWithoutFee = nonTaxable + (amount-nonTaxable)*(1-p.SwapFee)
	}

	balances := slices.Clone(p.Balances)
	balances[i] += amountWithoutFee
	ratio := Invariant(p.Amp, balances).Value / p.Invariant
	if ratio <= 1 {
		return 0
	}
	return p.TotalShares * (ratio - 1)
}

func TokenInForExactBPTOut(amount float64, p Pair) float64 {
	i := p.IndexIn
	newInvariant := (p.TotalShares + amount) / p.TotalShares * p.Invariant
	withoutFee := SolveBalance(p.Amp, p.Balances, newInvariant, i) - p.Balances[i]
	taxable := withoutFee * (1 - p.Balances[i]/totalBalance(p.Balances))
	return withoutFee - taxable + taxable/(1-p.SwapFee)
}

func SpotPriceAfterSwapExactTokenInForBPTOut(amount float64, p Pair) float64 {
	f := func(a float64) float64 { return ExactTokenInForBPTOut(a, p) }
	return 1 / numeric.SymmetricDerivative(f, amount, stepFloor*p.Balances[p.IndexIn], amountNoise).Value
}

func SpotPriceAfterSwapTokenInForExactBPTOut(amount float64, p Pair) float64 {
	f := func(a float64) float64 { return TokenInForExactBPTOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.TotalShares, amountNoise).Value
}

func DerivativeSpotPriceAfterSwapExactTokenInForBPTOut(amount float64, p Pair) numeric.Estimate {
	f := func(a float64) float64 { return SpotPriceAfterSwapExactTokenInForBPTOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.Balances[p.IndexIn], priceNoise)
}

func DerivativeSpotPriceAfterSwapTokenInForExactBPTOut(amount float64, p Pair) numeric.Estimate {
	f := func(a float64) float64 { return SpotPriceAfterSwapTokenInForExactBPTOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.TotalShares, priceNoise)
}

// --- pool share -> token (exit) ---

func ExactBPTInForTokenOut(amount float64, p Pair) float64 {
	i := p.IndexOut
	newInvariant := (p.TotalShares - amount) / p.TotalShares * p.Invariant
	withoutFee := p.Balances[i] - SolveBalance(p.Amp, p.Balances, newInvariant, i)
	taxable := withoutFee * (1 - p.Balances[i]/totalBalance(p.Balances))
	return withoutFee - taxable + taxable*(1-p.SwapFee)
}

func BPTInForExactTokenOut(amount float64, p Pair) float64 {
	i := p.IndexOut
	bo := p.Balances[i]
	weight := bo / totalBalance(p.Balances)
	ratioWithoutFee := (bo - amount) / bo
	invariantRatioWithoutFees := ratioWithoutFee*weight + (1 - weight)

	amountWithFee := amount
	if invariantRatioWithoutFees > ratioWithoutFee {
		nonTaxable := bo * (1 - invariantRatioWithoutFees)
		amountWithFee = nonTaxable + (amount-nonTaxable)/(1-p.SwapFee)
	}

	balances := slices.Clone(p.Balances)
	balances[i] -= amountWithFee
	ratio := Invariant(p.Amp, balances).Value / p.Invariant
	return p.TotalShares * (1 - ratio)
}

func SpotPriceAfterSwapExactBPTInForTokenOut(amount float64, p Pair) float64 {
	f := func(a float64) float64 { return ExactBPTInForTokenOut(a, p) }
	return 1 / numeric.SymmetricDerivative(f, amount, stepFloor*p.TotalShares, amountNoise).Value
}

func SpotPriceAfterSwapBPTInForExactTokenOut(amount float64, p Pair) float64 {
	f := func(a float64) float64 { return BPTInForExactTokenOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.Balances[p.IndexOut], amountNoise).Value
}

func DerivativeSpotPriceAfterSwapExactBPTInForTokenOut(amount float64, p Pair) numeric.Estimate {
	f := func(a float64) float64 { return SpotPriceAfterSwapExactBPTInForTokenOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.TotalShares, priceNoise)
}

func DerivativeSpotPriceAfterSwapBPTInForExactTokenOut(amount float64, p Pair) numeric.Estimate {
	f := func(a float64) float64 { return SpotPriceAfterSwapBPTInForExactTokenOut(a, p) }
	return numeric.SymmetricDerivative(f, amount, stepFloor*p.Balances[p.IndexOut], priceNoise)
}
