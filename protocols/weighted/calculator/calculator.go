// Package weighted prices swaps against constant-weighted-product pools.
//
// The float functions work on normalized (human unit) balances and back the
// route search. The exact functions in exact.go settle the chosen route.
package weighted

import "math"

// Pair is the weighted-pool view of one (tokenIn, tokenOut) direction.
// For joins BalanceOut is the share supply and WeightOut is unused; for exits
// BalanceIn is the share supply and WeightIn is unused.
type Pair struct {
	BalanceIn  float64
	BalanceOut float64
	WeightIn   float64
	WeightOut  float64
	SwapFee    float64
}

// --- token -> token ---

// ExactTokenInForTokenOut returns the amount out for an exact amount in.
func ExactTokenInForTokenOut(amount float64, p Pair) float64 {
	ai := amount * (1 - p.SwapFee)
	return p.BalanceOut * (1 - math.Pow(p.BalanceIn/(p.BalanceIn+ai), p.WeightIn/p.WeightOut))
}

// TokenInForExactTokenOut returns the amount in needed for an exact amount out.
func TokenInForExactTokenOut(amount float64, p Pair) float64 {
	ratio := math.Pow(p.BalanceOut/(p.BalanceOut-amount), p.WeightOut/p.WeightIn)
	return p.BalanceIn * (ratio - 1) / (1 - p.SwapFee)
}

func SpotPriceAfterSwapExactTokenInForTokenOut(amount float64, p Pair) float64 {
	g := 1 - p.SwapFee
	r := p.WeightIn / p.WeightOut
	bi := p.BalanceIn + g*amount
	return bi / (p.BalanceOut * r * g) * math.Pow(bi/p.BalanceIn, r)
}

func SpotPriceAfterSwapTokenInForExactTokenOut(amount float64, p Pair) float64 {
	g := 1 - p.SwapFee
	s := p.WeightOut / p.WeightIn
	return p.BalanceIn * s / (g * p.BalanceOut) * math.Pow(p.BalanceOut/(p.BalanceOut-amount), s+1)
}

func DerivativeSpotPriceAfterSwapExactTokenInForTokenOut(amount float64, p Pair) float64 {
	g := 1 - p.SwapFee
	r := p.WeightIn / p.WeightOut
	return (r + 1) / (p.BalanceOut * r) * math.Pow((p.BalanceIn+g*amount)/p.BalanceIn, r)
}

func DerivativeSpotPriceAfterSwapTokenInForExactTokenOut(amount float64, p Pair) float64 {
	g := 1 - p.SwapFee
	s := p.WeightOut / p.WeightIn
	bo := p.BalanceOut
	return p.BalanceIn * s * (s + 1) / (g * bo * bo) * math.Pow(bo/(bo-amount), s+2)
}

// --- token -> pool share (join) ---
//
// Only the part of a single-token join that exceeds the proportional share,
// (1 - weight) of the amount, pays the swap fee.

func joinFeeFactor(p Pair) float64 {
	return 1 - p.SwapFee*(1-p.WeightIn)
}

// taxedFactor is the fraction of an exact-out amount left once the fee is
// grossed up on its taxable part: 1 / (w + (1-w)/(1-f)).
func taxedFactor(weight, fee float64) float64 {
	return 1 / (weight + (1-weight)/(1-fee))
}

func ExactTokenInForBPTOut(amount float64, p Pair) float64 {
	g := joinFeeFactor(p)
	return p.BalanceOut * (math.Pow(1+g*amount/p.BalanceIn, p.WeightIn) - 1)
}

func TokenInForExactBPTOut(amount float64, p Pair) float64 {
	g := taxedFactor(p.WeightIn, p.SwapFee)
	return p.BalanceIn * (math.Pow(1+amount/p.BalanceOut, 1/p.WeightIn) - 1) / g
}

func SpotPriceAfterSwapExactTokenInForBPTOut(amount float64, p Pair) float64 {
	g := joinFeeFactor(p)
	w := p.WeightIn
	return p.BalanceIn / (p.BalanceOut * w * g) * math.Pow(1+g*amount/p.BalanceIn, 1-w)
}

func SpotPriceAfterSwapTokenInForExactBPTOut(amount float64, p Pair) float64 {
	g := taxedFactor(p.WeightIn, p.SwapFee)
	w := p.WeightIn
	return p.BalanceIn / (p.BalanceOut * w * g) * math.Pow(1+amount/p.BalanceOut, 1/w-1)
}

func DerivativeSpotPriceAfterSwapExactTokenInForBPTOut(amount float64, p Pair) float64 {
	g := joinFeeFactor(p)
	w := p.WeightIn
	return (1 - w) / (p.BalanceOut * w) * math.Pow(1+g*amount/p.BalanceIn, -w)
}

func DerivativeSpotPriceAfterSwapTokenInForExactBPTOut(amount float64, p Pair) float64 {
	g := taxedFactor(p.WeightIn, p.SwapFee)
	w := p.WeightIn
	s := p.BalanceOut
	return p.BalanceIn * (1/w - 1) / (s * s * w * g) * math.Pow(1+amount/s, 1/w-2)
}

// --- pool share -> token (exit) ---

func exitFeeFactor(p Pair) float64 {
	return 1 - p.SwapFee*(1-p.WeightOut)
}

func exitTaxedFactor(p Pair) float64 {
	return taxedFactor(p.WeightOut, p.SwapFee)
}

func ExactBPTInForTokenOut(amount float64, p Pair) float64 {
	g := exitFeeFactor(p)
	return p.BalanceOut * g * (1 - math.Pow(1-amount/p.BalanceIn, 1/p.WeightOut))
}

func BPTInForExactTokenOut(amount float64, p Pair) float64 {
	g := exitTaxedFactor(p)
	return p.BalanceIn * (1 - math.Pow(1-amount/(p.BalanceOut*g), p.WeightOut))
}

func SpotPriceAfterSwapExactBPTInForTokenOut(amount float64, p Pair) float64 {
	g := exitFeeFactor(p)
	w := p.WeightOut
	return p.BalanceIn * w / (p.BalanceOut * g) * math.Pow(1-amount/p.BalanceIn, 1-1/w)
}

func SpotPriceAfterSwapBPTInForExactTokenOut(amount float64, p Pair) float64 {
	g := exitTaxedFactor(p)
	w := p.WeightOut
	return p.BalanceIn * w / (p.BalanceOut * g) * math.Pow(1-amount/(p.BalanceOut*g), w-1)
}

func DerivativeSpotPriceAfterSwapExactBPTInForTokenOut(amount float64, p Pair) float64 {
	g := exitFeeFactor(p)
	w := p.WeightOut
	return (1 - w) / (p.BalanceOut * g) * math.Pow(1-amount/p.BalanceIn, -1/w)
}

func DerivativeSpotPriceAfterSwapBPTInForExactTokenOut(amount float64, p Pair) float64 {
	g := exitTaxedFactor(p)
	w := p.WeightOut
	bo := p.BalanceOut * g
	return p.BalanceIn * w * (1 - w) / (bo * bo) * math.Pow(1-amount/bo, w-2)
}
