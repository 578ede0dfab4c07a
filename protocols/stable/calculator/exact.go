package stable

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/safedollar-finance/balancer-sor/fixedpoint"
	"github.com/safedollar-finance/balancer-sor/numeric"
)

var (
	// ErrInvariantDidNotConverge is returned when the exact invariant is still
	// moving by more than one unit after the iteration cap.
	ErrInvariantDidNotConverge = errors.New("stable invariant did not converge")
	// ErrInsufficientLiquidity is returned when an exact-out swap asks for the
	// whole balance or more.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrInvalidAmplification is returned when A·n^n is below one.
	ErrInvalidAmplification = errors.New("invalid amplification")
)

// The exact functions take upscaled 18-decimal balances and fees. ampNn is
// A·n^n in fixed point. Invariants and amounts in are rounded up, amounts out
// are rounded down.

// AmpTimesNn converts an amplification parameter to A·n^n in fixed point.
func AmpTimesNn(amp float64, n int) (*uint256.Int, error) {
	z, err := fixedpoint.FromFloat(ampTimesNn(amp, n))
	if err != nil {
		return nil, err
	}
	if z.Lt(fixedpoint.One) {
		return nil, fmt.Errorf("%w: A·n^n = %s", ErrInvalidAmplification, z.Dec())
	}
	return z, nil
}

func nPowN(n int) uint64 {
	r := uint64(1)
	for i := 0; i < n; i++ {
		r *= uint64(n)
	}
	return r
}

func cloneBalances(balances []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(balances))
	for i, b := range balances {
		out[i] = new(uint256.Int).Set(b)
	}
	return out
}

// CalcInvariant runs the same fixed-point iteration as Invariant on integers,
// stopping once two iterates are within one unit.
func CalcInvariant(ampNn *uint256.Int, balances []*uint256.Int, roundUp bool) (*uint256.Int, error) {
	if ampNn.Lt(fixedpoint.One) {
		return nil, ErrInvalidAmplification
	}
	n := uint64(len(balances))
	var c fixedpoint.Calc

	sum := new(uint256.Int)
	for _, b := range balances {
		sum = c.Add(sum, b)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	if sum.IsZero() {
		return sum, nil
	}

	annMinusOne := c.Sub(ampNn, fixedpoint.One)
	d := sum
	for i := 0; i < numeric.MaxIterations; i++ {
		pD := c.MulInt(balances[0], n)
		for _, b := range balances[1:] {
			pD = c.Div(c.MulInt(c.Mul(pD, b, roundUp), n), d, roundUp)
		}
		prev := d
		num := c.Add(c.MulInt(c.Mul(d, d, roundUp), n), c.Mul(c.Mul(ampNn, sum, roundUp), pD, roundUp))
		den := c.Add(c.MulInt(d, n+1), c.Mul(annMinusOne, pD, !roundUp))
		d = c.Div(num, den, roundUp)
		if err := c.Err(); err != nil {
			return nil, err
		}

		var delta uint256.Int
		if d.Gt(prev) {
			delta.Sub(d, prev)
		} else {
			delta.Sub(prev, d)
		}
		if delta.LtUint64(2) {
			return d, nil
		}
	}
	return nil, ErrInvariantDidNotConverge
}

// SolveBalanceExact is the integer form of SolveBalance; the result is rounded up.
func SolveBalanceExact(ampNn *uint256.Int, balances []*uint256.Int, invariant *uint256.Int, index int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	sum := new(uint256.Int)
	p := invariant
	for j, b := range balances {
		if j == index {
			continue
		}
		sum = c.Add(sum, b)
		p = c.DivUp(c.MulUp(p, invariant), b)
	}
	p = c.DivUp(c.MulUp(p, invariant), c.MulInt(ampNn, nPowN(len(balances))))
	b := c.Add(sum, c.DivDown(invariant, ampNn))
	if err := c.Err(); err != nil {
		return nil, err
	}

	var twiceY *uint256.Int
	if invariant.Cmp(b) >= 0 {
		t := c.Sub(invariant, b)
		twiceY = c.Add(t, c.SqrtUp(c.Add(c.MulUp(t, t), c.MulInt(p, 4))))
	} else {
		t := c.Sub(b, invariant)
		twiceY = c.Sub(c.SqrtUp(c.Add(c.MulUp(t, t), c.MulInt(p, 4))), t)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	y := twiceY.AddUint64(twiceY, 1)
	return y.Rsh(y, 1), nil
}

// SwapGivenIn charges the swap fee on amountIn and returns the amount out.
func SwapGivenIn(ampNn *uint256.Int, balances []*uint256.Int, indexIn, indexOut int, amountIn, swapFee *uint256.Int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	net := c.Sub(amountIn, c.MulUp(amountIn, swapFee))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return CalcOutGivenIn(ampNn, balances, indexIn, indexOut, net)
}

// SwapGivenOut returns the amount in, fee included, for an exact amount out.
func SwapGivenOut(ampNn *uint256.Int, balances []*uint256.Int, indexIn, indexOut int, amountOut, swapFee *uint256.Int) (*uint256.Int, error) {
	in, err := CalcInGivenOut(ampNn, balances, indexIn, indexOut, amountOut)
	if err != nil {
		return nil, err
	}
	return fixedpoint.DivUp(in, fixedpoint.Complement(swapFee))
}

func CalcOutGivenIn(ampNn *uint256.Int, balances []*uint256.Int, indexIn, indexOut int, amountIn *uint256.Int) (*uint256.Int, error) {
	invariant, err := CalcInvariant(ampNn, balances, true)
	if err != nil {
		return nil, err
	}
	next := cloneBalances(balances)
	if next[indexIn], err = fixedpoint.Add(next[indexIn], amountIn); err != nil {
		return nil, err
	}
	finalOut, err := SolveBalanceExact(ampNn, next, invariant, indexOut)
	if err != nil {
		return nil, err
	}
	finalOut.AddUint64(finalOut, 1)
	if finalOut.Cmp(balances[indexOut]) >= 0 {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(balances[indexOut], finalOut), nil
}

func CalcInGivenOut(ampNn *uint256.Int, balances []*uint256.Int, indexIn, indexOut int, amountOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.Cmp(balances[indexOut]) >= 0 {
		return nil, fmt.Errorf("%w: amount out %s >= balance %s", ErrInsufficientLiquidity, amountOut.Dec(), balances[indexOut].Dec())
	}
	invariant, err := CalcInvariant(ampNn, balances, true)
	if err != nil {
		return nil, err
	}
	next := cloneBalances(balances)
	next[indexOut].Sub(next[indexOut], amountOut)
	finalIn, err := SolveBalanceExact(ampNn, next, invariant, indexIn)
	if err != nil {
		return nil, err
	}
	if finalIn.Cmp(balances[indexIn]) <= 0 {
		return uint256.NewInt(1), nil
	}
	in := new(uint256.Int).Sub(finalIn, balances[indexIn])
	return in.AddUint64(in, 1), nil
}

func weightOf(balances []*uint256.Int, index int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	sum := new(uint256.Int)
	for _, b := range balances {
		sum = c.Add(sum, b)
	}
	w := c.DivDown(balances[index], sum)
	return w, c.Err()
}

// CalcBptOutGivenExactTokenIn returns the shares minted for a single-token join.
func CalcBptOutGivenExactTokenIn(ampNn *uint256.Int, balances []*uint256.Int, index int, amountIn, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	weight, err := weightOf(balances, index)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	bi := balances[index]
	ratioWithFee := c.DivDown(c.Add(bi, amountIn), bi)
	invariantRatioWithFees := c.Add(c.MulDown(ratioWithFee, weight), fixedpoint.Complement(weight))

	amountInWithoutFee := amountIn
	if ratioWithFee.Gt(invariantRatioWithFees) {
		nonTaxable := c.MulDown(bi, c.Sub(invariantRatioWithFees, fixedpoint.One))
		taxable := c.Sub(amountIn, nonTaxable)
		amountInWithoutFee = c.Add(nonTaxable, c.MulDown(taxable, fixedpoint.Complement(swapFee)))
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	next := cloneBalances(balances)
	next[index] = c.Add(next[index], amountInWithoutFee)
	current, err := CalcInvariant(ampNn, balances, true)
	if err != nil {
		return nil, err
	}
	updated, err := CalcInvariant(ampNn, next, false)
	if err != nil {
		return nil, err
	}
	ratio := c.DivDown(updated, current)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if !ratio.Gt(fixedpoint.One) {
		return new(uint256.Int), nil
	}
	out := c.MulDown(totalShares, c.Sub(ratio, fixedpoint.One))
	return out, c.Err()
}

// CalcTokenInGivenExactBptOut returns the token amount needed to mint exactly bptOut shares.
func CalcTokenInGivenExactBptOut(ampNn *uint256.Int, balances []*uint256.Int, index int, bptOut, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	current, err := CalcInvariant(ampNn, balances, true)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	target := c.MulUp(c.DivUp(c.Add(totalShares, bptOut), totalShares), current)
	if err := c.Err(); err != nil {
		return nil, err
	}
	newBalance, err := SolveBalanceExact(ampNn, balances, target, index)
	if err != nil {
		return nil, err
	}
	weight, err := weightOf(balances, index)
	if err != nil {
		return nil, err
	}

	withoutFee := c.Sub(newBalance, balances[index])
	taxable := c.MulUp(withoutFee, fixedpoint.Complement(weight))
	nonTaxable := c.Sub(withoutFee, taxable)
	in := c.Add(nonTaxable, c.DivUp(taxable, fixedpoint.Complement(swapFee)))
	return in, c.Err()
}

// CalcTokenOutGivenExactBptIn returns the tokens paid out for burning exactly bptIn shares.
func CalcTokenOutGivenExactBptIn(ampNn *uint256.Int, balances []*uint256.Int, index int, bptIn, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	if bptIn.Cmp(totalShares) >= 0 {
		return nil, fmt.Errorf("%w: burning %s of %s shares", ErrInsufficientLiquidity, bptIn.Dec(), totalShares.Dec())
	}
	current, err := CalcInvariant(ampNn, balances, true)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	target := c.MulUp(c.DivUp(c.Sub(totalShares, bptIn), totalShares), current)
	if err := c.Err(); err != nil {
		return nil, err
	}
	newBalance, err := SolveBalanceExact(ampNn, balances, target, index)
	if err != nil {
		return nil, err
	}
	weight, err := weightOf(balances, index)
	if err != nil {
		return nil, err
	}

	withoutFee := c.Sub(balances[index], newBalance)
	taxable := c.MulUp(withoutFee, fixedpoint.Complement(weight))
	nonTaxable := c.Sub(withoutFee, taxable)
	out := c.Add(nonTaxable, c.MulDown(taxable, fixedpoint.Complement(swapFee)))
	return out, c.Err()
}

// CalcBptInGivenExactTokenOut returns the shares burned to withdraw exactly amountOut.
func CalcBptInGivenExactTokenOut(ampNn *uint256.Int, balances []*uint256.Int, index int, amountOut, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	bo := balances[index]
	if amountOut.Cmp(bo) >= 0 {
		return nil, fmt.Errorf("%w: amount out %s >= balance %s", ErrInsufficientLiquidity, amountOut.Dec(), bo.Dec())
	}
	weight, err := weightOf(balances, index)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	ratioWithoutFee := c.DivUp(c.Sub(bo, amountOut), bo)
	invariantRatioWithoutFees := c.Add(c.MulUp(ratioWithoutFee, weight), fixedpoint.Complement(weight))

	amountOutWithFee := amountOut
	if invariantRatioWithoutFees.Gt(ratioWithoutFee) {
		nonTaxable := c.MulDown(bo, fixedpoint.Complement(invariantRatioWithoutFees))
		taxable := c.Sub(amountOut, nonTaxable)
		amountOutWithFee = c.Add(nonTaxable, c.DivUp(taxable, fixedpoint.Complement(swapFee)))
	}

	next := cloneBalances(balances)
	next[index] = c.Sub(next[index], amountOutWithFee)
	if err := c.Err(); err != nil {
		return nil, err
	}
	current, err := CalcInvariant(ampNn, balances, true)
	if err != nil {
		return nil, err
	}
	updated, err := CalcInvariant(ampNn, next, false)
	if err != nil {
		return nil, err
	}
	ratio := c.DivDown(updated, current)
	in := c.MulUp(totalShares, fixedpoint.Complement(ratio))
	return in, c.Err()
}
