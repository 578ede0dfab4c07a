package weighted

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/safedollar-finance/balancer-sor/fixedpoint"
)

// ErrInsufficientLiquidity is returned when an exact-out swap asks for the
// whole balance or more.
var ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")

// All exact functions take upscaled 18-decimal balances, weights and fees and
// round every step in favour of the pool.

// SwapGivenIn charges the swap fee on amountIn and returns the amount out.
func SwapGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn, swapFee *uint256.Int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	net := c.Sub(amountIn, c.MulUp(amountIn, swapFee))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return CalcOutGivenIn(balanceIn, weightIn, balanceOut, weightOut, net)
}

// SwapGivenOut returns the amount in, fee included, for an exact amount out.
func SwapGivenOut(balanceIn, weightIn, balanceOut, weightOut, amountOut, swapFee *uint256.Int) (*uint256.Int, error) {
	in, err := CalcInGivenOut(balanceIn, weightIn, balanceOut, weightOut, amountOut)
	if err != nil {
		return nil, err
	}
	return fixedpoint.DivUp(in, fixedpoint.Complement(swapFee))
}

func CalcOutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn *uint256.Int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	base := c.DivUp(balanceIn, c.Add(balanceIn, amountIn))
	exponent := c.DivDown(weightIn, weightOut)
	power := c.PowUp(base, exponent)
	out := c.MulDown(balanceOut, fixedpoint.Complement(power))
	return out, c.Err()
}

func CalcInGivenOut(balanceIn, weightIn, balanceOut, weightOut, amountOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.Cmp(balanceOut) >= 0 {
		return nil, fmt.Errorf("%w: amount out %s >= balance %s", ErrInsufficientLiquidity, amountOut.Dec(), balanceOut.Dec())
	}
	var c fixedpoint.Calc
	base := c.DivUp(balanceOut, c.Sub(balanceOut, amountOut))
	exponent := c.DivUp(weightOut, weightIn)
	power := c.PowUp(base, exponent)
	in := c.MulUp(balanceIn, c.Sub(power, fixedpoint.One))
	return in, c.Err()
}

// CalcBptOutGivenExactTokenIn returns the shares minted for a single-token join.
func CalcBptOutGivenExactTokenIn(balance, weight, amountIn, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	balanceRatioWithFee := c.DivDown(c.Add(balance, amountIn), balance)
	invariantRatioWithFees := c.Add(c.MulDown(balanceRatioWithFee, weight), fixedpoint.Complement(weight))

	amountInWithoutFee := amountIn
	if balanceRatioWithFee.Gt(invariantRatioWithFees) {
		nonTaxable := c.MulDown(balance, c.Sub(invariantRatioWithFees, fixedpoint.One))
		taxable := c.Sub(amountIn, nonTaxable)
		fee := c.MulUp(taxable, swapFee)
		amountInWithoutFee = c.Add(nonTaxable, c.Sub(taxable, fee))
	}

	balanceRatio := c.DivDown(c.Add(balance, amountInWithoutFee), balance)
	invariantRatio := c.PowDown(balanceRatio, weight)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if !invariantRatio.Gt(fixedpoint.One) {
		return new(uint256.Int), nil
	}
	out := c.MulDown(totalShares, c.Sub(invariantRatio, fixedpoint.One))
	return out, c.Err()
}

// CalcTokenInGivenExactBptOut returns the token amount needed to mint exactly bptOut shares.
func CalcTokenInGivenExactBptOut(balance, weight, bptOut, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	var c fixedpoint.Calc
	invariantRatio := c.DivUp(c.Add(totalShares, bptOut), totalShares)
	balanceRatio := c.PowUp(invariantRatio, c.DivUp(fixedpoint.One, weight))
	amountInWithoutFee := c.MulUp(balance, c.Sub(balanceRatio, fixedpoint.One))

	taxable := c.MulUp(amountInWithoutFee, fixedpoint.Complement(weight))
	nonTaxable := c.Sub(amountInWithoutFee, taxable)
	taxablePlusFee := c.DivUp(taxable, fixedpoint.Complement(swapFee))
	in := c.Add(nonTaxable, taxablePlusFee)
	return in, c.Err()
}

// CalcTokenOutGivenExactBptIn returns the tokens paid out for burning exactly bptIn shares.
func CalcTokenOutGivenExactBptIn(balance, weight, bptIn, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	if bptIn.Cmp(totalShares) > 0 {
		return nil, fmt.Errorf("%w: burning %s of %s shares", ErrInsufficientLiquidity, bptIn.Dec(), totalShares.Dec())
	}
	var c fixedpoint.Calc
	invariantRatio := c.DivUp(c.Sub(totalShares, bptIn), totalShares)
	balanceRatio := c.PowUp(invariantRatio, c.DivDown(fixedpoint.One, weight))
	amountOutWithoutFee := c.MulDown(balance, fixedpoint.Complement(balanceRatio))

	taxable := c.MulUp(amountOutWithoutFee, fixedpoint.Complement(weight))
	nonTaxable := c.Sub(amountOutWithoutFee, taxable)
	taxableMinusFee := c.MulDown(taxable, fixedpoint.Complement(swapFee))
	out := c.Add(nonTaxable, taxableMinusFee)
	return out, c.Err()
}

// CalcBptInGivenExactTokenOut returns the shares burned to withdraw exactly amountOut.
func CalcBptInGivenExactTokenOut(balance, weight, amountOut, totalShares, swapFee *uint256.Int) (*uint256.Int, error) {
	if amountOut.Cmp(balance) >= 0 {
		return nil, fmt.Errorf("%w: amount out %s >= balance %s", ErrInsufficientLiquidity, amountOut.Dec(), balance.Dec())
	}
	var c fixedpoint.Calc
	balanceRatioWithoutFee := c.DivUp(c.Sub(balance, amountOut), balance)
	invariantRatioWithoutFees := c.Add(c.MulUp(balanceRatioWithoutFee, weight), fixedpoint.Complement(weight))

	amountOutWithFee := amountOut
	if invariantRatioWithoutFees.Gt(balanceRatioWithoutFee) {
		nonTaxable := c.MulDown(balance, fixedpoint.Complement(invariantRatioWithoutFees))
		taxable := c.Sub(amountOut, nonTaxable)
		taxablePlusFee := c.DivUp(taxable, fixedpoint.Complement(swapFee))
		amountOutWithFee = c.Add(nonTaxable, taxablePlusFee)
	}

	balanceRatio := c.DivDown(c.Sub(balance, amountOutWithFee), balance)
	invariantRatio := c.PowDown(balanceRatio, weight)
	in := c.MulUp(totalShares, fixedpoint.Complement(invariantRatio))
	return in, c.Err()
}
