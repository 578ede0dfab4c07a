package replay

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/fixedpoint"
	"github.com/safedollar-finance/balancer-sor/pools"
	stable "github.com/safedollar-finance/balancer-sor/protocols/stable/calculator"
	weighted "github.com/safedollar-finance/balancer-sor/protocols/weighted/calculator"
)

// state is a pool upscaled to 18-decimal fixed point for one trade.
type state struct {
	pool     *pools.Pool
	balances []*uint256.Int
	shares   *uint256.Int
	fee      *uint256.Int
}

func load(pool *pools.Pool) (*state, error) {
	s := &state{pool: pool, balances: make([]*uint256.Int, len(pool.Tokens))}
	var err error
	for i, t := range pool.Tokens {
		if s.balances[i], err = fixedpoint.Upscale(t.Balance, t.Decimals); err != nil {
			return nil, err
		}
	}
	if s.shares, err = fixedpoint.Upscale(pool.TotalShares, pools.ShareDecimals); err != nil {
		return nil, err
	}
	if s.fee, err = fixedpoint.FromFloat(pool.SwapFee); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *state) weight(i int) (*uint256.Int, error) {
	return fixedpoint.FromFloat(s.pool.Tokens[i].Weight)
}

func (s *state) ampNn() (*uint256.Int, error) {
	return stable.AmpTimesNn(s.pool.Amp, len(s.balances))
}

// side identifies one end of a trade: a reserve by index or the share token.
type side struct {
	index int
	share bool
}

func (s *state) sideOf(token common.Address) side {
	if token == s.pool.Address {
		return side{share: true}
	}
	return side{index: s.pool.TokenIndex(token)}
}

func (s *state) decimals(token side) uint8 {
	if token.share {
		return pools.ShareDecimals
	}
	return s.pool.Tokens[token.index].Decimals
}

// executeHop trades amount (raw units of the specified side) through the pool
// at poolIndex, updates its balances in place and returns the raw amount of
// the other side. Amounts out are rounded down and amounts in up.
func executeHop(arena *pools.Arena, poolIndex int, tokenIn, tokenOut common.Address, st curve.SwapType, amount *big.Int) (*big.Int, error) {
	pool := arena.At(poolIndex)
	pairType, err := pool.PairType(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	s, err := load(pool)
	if err != nil {
		return nil, err
	}
	in, out := s.sideOf(tokenIn), s.sideOf(tokenOut)

	var given *uint256.Int
	if st == curve.ExactIn {
		given, err = fixedpoint.Upscale(amount, s.decimals(in))
	} else {
		given, err = fixedpoint.Upscale(amount, s.decimals(out))
	}
	if err != nil {
		return nil, err
	}

	result, err := s.calc(pairType, in, out, st, given)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.ID.Hex(), err)
	}

	var amountIn, amountOut, other *big.Int
	if st == curve.ExactIn {
		amountIn = amount
		amountOut = fixedpoint.DownscaleDown(result, s.decimals(out))
		other = amountOut
	} else {
		amountIn = fixedpoint.DownscaleUp(result, s.decimals(in))
		amountOut = amount
		other = amountIn
	}
	if err := s.apply(in, out, amountIn, amountOut); err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.ID.Hex(), err)
	}
	return other, nil
}

func (s *state) calc(pairType pools.PairType, in, out side, st curve.SwapType, given *uint256.Int) (*uint256.Int, error) {
	switch s.pool.Type {
	case pools.Weighted:
		return s.weightedCalc(pairType, in, out, st, given)
	case pools.Stable:
		return s.stableCalc(pairType, in, out, st, given)
	}
	return nil, fmt.Errorf("%w: unknown pool type %d", pools.ErrInvalidPool, s.pool.Type)
}

func (s *state) weightedCalc(pairType pools.PairType, in, out side, st curve.SwapType, given *uint256.Int) (*uint256.Int, error) {
	exactIn := st == curve.ExactIn
	switch pairType {
	case pools.TokenToToken:
		wIn, err := s.weight(in.index)
		if err != nil {
			return nil, err
		}
		wOut, err := s.weight(out.index)
		if err != nil {
			return nil, err
		}
		bIn, bOut := s.balances[in.index], s.balances[out.index]
		if exactIn {
			return weighted.SwapGivenIn(bIn, wIn, bOut, wOut, given, s.fee)
		}
		return weighted.SwapGivenOut(bIn, wIn, bOut, wOut, given, s.fee)
	case pools.TokenToShare:
		w, err := s.weight(in.index)
		if err != nil {
			return nil, err
		}
		if exactIn {
			return weighted.CalcBptOutGivenExactTokenIn(s.balances[in.index], w, given, s.shares, s.fee)
		}
		return weighted.CalcTokenInGivenExactBptOut(s.balances[in.index], w, given, s.shares, s.fee)
	default:
		w, err := s.weight(out.index)
		if err != nil {
			return nil, err
		}
		if exactIn {
			return weighted.CalcTokenOutGivenExactBptIn(s.balances[out.index], w, given, s.shares, s.fee)
		}
		return weighted.CalcBptInGivenExactTokenOut(s.balances[out.index], w, given, s.shares, s.fee)
	}
}

func (s *state) stableCalc(pairType pools.PairType, in, out side, st curve.SwapType, given *uint256.Int) (*uint256.Int, error) {
	ampNn, err := s.ampNn()
	if err != nil {
		return nil, err
	}
	exactIn := st == curve.ExactIn
	switch pairType {
	case pools.TokenToToken:
		if exactIn {
			return stable.SwapGivenIn(ampNn, s.balances, in.index, out.index, given, s.fee)
		}
		return stable.SwapGivenOut(ampNn, s.balances, in.index, out.index, given, s.fee)
	case pools.TokenToShare:
		if exactIn {
			return stable.CalcBptOutGivenExactTokenIn(ampNn, s.balances, in.index, given, s.shares, s.fee)
		}
		return stable.CalcTokenInGivenExactBptOut(ampNn, s.balances, in.index, given, s.shares, s.fee)
	default:
		if exactIn {
			return stable.CalcTokenOutGivenExactBptIn(ampNn, s.balances, out.index, given, s.shares, s.fee)
		}
		return stable.CalcBptInGivenExactTokenOut(ampNn, s.balances, out.index, given, s.shares, s.fee)
	}
}

// apply moves raw amounts into and out of the pool. Joining mints shares and
// exiting burns them.
func (s *state) apply(in, out side, amountIn, amountOut *big.Int) error {
	if in.share && s.pool.TotalShares.Cmp(amountIn) < 0 {
		return fmt.Errorf("%w: burning %s of %s shares", ErrInsufficientBalance, amountIn, s.pool.TotalShares)
	}
	if !out.share {
		if bal := s.pool.Tokens[out.index].Balance; bal.Cmp(amountOut) < 0 {
			return fmt.Errorf("%w: %s out of %s", ErrInsufficientBalance, amountOut, bal)
		}
	}

	if in.share {
		s.pool.TotalShares.Sub(s.pool.TotalShares, amountIn)
	} else {
		bal := s.pool.Tokens[in.index].Balance
		bal.Add(bal, amountIn)
	}
	if out.share {
		s.pool.TotalShares.Add(s.pool.TotalShares, amountOut)
	} else {
		bal := s.pool.Tokens[out.index].Balance
		bal.Sub(bal, amountOut)
	}
	return nil
}
