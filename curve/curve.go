// Package curve dispatches pricing over curve family and pair shape, and owns
// the boundary conventions every caller relies on: an infeasible exact-in
// trade prices at 0 and an infeasible exact-out trade prices at +Inf.
package curve

import (
	"fmt"
	"math"
	"strings"

	"github.com/safedollar-finance/balancer-sor/numeric"
	"github.com/safedollar-finance/balancer-sor/pools"
	stable "github.com/safedollar-finance/balancer-sor/protocols/stable/calculator"
	weighted "github.com/safedollar-finance/balancer-sor/protocols/weighted/calculator"
)

// Per-trade caps relative to pool balances. These are protocol constants.
const (
	MaxInRatio  = 0.3
	MaxOutRatio = 0.3
)

// SwapType is the direction in which the query amount is fixed.
type SwapType uint8

const (
	// ExactIn fixes the amount sold.
	ExactIn SwapType = iota + 1
	// ExactOut fixes the amount bought.
	ExactOut
)

func (s SwapType) String() string {
	switch s {
	case ExactIn:
		return "exactIn"
	case ExactOut:
		return "exactOut"
	default:
		return fmt.Sprintf("SwapType(%d)", uint8(s))
	}
}

func (s SwapType) MarshalText() ([]byte, error) {
	if s != ExactIn && s != ExactOut {
		return nil, fmt.Errorf("unknown swap type %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SwapType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "exactin", "swapexactin":
		*s = ExactIn
	case "exactout", "swapexactout":
		*s = ExactOut
	default:
		return fmt.Errorf("unknown swap type %q", string(text))
	}
	return nil
}

// infeasible applies the boundary policy and reports whether it decided the value.
func infeasible(p *pools.PoolPairData, st SwapType, amount float64) (float64, bool) {
	switch st {
	case ExactIn:
		if p.BalanceIn == 0 {
			return 0, true
		}
	case ExactOut:
		if p.BalanceOut == 0 {
			return 0, true
		}
		if amount >= p.BalanceOut {
			return math.Inf(1), true
		}
	}
	return 0, false
}

// sanitize maps numerically broken results onto the boundary convention.
func sanitize(st SwapType, v float64) float64 {
	if st == ExactIn && (math.IsNaN(v) || v < 0) {
		return 0
	}
	if st == ExactOut && math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// OutputAmount returns the amount of the other token: received for ExactIn,
// required for ExactOut.
func OutputAmount(p *pools.PoolPairData, st SwapType, amount float64) float64 {
	if v, ok := infeasible(p, st, amount); ok {
		return v
	}
	if amount == 0 {
		return 0
	}
	return sanitize(st, outputAmount(p, st, amount))
}

func outputAmount(p *pools.PoolPairData, st SwapType, amount float64) float64 {
	switch p.PoolType {
	case pools.Weighted:
		w := p.Weighted
		switch p.PairType {
		case pools.TokenToToken:
			if st == ExactIn {
				return weighted.ExactTokenInForTokenOut(amount, w)
			}
			return weighted.TokenInForExactTokenOut(amount, w)
		case pools.TokenToShare:
			if st == ExactIn {
				return weighted.ExactTokenInForBPTOut(amount, w)
			}
			return weighted.TokenInForExactBPTOut(amount, w)
		case pools.ShareToToken:
			if st == ExactIn {
				return weighted.ExactBPTInForTokenOut(amount, w)
			}
			return weighted.BPTInForExactTokenOut(amount, w)
		}
	case pools.Stable:
		s := p.Stable
		switch p.PairType {
		case pools.TokenToToken:
			if st == ExactIn {
				return stable.ExactTokenInForTokenOut(amount, s)
			}
			return stable.TokenInForExactTokenOut(amount, s)
		case pools.TokenToShare:
			if st == ExactIn {
				return stable.ExactTokenInForBPTOut(amount, s)
			}
			return stable.TokenInForExactBPTOut(amount, s)
		case pools.ShareToToken:
			if st == ExactIn {
				return stable.ExactBPTInForTokenOut(amount, s)
			}
			return stable.BPTInForExactTokenOut(amount, s)
		}
	}
	panic(fmt.Sprintf("curve: unsupported pool %s / pair %s", p.PoolType, p.PairType))
}

// SpotPriceAfterSwap returns the marginal price, tokenIn per tokenOut, after a
// trade of the given amount.
func SpotPriceAfterSwap(p *pools.PoolPairData, st SwapType, amount float64) float64 {
	if v, ok := infeasible(p, st, amount); ok {
		return v
	}
	return sanitize(st, spotPriceAfterSwap(p, st, amount))
}

func spotPriceAfterSwap(p *pools.PoolPairData, st SwapType, amount float64) float64 {
	switch p.PoolType {
	case pools.Weighted:
		w := p.Weighted
		switch p.PairType {
		case pools.TokenToToken:
			if st == ExactIn {
				return weighted.SpotPriceAfterSwapExactTokenInForTokenOut(amount, w)
			}
			return weighted.SpotPriceAfterSwapTokenInForExactTokenOut(amount, w)
		case pools.TokenToShare:
			if st == ExactIn {
				return weighted.SpotPriceAfterSwapExactTokenInForBPTOut(amount, w)
			}
			return weighted.SpotPriceAfterSwapTokenInForExactBPTOut(amount, w)
		case pools.ShareToToken:
			if st == ExactIn {
				return weighted.SpotPriceAfterSwapExactBPTInForTokenOut(amount, w)
			}
			return weighted.SpotPriceAfterSwapBPTInForExactTokenOut(amount, w)
		}
	case pools.Stable:
		s := p.Stable
		switch p.PairType {
		case pools.TokenToToken:
			if st == ExactIn {
				return stable.SpotPriceAfterSwapExactTokenInForTokenOut(amount, s)
			}
			return stable.SpotPriceAfterSwapTokenInForExactTokenOut(amount, s)
		case pools.TokenToShare:
			if st == ExactIn {
				return stable.SpotPriceAfterSwapExactTokenInForBPTOut(amount, s)
			}
			return stable.SpotPriceAfterSwapTokenInForExactBPTOut(amount, s)
		case pools.ShareToToken:
			if st == ExactIn {
				return stable.SpotPriceAfterSwapExactBPTInForTokenOut(amount, s)
			}
			return stable.SpotPriceAfterSwapBPTInForExactTokenOut(amount, s)
		}
	}
	panic(fmt.Sprintf("curve: unsupported pool %s / pair %s", p.PoolType, p.PairType))
}

// DerivativeSpotPriceAfterSwap returns d(SpotPriceAfterSwap)/d(amount). Weighted
// pools use closed forms; stable pools are differentiated numerically.
func DerivativeSpotPriceAfterSwap(p *pools.PoolPairData, st SwapType, amount float64) numeric.Estimate {
	if v, ok := infeasible(p, st, amount); ok {
		return numeric.Exact(v)
	}
	e := derivativeSpotPriceAfterSwap(p, st, amount)
	e.Value = sanitize(st, e.Value)
	return e
}

func derivativeSpotPriceAfterSwap(p *pools.PoolPairData, st SwapType, amount float64) numeric.Estimate {
	switch p.PoolType {
	case pools.Weighted:
		w := p.Weighted
		switch p.PairType {
		case pools.TokenToToken:
			if st == ExactIn {
				return numeric.Exact(weighted.DerivativeSpotPriceAfterSwapExactTokenInForTokenOut(amount, w))
			}
			return numeric.Exact(weighted.DerivativeSpotPriceAfterSwapTokenInForExactTokenOut(amount, w))
		case pools.TokenToShare:
			if st == ExactIn {
				return numeric.Exact(weighted.DerivativeSpotPriceAfterSwapExactTokenInForBPTOut(amount, w))
			}
			return numeric.Exact(weighted.DerivativeSpotPriceAfterSwapTokenInForExactBPTOut(amount, w))
		case pools.ShareToToken:
			if st == ExactIn {
				return numeric.Exact(weighted.DerivativeSpotPriceAfterSwapExactBPTInForTokenOut(amount, w))
			}
			return numeric.Exact(weighted.DerivativeSpotPriceAfterSwapBPTInForExactTokenOut(amount, w))
		}
	case pools.Stable:
		s := p.Stable
		switch p.PairType {
		case pools.TokenToToken:
			if st == ExactIn {
				return stable.DerivativeSpotPriceAfterSwapExactTokenInForTokenOut(amount, s)
			}
			return stable.DerivativeSpotPriceAfterSwapTokenInForExactTokenOut(amount, s)
		case pools.TokenToShare:
			if st == ExactIn {
				return stable.DerivativeSpotPriceAfterSwapExactTokenInForBPTOut(amount, s)
			}
			return stable.DerivativeSpotPriceAfterSwapTokenInForExactBPTOut(amount, s)
		case pools.ShareToToken:
			if st == ExactIn {
				return stable.DerivativeSpotPriceAfterSwapExactBPTInForTokenOut(amount, s)
			}
			return stable.DerivativeSpotPriceAfterSwapBPTInForExactTokenOut(amount, s)
		}
	}
	panic(fmt.Sprintf("curve: unsupported pool %s / pair %s", p.PoolType, p.PairType))
}

// LimitAmount is the largest amount a single pool accepts in this direction.
func LimitAmount(p *pools.PoolPairData, st SwapType) float64 {
	if st == ExactIn {
		return p.BalanceIn * MaxInRatio
	}
	return p.BalanceOut * MaxOutRatio
}

// NormalizedLiquidity ranks pools offering the same pair by depth, in units of tokenOut.
func NormalizedLiquidity(p *pools.PoolPairData) float64 {
	switch p.PoolType {
	case pools.Weighted:
		w := p.Weighted
		switch p.PairType {
		case pools.TokenToToken:
			return p.BalanceOut * w.WeightIn / (w.WeightIn + w.WeightOut)
		case pools.TokenToShare:
			return p.BalanceOut
		case pools.ShareToToken:
			return p.BalanceOut / (1 + w.WeightOut)
		}
	case pools.Stable:
		return p.BalanceOut * p.Stable.Amp
	}
	panic(fmt.Sprintf("curve: unsupported pool %s / pair %s", p.PoolType, p.PairType))
}
