package pools

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/numeric"
	stable "github.com/safedollar-finance/balancer-sor/protocols/stable/calculator"
	weighted "github.com/safedollar-finance/balancer-sor/protocols/weighted/calculator"
)

// PairType is the shape of a swap through one pool.
type PairType uint8

const (
	TokenToToken PairType = iota + 1
	// TokenToShare joins the pool with a single token.
	TokenToShare
	// ShareToToken exits the pool to a single token.
	ShareToToken
)

func (t PairType) String() string {
	switch t {
	case TokenToToken:
		return "tokenToToken"
	case TokenToShare:
		return "tokenToShare"
	case ShareToToken:
		return "shareToToken"
	default:
		return fmt.Sprintf("PairType(%d)", uint8(t))
	}
}

// PoolPairData is a pricing snapshot of one pool for one swap direction.
// Balances are normalized to human units. It is derived from the pool state
// at construction time and must be rebuilt after the pool's balances change.
type PoolPairData struct {
	PoolIndex   int
	PoolID      common.Hash
	PoolType    PoolType
	PairType    PairType
	TokenIn     common.Address
	TokenOut    common.Address
	DecimalsIn  uint8
	DecimalsOut uint8
	BalanceIn   float64
	BalanceOut  float64
	SwapFee     float64

	// Exactly one of Weighted and Stable is meaningful, selected by PoolType.
	Weighted weighted.Pair
	Stable   stable.Pair

	// InvariantEstimate records how the stable invariant solve went.
	InvariantEstimate numeric.Estimate
}

// NewPoolPairData derives the pricing snapshot for swapping tokenIn to tokenOut.
func NewPoolPairData(pool *Pool, poolIndex int, tokenIn, tokenOut common.Address) (*PoolPairData, error) {
	pairType, err := pool.PairType(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	d := &PoolPairData{
		PoolIndex: poolIndex,
		PoolID:    pool.ID,
		PoolType:  pool.Type,
		PairType:  pairType,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		SwapFee:   pool.SwapFee,
	}

	indexIn, indexOut := pool.TokenIndex(tokenIn), pool.TokenIndex(tokenOut)
	shares := ToFloat(pool.TotalShares, ShareDecimals)
	side := func(index int) (float64, uint8) {
		if index < 0 {
			return shares, ShareDecimals
		}
		t := pool.Tokens[index]
		return ToFloat(t.Balance, t.Decimals), t.Decimals
	}
	d.BalanceIn, d.DecimalsIn = side(indexIn)
	d.BalanceOut, d.DecimalsOut = side(indexOut)

	switch pool.Type {
	case Weighted:
		d.Weighted = weighted.Pair{
			BalanceIn:  d.BalanceIn,
			BalanceOut: d.BalanceOut,
			SwapFee:    pool.SwapFee,
		}
		if indexIn >= 0 {
			d.Weighted.WeightIn = pool.Tokens[indexIn].Weight
		}
		if indexOut >= 0 {
			d.Weighted.WeightOut = pool.Tokens[indexOut].Weight
		}
	case Stable:
		balances := make([]float64, len(pool.Tokens))
		for i, t := range pool.Tokens {
			balances[i] = ToFloat(t.Balance, t.Decimals)
		}
		d.InvariantEstimate = stable.Invariant(pool.Amp, balances)
		d.Stable = stable.Pair{
			Amp:         pool.Amp,
			SwapFee:     pool.SwapFee,
			Balances:    balances,
			IndexIn:     indexIn,
			IndexOut:    indexOut,
			TotalShares: shares,
			Invariant:   d.InvariantEstimate.Value,
		}
	default:
		return nil, fmt.Errorf("%w: pool %s has unknown type %d", ErrInvalidPool, pool.ID.Hex(), uint8(pool.Type))
	}
	return d, nil
}
