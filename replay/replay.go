// Package replay turns an allocation into settlement-ready swaps by executing
// every hop with the exact integer pool math on a private copy of the pools.
package replay

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/safedollar-finance/balancer-sor/allocator"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/pools"
)

// ErrInsufficientBalance is returned when a hop would take more from a pool
// than it holds.
var ErrInsufficientBalance = errors.New("insufficient pool balance")

// maxUint256 fills the slippage placeholders a settlement layer overwrites.
var maxUint256 = new(uint256.Int).SetAllOne().ToBig()

// Hop is one swap step. TokenInIndex and TokenOutIndex point into
// SwapInfo.TokenAddresses. Amount is the raw amount of the step's specified
// side: the input for exact-in, the output for exact-out.
type Hop struct {
	PoolID            common.Hash    `json:"poolId"`
	TokenIn           common.Address `json:"tokenIn"`
	TokenOut          common.Address `json:"tokenOut"`
	TokenInIndex      int            `json:"tokenInIndex"`
	TokenOutIndex     int            `json:"tokenOutIndex"`
	DecimalsIn        uint8          `json:"tokenInDecimals"`
	DecimalsOut       uint8          `json:"tokenOutDecimals"`
	Amount            *big.Int       `json:"amount"`
	LimitReturnAmount *big.Int       `json:"limitReturnAmount"`
	MaxPrice          *big.Int       `json:"maxPrice"`
	UserData          hexutil.Bytes  `json:"userData"`
}

// SwapInfo is the executable route. Swaps holds one group of hops per path.
type SwapInfo struct {
	TokenAddresses              []common.Address `json:"tokenAddresses"`
	Swaps                       [][]Hop          `json:"swaps"`
	SwapAmount                  *big.Int         `json:"swapAmount"`
	ReturnAmount                *big.Int         `json:"returnAmount"`
	ReturnAmountConsideringFees *big.Int         `json:"returnAmountConsideringFees"`
	MarketSp                    float64          `json:"marketSp"`
}

// Empty returns the route-not-found result.
func Empty() *SwapInfo {
	return &SwapInfo{
		TokenAddresses:              []common.Address{},
		Swaps:                       [][]Hop{},
		SwapAmount:                  new(big.Int),
		ReturnAmount:                new(big.Int),
		ReturnAmountConsideringFees: new(big.Int),
	}
}

// Request carries the query fields replay needs. Amount is the raw total of
// the specified token; CostPerPool is in human units of the return token.
type Request struct {
	SwapType    curve.SwapType
	Amount      *big.Int
	CostPerPool float64
}

// Execute replays res against a clone of arena. Pools reused by several paths
// see the balances left by earlier paths. The rounding dust between the
// requested total and the sum of truncated path amounts goes to the first
// path. arena itself is never modified.
func Execute(arena *pools.Arena, res *allocator.Result, req Request) (*SwapInfo, error) {
	if res == nil || res.Empty() || req.Amount == nil || req.Amount.Sign() <= 0 {
		return Empty(), nil
	}

	exactIn := req.SwapType == curve.ExactIn
	first := res.Paths[0]
	specDecimals, returnDecimals := first.Pairs[0].DecimalsIn, first.Pairs[len(first.Pairs)-1].DecimalsOut
	if !exactIn {
		specDecimals, returnDecimals = returnDecimals, specDecimals
	}

	raw := make([]*big.Int, len(res.Paths))
	assigned := new(big.Int)
	for i, amount := range res.Amounts {
		v, err := pools.FromFloat(max(amount, 0), specDecimals)
		if err != nil {
			return nil, fmt.Errorf("path %d: %w", i, err)
		}
		raw[i] = v
		assigned.Add(assigned, v)
	}
	dust := new(big.Int).Sub(req.Amount, assigned)
	raw[0].Add(raw[0], dust)
	if raw[0].Sign() < 0 {
		return nil, fmt.Errorf("dust %s exceeds the first path amount", dust)
	}

	info := Empty()
	info.SwapAmount = new(big.Int).Set(req.Amount)
	tokenIndex := make(map[common.Address]int)
	indexOf := func(token common.Address) int {
		if i, ok := tokenIndex[token]; ok {
			return i
		}
		tokenIndex[token] = len(info.TokenAddresses)
		info.TokenAddresses = append(info.TokenAddresses, token)
		return tokenIndex[token]
	}

	limitReturn := new(big.Int)
	if !exactIn {
		limitReturn = maxUint256
	}

	clone := arena.Clone()
	largest := 0
	for i, p := range res.Paths {
		if res.Amounts[i] > res.Amounts[largest] {
			largest = i
		}
		if raw[i].Sign() == 0 {
			continue
		}

		// Amounts are the specified side of each hop, so exact-out walks the
		// path backwards.
		amounts := make([]*big.Int, len(p.Hops))
		carry := raw[i]
		for k := range p.Hops {
			j := k
			if !exactIn {
				j = len(p.Hops) - 1 - k
			}
			h := p.Hops[j]
			amounts[j] = carry
			next, err := executeHop(clone, h.PoolIndex, h.TokenIn, h.TokenOut, req.SwapType, carry)
			if err != nil {
				return nil, fmt.Errorf("path %s hop %d: %w", p.ID, j, err)
			}
			carry = next
		}
		info.ReturnAmount.Add(info.ReturnAmount, carry)

		group := make([]Hop, len(p.Hops))
		for j, h := range p.Hops {
			group[j] = Hop{
				PoolID:            h.PoolID,
				TokenIn:           h.TokenIn,
				TokenOut:          h.TokenOut,
				TokenInIndex:      indexOf(h.TokenIn),
				TokenOutIndex:     indexOf(h.TokenOut),
				DecimalsIn:        p.Pairs[j].DecimalsIn,
				DecimalsOut:       p.Pairs[j].DecimalsOut,
				Amount:            amounts[j],
				LimitReturnAmount: new(big.Int).Set(limitReturn),
				MaxPrice:          new(big.Int).Set(maxUint256),
				UserData:          hexutil.Bytes{},
			}
		}
		info.Swaps = append(info.Swaps, group)
	}

	cost, err := pools.FromFloat(req.CostPerPool*float64(res.PoolCount()), returnDecimals)
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	if exactIn {
		info.ReturnAmountConsideringFees = new(big.Int).Sub(info.ReturnAmount, cost)
	} else {
		info.ReturnAmountConsideringFees = new(big.Int).Add(info.ReturnAmount, cost)
	}
	info.MarketSp = res.Paths[largest].SpotPriceAfterSwap(0)
	return info, nil
}
