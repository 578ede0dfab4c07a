// Package discovery enumerates candidate routes between two tokens: every pool
// that trades the pair directly, and through each intermediate token the most
// liquid pool on either side.
package discovery

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/bitset"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/paths"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/safedollar-finance/balancer-sor/protocols/tokenpoolregistry"
)

// Discover returns hop lists from tokenIn to tokenOut. Two-hop routes are only
// considered when maxPools > 1. Tokens in disabled are treated as absent from
// the graph for this query.
func Discover(
	view *tokenpoolregistry.View,
	arena *pools.Arena,
	tokenIn, tokenOut common.Address,
	maxPools int,
	disabled map[common.Address]struct{},
) ([][]paths.Hop, error) {
	if tokenIn == tokenOut || isDisabled(disabled, tokenIn) || isDisabled(disabled, tokenOut) {
		return nil, nil
	}

	var routes [][]paths.Hop
	for _, id := range view.PoolsBetween(tokenIn, tokenOut) {
		idx, err := resolve(arena, id)
		if err != nil {
			return nil, err
		}
		routes = append(routes, []paths.Hop{{PoolIndex: idx, PoolID: id, TokenIn: tokenIn, TokenOut: tokenOut}})
	}
	if maxPools <= 1 {
		return routes, nil
	}

	// Pools that already hold both ends are direct routes, never a hop.
	holdsOut, err := membership(view, arena, tokenOut)
	if err != nil {
		return nil, err
	}
	holdsIn, err := membership(view, arena, tokenIn)
	if err != nil {
		return nil, err
	}

	for _, hop := range view.Neighbors(tokenIn) {
		if hop == tokenOut || isDisabled(disabled, hop) {
			continue
		}
		first, ok, err := mostLiquid(view, arena, tokenIn, hop, holdsOut)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		second, ok, err := mostLiquid(view, arena, hop, tokenOut, holdsIn)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		routes = append(routes, []paths.Hop{first, second})
	}
	return routes, nil
}

func isDisabled(disabled map[common.Address]struct{}, token common.Address) bool {
	_, ok := disabled[token]
	return ok
}

func resolve(arena *pools.Arena, id common.Hash) (int, error) {
	if idx, ok := arena.Index(id); ok {
		return idx, nil
	}
	_, err := arena.Get(id)
	return -1, err
}

// membership marks the arena positions of every pool holding token.
func membership(view *tokenpoolregistry.View, arena *pools.Arena, token common.Address) (bitset.BitSet, error) {
	set := bitset.NewBitSet(uint64(arena.Len()))
	for _, id := range view.PoolsForToken(token) {
		idx, err := resolve(arena, id)
		if err != nil {
			return nil, err
		}
		set.Set(uint64(idx))
	}
	return set, nil
}

// mostLiquid picks the pool between from and to with the highest normalized
// liquidity, skipping pools in exclude. Ties go to the later pool so a pool
// with zero liquidity still qualifies.
func mostLiquid(
	view *tokenpoolregistry.View,
	arena *pools.Arena,
	from, to common.Address,
	exclude bitset.BitSet,
) (paths.Hop, bool, error) {
	var (
		best    paths.Hop
		bestLiq float64
		found   bool
	)
	for _, id := range view.PoolsBetween(from, to) {
		idx, err := resolve(arena, id)
		if err != nil {
			return paths.Hop{}, false, err
		}
		if exclude.IsSet(uint64(idx)) {
			continue
		}
		pair, err := pools.NewPoolPairData(arena.At(idx), idx, from, to)
		if err != nil {
			return paths.Hop{}, false, err
		}
		if liq := curve.NormalizedLiquidity(pair); liq >= bestLiq {
			bestLiq = liq
			best = paths.Hop{PoolIndex: idx, PoolID: id, TokenIn: from, TokenOut: to}
			found = true
		}
	}
	return best, found, nil
}
