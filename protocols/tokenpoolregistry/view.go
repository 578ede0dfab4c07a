package tokenpoolregistry

import (
	"github.com/ethereum/go-ethereum/common"
)

// View is an immutable snapshot of the graph. Pools on an edge are listed in
// the order they were added.
type View struct {
	Tokens      []common.Address `json:"tokens"`
	Pools       []common.Hash    `json:"pools"`
	Adjacency   [][]int          `json:"adjacency"`
	EdgeTargets []int            `json:"edgeTargets"`
	EdgePools   [][]int          `json:"edgePools"`

	tokenToIndex map[common.Address]int
}

func (v *View) index() {
	v.tokenToIndex = make(map[common.Address]int, len(v.Tokens))
	for i, t := range v.Tokens {
		v.tokenToIndex[t] = i
	}
}

func (v *View) lookup(token common.Address) (int, bool) {
	i, ok := v.tokenToIndex[token]
	return i, ok
}

// clone returns a deep copy.
func (v *View) clone() *View {
	c := &View{
		Tokens:       append([]common.Address(nil), v.Tokens...),
		Pools:        append([]common.Hash(nil), v.Pools...),
		Adjacency:    make([][]int, len(v.Adjacency)),
		EdgeTargets:  append([]int(nil), v.EdgeTargets...),
		EdgePools:    make([][]int, len(v.EdgePools)),
		tokenToIndex: make(map[common.Address]int, len(v.tokenToIndex)),
	}
	for i, edges := range v.Adjacency {
		c.Adjacency[i] = append([]int(nil), edges...)
	}
	for i, list := range v.EdgePools {
		c.EdgePools[i] = append([]int(nil), list...)
	}
	for t, i := range v.tokenToIndex {
		c.tokenToIndex[t] = i
	}
	return c
}

// PoolsForToken returns every pool holding token, or nil.
func (v *View) PoolsForToken(token common.Address) []common.Hash {
	from, ok := v.lookup(token)
	if !ok {
		return nil
	}
	seen := make(map[int]struct{})
	var out []common.Hash
	for _, e := range v.Adjacency[from] {
		for _, p := range v.EdgePools[e] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, v.Pools[p])
		}
	}
	return out
}

// PoolsBetween returns the pools that swap tokenIn for tokenOut directly.
func (v *View) PoolsBetween(tokenIn, tokenOut common.Address) []common.Hash {
	from, ok := v.lookup(tokenIn)
	if !ok {
		return nil
	}
	to, ok := v.lookup(tokenOut)
	if !ok {
		return nil
	}
	for _, e := range v.Adjacency[from] {
		if v.EdgeTargets[e] != to {
			continue
		}
		out := make([]common.Hash, len(v.EdgePools[e]))
		for i, p := range v.EdgePools[e] {
			out[i] = v.Pools[p]
		}
		return out
	}
	return nil
}

// Neighbors returns the tokens reachable from token through one live edge.
func (v *View) Neighbors(token common.Address) []common.Address {
	from, ok := v.lookup(token)
	if !ok {
		return nil
	}
	var out []common.Address
	for _, e := range v.Adjacency[from] {
		if len(v.EdgePools[e]) > 0 {
			out = append(out, v.Tokens[v.EdgeTargets[e]])
		}
	}
	return out
}
