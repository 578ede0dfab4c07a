// Package tokenpoolregistry indexes which pools connect which tokens.
//
// Tokens are vertices and every pool contributes a directed edge between each
// ordered pair of its tokens, the pool share token included, so joins and
// exits are traversable like ordinary swaps. Edges carry the list of pools
// that offer them.
package tokenpoolregistry

import (
	"github.com/ethereum/go-ethereum/common"
)

const defaultCompactionThreshold = 1000

// Registry is the graph store. It is not safe for concurrent use; System wraps
// it for that.
type Registry struct {
	tokenToIndex map[common.Address]int
	poolToIndex  map[common.Hash]int

	tokens      []common.Address
	pools       []common.Hash
	adjacency   [][]int // token index -> outgoing edge indices
	edgeTargets []int   // edge index -> target token index
	edgePools   [][]int // edge index -> pool indices; empty means dangling

	danglingEdgeCount   int
	compactionThreshold int
}

// NewRegistry returns an empty registry. Dangling edges left by removals are
// physically dropped once more than compactionThreshold accumulate.
func NewRegistry(compactionThreshold int) *Registry {
	if compactionThreshold <= 0 {
		compactionThreshold = defaultCompactionThreshold
	}
	return &Registry{
		tokenToIndex:        make(map[common.Address]int),
		poolToIndex:         make(map[common.Hash]int),
		compactionThreshold: compactionThreshold,
	}
}

func (r *Registry) tokenIndex(token common.Address) int {
	i, ok := r.tokenToIndex[token]
	if !ok {
		i = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = i
		r.adjacency = append(r.adjacency, nil)
	}
	return i
}

func (r *Registry) poolIndex(pool common.Hash) int {
	i, ok := r.poolToIndex[pool]
	if !ok {
		i = len(r.pools)
		r.pools = append(r.pools, pool)
		r.poolToIndex[pool] = i
	}
	return i
}

func (r *Registry) addEdge(from, to, pool int) {
	for _, e := range r.adjacency[from] {
		if r.edgeTargets[e] != to {
			continue
		}
		for _, p := range r.edgePools[e] {
			if p == pool {
				return
			}
		}
		if len(r.edgePools[e]) == 0 {
			r.danglingEdgeCount--
		}
		r.edgePools[e] = append(r.edgePools[e], pool)
		return
	}
	e := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, to)
	r.edgePools = append(r.edgePools, []int{pool})
	r.adjacency[from] = append(r.adjacency[from], e)
}

// add connects every pair of tokens through pool.
func (r *Registry) add(pool common.Hash, tokens []common.Address) {
	p := r.poolIndex(pool)
	idx := make([]int, len(tokens))
	for i, t := range tokens {
		idx[i] = r.tokenIndex(t)
	}
	for i := range idx {
		for j := i + 1; j < len(idx); j++ {
			r.addEdge(idx[i], idx[j], p)
			r.addEdge(idx[j], idx[i], p)
		}
	}
}

// removePool detaches the pool from every edge.
func (r *Registry) removePool(pool common.Hash) {
	target, ok := r.poolToIndex[pool]
	if !ok {
		return
	}
	for e, list := range r.edgePools {
		if len(list) == 0 {
			continue
		}
		kept := list[:0]
		for _, p := range list {
			if p != target {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(list) {
			continue
		}
		r.edgePools[e] = kept
		if len(kept) == 0 {
			r.danglingEdgeCount++
		}
	}
	r.maybeCompact()
}

// removeToken clears every edge into or out of the token.
func (r *Registry) removeToken(token common.Address) {
	target, ok := r.tokenToIndex[token]
	if !ok {
		return
	}
	for _, e := range r.adjacency[target] {
		r.clearEdge(e)
	}
	for e, to := range r.edgeTargets {
		if to == target {
			r.clearEdge(e)
		}
	}
	r.maybeCompact()
}

func (r *Registry) clearEdge(e int) {
	if len(r.edgePools[e]) > 0 {
		r.edgePools[e] = nil
		r.danglingEdgeCount++
	}
}

func (r *Registry) maybeCompact() {
	if r.danglingEdgeCount > r.compactionThreshold {
		r.compact()
	}
}

// compact rebuilds the slices without dangling edges and without the tokens
// and pools that only they referenced.
func (r *Registry) compact() {
	if r.danglingEdgeCount == 0 {
		return
	}

	edgeRemap := make(map[int]int, len(r.edgeTargets)-r.danglingEdgeCount)
	var targets []int
	var edgePools [][]int
	for e, list := range r.edgePools {
		if len(list) == 0 {
			continue
		}
		edgeRemap[e] = len(targets)
		targets = append(targets, r.edgeTargets[e])
		edgePools = append(edgePools, list)
	}

	usedTokens := make(map[int]struct{})
	for _, to := range targets {
		usedTokens[to] = struct{}{}
	}
	for from, edges := range r.adjacency {
		for _, e := range edges {
			if _, live := edgeRemap[e]; live {
				usedTokens[from] = struct{}{}
				break
			}
		}
	}
	usedPools := make(map[int]struct{})
	for _, list := range edgePools {
		for _, p := range list {
			usedPools[p] = struct{}{}
		}
	}

	tokenRemap := make(map[int]int, len(usedTokens))
	tokens := make([]common.Address, 0, len(usedTokens))
	tokenToIndex := make(map[common.Address]int, len(usedTokens))
	for i, t := range r.tokens {
		if _, ok := usedTokens[i]; ok {
			tokenRemap[i] = len(tokens)
			tokenToIndex[t] = len(tokens)
			tokens = append(tokens, t)
		}
	}

	poolRemap := make(map[int]int, len(usedPools))
	pools := make([]common.Hash, 0, len(usedPools))
	poolToIndex := make(map[common.Hash]int, len(usedPools))
	for i, p := range r.pools {
		if _, ok := usedPools[i]; ok {
			poolRemap[i] = len(pools)
			poolToIndex[p] = len(pools)
			pools = append(pools, p)
		}
	}

	for i := range targets {
		targets[i] = tokenRemap[targets[i]]
	}
	for _, list := range edgePools {
		for j := range list {
			list[j] = poolRemap[list[j]]
		}
	}

	adjacency := make([][]int, len(tokens))
	for from, edges := range r.adjacency {
		to, ok := tokenRemap[from]
		if !ok {
			continue
		}
		live := make([]int, 0, len(edges))
		for _, e := range edges {
			if ne, ok := edgeRemap[e]; ok {
				live = append(live, ne)
			}
		}
		adjacency[to] = live
	}

	r.tokens, r.tokenToIndex = tokens, tokenToIndex
	r.pools, r.poolToIndex = pools, poolToIndex
	r.edgeTargets, r.edgePools, r.adjacency = targets, edgePools, adjacency
	r.danglingEdgeCount = 0
}

// view returns a deep copy of the graph.
func (r *Registry) view() *View {
	v := &View{
		Tokens:      append([]common.Address(nil), r.tokens...),
		Pools:       append([]common.Hash(nil), r.pools...),
		Adjacency:   make([][]int, len(r.adjacency)),
		EdgeTargets: append([]int(nil), r.edgeTargets...),
		EdgePools:   make([][]int, len(r.edgePools)),
	}
	for i, edges := range r.adjacency {
		v.Adjacency[i] = append([]int(nil), edges...)
	}
	for i, list := range r.edgePools {
		v.EdgePools[i] = append([]int(nil), list...)
	}
	v.index()
	return v
}
