// Package allocator splits a trade across priced paths so that every path in
// use ends at the same marginal price.
//
// The search grows the number of paths b one at a time. For each b it seeds an
// amount vector, then alternates between assigning amounts to the cheapest
// paths and equalizing their spot prices after swap until the chosen path set
// repeats. A trial is kept while it improves the cost-adjusted return.
package allocator

import (
	"errors"
	"math"
	"slices"

	"github.com/safedollar-finance/balancer-sor/bitset"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/paths"
)

const (
	// MaxEqualizeIterations caps the price equalization passes of one selection.
	MaxEqualizeIterations = 255
	// PriceErrorTolerance is the relative spread of spot prices accepted as equal.
	PriceErrorTolerance = 1e-5
	// maxSelectionRounds caps select-then-equalize rounds when the path set keeps changing.
	maxSelectionRounds = 255
)

// ErrDegenerateAllocation is returned when no usable allocation exists for a
// trial: a derivative that is not a positive number, an amount no path can
// absorb, or a redistribution that cannot restore every amount to its limits.
var ErrDegenerateAllocation = errors.New("degenerate allocation")

// Params describes one optimization. Total is the amount of the specified
// token in human units; CostPerPool is the cost of trading through one pool
// in units of the return token.
type Params struct {
	SwapType    curve.SwapType
	Total       float64
	MaxPools    int
	CostPerPool float64
}

// Stats records how the search went.
type Stats struct {
	Trials                 int
	EqualizeIterations     int
	EqualizeNotConverged   int
	DerivativeNotConverged int
	DegenerateTrials       int
}

// Result is the best allocation found. Paths and Amounts are aligned.
type Result struct {
	Paths               []*paths.Path
	Amounts             []float64
	TotalReturn         float64
	TotalReturnWithCost float64
	Stats               Stats
}

// Empty reports whether no route was found.
func (r *Result) Empty() bool { return len(r.Paths) == 0 }

// PoolCount is the number of pools traded through.
func (r *Result) PoolCount() int {
	n := 0
	for _, p := range r.Paths {
		n += p.PoolCount()
	}
	return n
}

// Optimize finds the best split of params.Total across ps. It returns an empty
// result without error when there is nothing to trade or the paths cannot
// absorb the total. ErrDegenerateAllocation on the first trial is returned with
// an empty result; on later trials the best allocation so far is kept.
func Optimize(ps []*paths.Path, params Params) (*Result, error) {
	if len(ps) == 0 || params.Total <= 0 {
		return &Result{}, nil
	}
	maxPools := max(params.MaxPools, 1)

	candidates := slices.Clone(ps)
	paths.SortByLimit(candidates)

	highest := make([]float64, min(maxPools, len(candidates)))
	for i := range highest {
		highest[i] = candidates[i].Limit
	}

	var amounts []float64
	cumulative := 0.0
	for i, limit := range highest {
		cumulative += limit
		if params.Total > cumulative {
			continue
		}
		amounts = slices.Clone(highest[:i+1])
		amounts[i] -= cumulative - params.Total
		break
	}
	if amounts == nil {
		return &Result{}, nil
	}

	o := &optimizer{candidates: candidates, total: params.Total}
	best := &Result{}
	initial := len(amounts)
	for b := initial; b <= len(candidates); b++ {
		o.stats.Trials++
		if b != initial {
			amounts = seedNext(amounts, params.Total, highest[b-1])
		}

		selected, allocated, err := o.converge(amounts)
		if err != nil {
			o.stats.DegenerateTrials++
			if b == initial {
				return &Result{Stats: o.stats}, err
			}
			break
		}
		amounts = allocated

		totalReturn, poolCount := 0.0, 0
		for i, p := range selected {
			totalReturn += p.OutputAmount(allocated[i])
			poolCount += p.PoolCount()
		}
		cost := params.CostPerPool * float64(poolCount)

		var withCost float64
		var improved bool
		if params.SwapType == curve.ExactIn {
			withCost = totalReturn - cost
			improved = withCost > best.TotalReturnWithCost
		} else {
			withCost = totalReturn + cost
			improved = withCost < best.TotalReturnWithCost
		}
		if !improved && b != initial {
			break
		}
		best = &Result{
			Paths:               slices.Clone(selected),
			Amounts:             slices.Clone(allocated),
			TotalReturn:         totalReturn,
			TotalReturnWithCost: withCost,
		}

		if poolCount >= maxPools {
			break
		}
	}
	best.Stats = o.stats
	return best, nil
}

// seedNext shrinks the current amounts proportionally and appends a new one
// of total/b, capped by the limit of the next candidate.
func seedNext(amounts []float64, total, limit float64) []float64 {
	b := len(amounts) + 1
	next := min(total/float64(b), limit)
	scale := 1 - next/total
	out := make([]float64, 0, b)
	for _, a := range amounts {
		out = append(out, a*scale)
	}
	return append(out, next)
}

type optimizer struct {
	candidates []*paths.Path
	total      float64
	stats      Stats
}

// converge alternates path selection and price equalization until a selected
// path set repeats. The returned amounts are aligned with the returned paths.
func (o *optimizer) converge(amounts []float64) ([]*paths.Path, []float64, error) {
	selected, aligned, key, err := selectBestPaths(o.candidates, amounts)
	if err != nil {
		return nil, nil, err
	}
	if len(aligned) == 1 {
		return selected, aligned, nil
	}

	history := []bitset.BitSet{key}
	for round := 0; round < maxSelectionRounds; round++ {
		equalized, err := o.equalize(selected, aligned)
		if err != nil {
			return nil, nil, err
		}
		next, nextAligned, nextKey, err := selectBestPaths(o.candidates, equalized)
		if err != nil {
			return nil, nil, err
		}
		if slices.ContainsFunc(history, nextKey.Equal) {
			return selected, equalized, nil
		}
		history = append(history, nextKey)
		selected, aligned = next, nextAligned
	}
	return selected, aligned, nil
}

// selectBestPaths assigns amounts, largest first, to the unassigned candidate
// with the lowest effective price among those whose limit covers the amount.
// A candidate exactly at its limit is priced at +Inf. Ties go to the first
// candidate scanned. The key marks the chosen candidates.
func selectBestPaths(candidates []*paths.Path, amounts []float64) ([]*paths.Path, []float64, bitset.BitSet, error) {
	sorted := slices.Clone(amounts)
	slices.SortFunc(sorted, func(a, b float64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})

	used := bitset.NewBitSet(uint64(len(candidates)))
	selected := make([]*paths.Path, 0, len(sorted))
	for _, amount := range sorted {
		best, bestPrice := -1, math.Inf(1)
		for j, p := range candidates {
			if used.IsSet(uint64(j)) || p.Limit < amount {
				continue
			}
			price := math.Inf(1)
			if p.Limit != amount {
				price = p.EffectivePrice(amount)
				if math.IsNaN(price) {
					price = math.Inf(1)
				}
			}
			if best < 0 || price < bestPrice {
				best, bestPrice = j, price
			}
		}
		if best < 0 {
			return nil, nil, nil, ErrDegenerateAllocation
		}
		used.Set(uint64(best))
		selected = append(selected, candidates[best])
	}
	return selected, sorted, used, nil
}

// equalize moves amounts between the selected paths until their spot prices
// after swap agree within PriceErrorTolerance. Amounts sitting exactly at zero
// or at a path limit are nudged inside first so they can take part.
func (o *optimizer) equalize(selected []*paths.Path, amounts []float64) ([]float64, error) {
	n := len(selected)
	out := slices.Clone(amounts)
	limits := make([]float64, n)
	for i, p := range selected {
		limits[i] = p.Limit
	}

	eps := o.total * paths.Infinitesimal
	for i := range out {
		if out[i] <= 0 {
			out[i] = eps
		}
		if out[i] >= limits[i] {
			out[i] = max(limits[i]-eps, 0)
		}
	}

	viable := func(i int) bool { return out[i] > 0 && out[i] < limits[i] }
	spas := make([]float64, n)
	deriv := make([]float64, n)

	for iter := 0; iter < MaxEqualizeIterations; iter++ {
		o.stats.EqualizeIterations++

		sumInv, sumWeighted := 0.0, 0.0
		active := 0
		for i, p := range selected {
			spas[i], deriv[i] = math.NaN(), math.NaN()
			if !viable(i) {
				continue
			}
			s := p.SpotPriceAfterSwap(out[i])
			d := p.DerivativeSpotPriceAfterSwap(out[i])
			if !d.Converged {
				o.stats.DerivativeNotConverged++
			}
			if !(d.Value > 0) || math.IsInf(d.Value, 0) || math.IsNaN(s) || math.IsInf(s, 0) {
				return nil, ErrDegenerateAllocation
			}
			spas[i], deriv[i] = s, d.Value
			sumInv += 1 / d.Value
			sumWeighted += s / d.Value
			active++
		}
		if active == 0 {
			return out, nil
		}

		target := sumWeighted / sumInv
		for i := range out {
			if !math.IsNaN(deriv[i]) {
				out[i] += (target - spas[i]) / deriv[i]
			}
		}
		if err := redistribute(out, limits, deriv); err != nil {
			return nil, err
		}
		o.absorbRoundingError(out, viable)

		lo, hi := math.Inf(1), math.Inf(-1)
		for i, p := range selected {
			if !viable(i) {
				continue
			}
			s := p.SpotPriceAfterSwap(out[i])
			lo, hi = min(lo, s), max(hi, s)
		}
		if math.IsInf(lo, 1) || (hi-lo)/lo <= PriceErrorTolerance {
			return out, nil
		}
	}
	o.stats.EqualizeNotConverged++
	return out, nil
}

// absorbRoundingError puts the drift of the amount sum back on the first
// viable amount that stays viable.
func (o *optimizer) absorbRoundingError(out []float64, viable func(int) bool) {
	sum := 0.0
	for _, a := range out {
		sum += a
	}
	drift := o.total - sum
	for i := range out {
		if !viable(i) {
			continue
		}
		out[i] += drift
		if viable(i) {
			return
		}
		out[i] -= drift
	}
}

// redistribute clamps amounts below zero or above their limit and hands the
// clawed-back excess to the amounts still strictly inside, in proportion to
// 1/derivative. When nothing is inside, the excess goes to every amount with
// room on the side it needs, and evenly if none of them has a derivative.
func redistribute(out, limits, deriv []float64) error {
	violated := func() bool {
		for i := range out {
			if out[i] < 0 || out[i] > limits[i] {
				return true
			}
		}
		return false
	}
	weight := func(i int) float64 {
		if math.IsNaN(deriv[i]) {
			return 0
		}
		return 1 / deriv[i]
	}

	n := len(out)
	receives := make([]bool, n)
	for round := 0; violated(); round++ {
		if round > 2*n+2 {
			return ErrDegenerateAllocation
		}

		excess := 0.0
		for i := range out {
			switch {
			case out[i] < 0:
				excess += out[i]
				out[i] = 0
			case out[i] > limits[i]:
				excess += out[i] - limits[i]
				out[i] = limits[i]
			}
		}

		inside := false
		for i := range out {
			receives[i] = out[i] > 0 && out[i] < limits[i]
			inside = inside || receives[i]
		}
		if !inside {
			for i := range out {
				receives[i] = (excess > 0 && out[i] < limits[i]) || (excess < 0 && out[i] > 0)
			}
		}

		total, count := 0.0, 0
		for i := range out {
			if receives[i] {
				total += weight(i)
				count++
			}
		}
		if count == 0 {
			if excess != 0 {
				return ErrDegenerateAllocation
			}
			continue
		}
		for i := range out {
			if !receives[i] {
				continue
			}
			if total > 0 {
				out[i] += excess * weight(i) / total
			} else {
				out[i] += excess / float64(count)
			}
		}
	}
	return nil
}
