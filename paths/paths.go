// Package paths prices routes of one or two pools as a single curve.
package paths

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/numeric"
	"github.com/safedollar-finance/balancer-sor/pools"
)

// Infinitesimal is the amount below which effective price falls back to spot price.
const Infinitesimal = 1e-10

// ErrUnsupportedPathLength is returned for paths that are empty or longer than two hops.
var ErrUnsupportedPathLength = errors.New("unsupported path length")

// Hop is one pool traversal.
type Hop struct {
	PoolIndex int
	PoolID    common.Hash
	TokenIn   common.Address
	TokenOut  common.Address
}

// Path is a priced route. Pairs are derived from the arena the path was built
// against and stay valid only as long as that arena is not mutated.
type Path struct {
	ID       string
	Hops     []Hop
	Pairs    []*pools.PoolPairData
	Limit    float64
	SwapType curve.SwapType
}

// New resolves the pair data of every hop and computes the path limit.
func New(arena *pools.Arena, hops []Hop, swapType curve.SwapType) (*Path, error) {
	if len(hops) == 0 || len(hops) > 2 {
		return nil, fmt.Errorf("%w: %d hops", ErrUnsupportedPathLength, len(hops))
	}

	p := &Path{
		Hops:     slices.Clone(hops),
		Pairs:    make([]*pools.PoolPairData, len(hops)),
		SwapType: swapType,
	}
	var id strings.Builder
	for i, h := range hops {
		if i > 0 && hops[i-1].TokenOut != h.TokenIn {
			return nil, fmt.Errorf("hop %d starts at %s but previous hop ends at %s", i, h.TokenIn.Hex(), hops[i-1].TokenOut.Hex())
		}
		pair, err := pools.NewPoolPairData(arena.At(h.PoolIndex), h.PoolIndex, h.TokenIn, h.TokenOut)
		if err != nil {
			return nil, err
		}
		p.Pairs[i] = pair
		id.WriteString(h.PoolID.Hex())
	}
	p.ID = id.String()
	p.Limit = p.limit()
	return p, nil
}

func (p *Path) TokenIn() common.Address  { return p.Hops[0].TokenIn }
func (p *Path) TokenOut() common.Address { return p.Hops[len(p.Hops)-1].TokenOut }

// PoolCount is the number of pools the path trades through.
func (p *Path) PoolCount() int { return len(p.Hops) }

// limit returns the largest amount the path accepts. For two hops the tighter
// of the two pool limits binds, translated into the path's input amount.
func (p *Path) limit() float64 {
	st := p.SwapType
	if len(p.Pairs) == 1 {
		return curve.LimitAmount(p.Pairs[0], st)
	}

	first, second := p.Pairs[0], p.Pairs[1]
	limit1, limit2 := curve.LimitAmount(first, st), curve.LimitAmount(second, st)
	if st == curve.ExactIn {
		if curve.OutputAmount(first, st, limit1) > limit2 {
			if limit2 == 0 {
				return 0
			}
			return curve.OutputAmount(first, curve.ExactOut, limit2)
		}
		return limit1
	}
	if curve.OutputAmount(second, st, limit2) > limit1 {
		return curve.OutputAmount(second, curve.ExactIn, limit1)
	}
	return limit2
}

// sentinel is the value reported for infeasible amounts.
func (p *Path) sentinel() float64 {
	if p.SwapType == curve.ExactIn {
		return 0
	}
	return math.Inf(1)
}

// OutputAmount returns what the path yields (exact-in) or requires (exact-out)
// for amount. Amounts above the limit are infeasible.
func (p *Path) OutputAmount(amount float64) float64 {
	if amount > p.Limit {
		return p.sentinel()
	}
	st := p.SwapType
	if len(p.Pairs) == 1 {
		return curve.OutputAmount(p.Pairs[0], st, amount)
	}
	if st == curve.ExactIn {
		return curve.OutputAmount(p.Pairs[1], st, curve.OutputAmount(p.Pairs[0], st, amount))
	}
	return curve.OutputAmount(p.Pairs[0], st, curve.OutputAmount(p.Pairs[1], st, amount))
}

// SpotPriceAfterSwap returns the marginal price of the whole path, tokenIn per
// tokenOut, after a trade of amount.
func (p *Path) SpotPriceAfterSwap(amount float64) float64 {
	st := p.SwapType
	if len(p.Pairs) == 1 {
		return curve.SpotPriceAfterSwap(p.Pairs[0], st, amount)
	}
	first, second := p.Pairs[0], p.Pairs[1]
	if st == curve.ExactIn {
		out1 := curve.OutputAmount(first, st, amount)
		return curve.SpotPriceAfterSwap(first, st, amount) * curve.SpotPriceAfterSwap(second, st, out1)
	}
	in2 := curve.OutputAmount(second, st, amount)
	return curve.SpotPriceAfterSwap(first, st, in2) * curve.SpotPriceAfterSwap(second, st, amount)
}

// DerivativeSpotPriceAfterSwap differentiates SpotPriceAfterSwap by the chain
// rule. The slope of the first hop's output is 1/SPaS1 for exact-in and the
// slope of the second hop's input is SPaS2 for exact-out.
func (p *Path) DerivativeSpotPriceAfterSwap(amount float64) numeric.Estimate {
	st := p.SwapType
	if len(p.Pairs) == 1 {
		return curve.DerivativeSpotPriceAfterSwap(p.Pairs[0], st, amount)
	}

	first, second := p.Pairs[0], p.Pairs[1]
	if st == curve.ExactIn {
		out1 := curve.OutputAmount(first, st, amount)
		spas2 := curve.SpotPriceAfterSwap(second, st, out1)
		d1 := curve.DerivativeSpotPriceAfterSwap(first, st, amount)
		d2 := curve.DerivativeSpotPriceAfterSwap(second, st, out1)
		return combine(d1.Value*spas2+d2.Value, d1, d2)
	}
	in2 := curve.OutputAmount(second, st, amount)
	spas1 := curve.SpotPriceAfterSwap(first, st, in2)
	spas2 := curve.SpotPriceAfterSwap(second, st, amount)
	d1 := curve.DerivativeSpotPriceAfterSwap(first, st, in2)
	d2 := curve.DerivativeSpotPriceAfterSwap(second, st, amount)
	return combine(d2.Value*spas1+spas2*spas2*d1.Value, d1, d2)
}

func combine(v float64, a, b numeric.Estimate) numeric.Estimate {
	return numeric.Estimate{
		Value:      v,
		Iterations: max(a.Iterations, b.Iterations),
		Converged:  a.Converged && b.Converged,
	}
}

// EffectivePrice is the average price tokenIn per tokenOut of a trade of amount.
func (p *Path) EffectivePrice(amount float64) float64 {
	if amount < Infinitesimal {
		return p.SpotPriceAfterSwap(amount)
	}
	out := p.OutputAmount(amount)
	if p.SwapType == curve.ExactIn {
		return amount / out
	}
	return out / amount
}

// SortByLimit orders paths by descending limit, keeping discovery order for ties.
func SortByLimit(ps []*Path) {
	slices.SortStableFunc(ps, func(a, b *Path) int {
		switch {
		case a.Limit > b.Limit:
			return -1
		case a.Limit < b.Limit:
			return 1
		default:
			return 0
		}
	})
}

// TotalLimit sums the limits of all paths.
func TotalLimit(ps []*Path) float64 {
	total := 0.0
	for _, p := range ps {
		total += p.Limit
	}
	return total
}

// Filter prunes a limit-sorted path list for large pool sets. The maxPools
// highest-limit paths are always kept. Then, for a ladder of decreasing trade
// sizes, the maxPools paths with the best effective price at that size are added.
func Filter(ps []*Path, maxPools int) []*Path {
	const (
		samples     = 10
		sampleRatio = 100
	)

	keep := make(map[string]struct{}, len(ps))
	out := make([]*Path, 0, len(ps))
	add := func(p *Path) {
		if _, ok := keep[p.ID]; ok {
			return
		}
		keep[p.ID] = struct{}{}
		out = append(out, p)
	}
	for i := 0; i < maxPools && i < len(ps); i++ {
		add(ps[i])
	}

	type priced struct {
		path  *Path
		price float64
	}
	ranked := make([]priced, len(ps))
	amount := TotalLimit(ps) / sampleRatio
	for i := 0; i < samples && amount > Infinitesimal; i++ {
		for j, p := range ps {
			price := p.EffectivePrice(amount)
			if math.IsNaN(price) {
				price = math.Inf(1)
			}
			ranked[j] = priced{path: p, price: price}
		}
		slices.SortStableFunc(ranked, func(a, b priced) int {
			switch {
			case a.price < b.price:
				return -1
			case a.price > b.price:
				return 1
			default:
				return 0
			}
		})
		for j := 0; j < maxPools && j < len(ranked); j++ {
			add(ranked[j].path)
		}
		amount /= sampleRatio
	}
	return out
}
