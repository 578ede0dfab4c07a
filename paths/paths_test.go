package paths

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/safedollar-finance/balancer-sor/pools/poolstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture: DAI/USDC weighted, USDC/WETH weighted 50/50 and a DAI/USDC stable pool.
func fixture(t *testing.T) *pools.Arena {
	t.Helper()
	arena, err := pools.NewArena([]pools.Pool{
		poolstest.DaiUsdc(1, "1000000", 0.001),
		poolstest.Weighted(2, 0.003, "1000",
			poolstest.Reserve{Address: poolstest.USDC, Balance: "2000000", Decimals: 6, Weight: 0.5},
			poolstest.Reserve{Address: poolstest.WETH, Balance: "1000", Decimals: 18, Weight: 0.5},
		),
		poolstest.Stable(3, 200, 0.0004, "2000000",
			poolstest.Reserve{Address: poolstest.DAI, Balance: "1000000", Decimals: 18},
			poolstest.Reserve{Address: poolstest.USDC, Balance: "1000000", Decimals: 6},
		),
	})
	require.NoError(t, err)
	return arena
}

func hop(arena *pools.Arena, index int, in, out common.Address) Hop {
	return Hop{PoolIndex: index, PoolID: arena.At(index).ID, TokenIn: in, TokenOut: out}
}

func relDiff(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

func TestNewRejectsUnsupportedLengths(t *testing.T) {
	arena := fixture(t)
	h := hop(arena, 0, poolstest.DAI, poolstest.USDC)

	_, err := New(arena, nil, curve.ExactIn)
	assert.ErrorIs(t, err, ErrUnsupportedPathLength)

	_, err = New(arena, []Hop{h, h, h}, curve.ExactIn)
	assert.ErrorIs(t, err, ErrUnsupportedPathLength)

	_, err = New(arena, []Hop{h, hop(arena, 0, poolstest.WETH, poolstest.DAI)}, curve.ExactIn)
	assert.Error(t, err)
}

func TestSingleHopDelegates(t *testing.T) {
	arena := fixture(t)
	p, err := New(arena, []Hop{hop(arena, 0, poolstest.DAI, poolstest.USDC)}, curve.ExactIn)
	require.NoError(t, err)

	assert.Equal(t, arena.At(0).ID.Hex(), p.ID)
	assert.InDelta(t, 300_000, p.Limit, 1e-6)
	assert.Equal(t, curve.OutputAmount(p.Pairs[0], curve.ExactIn, 5_000), p.OutputAmount(5_000))
	assert.Equal(t, curve.SpotPriceAfterSwap(p.Pairs[0], curve.ExactIn, 5_000), p.SpotPriceAfterSwap(5_000))

	// Beyond the limit the path reports the infeasible sentinel.
	assert.Equal(t, 0.0, p.OutputAmount(300_001))
}

func TestTwoHopComposition(t *testing.T) {
	arena := fixture(t)
	hops := []Hop{
		hop(arena, 0, poolstest.DAI, poolstest.USDC),
		hop(arena, 1, poolstest.USDC, poolstest.WETH),
	}

	testCases := []struct {
		name     string
		swapType curve.SwapType
		amount   float64
	}{
		{"exact in", curve.ExactIn, 25_000},
		{"exact out", curve.ExactOut, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(arena, hops, tc.swapType)
			require.NoError(t, err)
			first, second := p.Pairs[0], p.Pairs[1]

			var want float64
			if tc.swapType == curve.ExactIn {
				want = curve.OutputAmount(second, tc.swapType, curve.OutputAmount(first, tc.swapType, tc.amount))
			} else {
				want = curve.OutputAmount(first, tc.swapType, curve.OutputAmount(second, tc.swapType, tc.amount))
			}
			assert.Equal(t, want, p.OutputAmount(tc.amount))

			// Spot price is the slope of the composed amount function.
			h := tc.amount * 1e-5
			slope := (p.OutputAmount(tc.amount+h) - p.OutputAmount(tc.amount-h)) / (2 * h)
			if tc.swapType == curve.ExactIn {
				slope = 1 / slope
			}
			assert.Less(t, relDiff(slope, p.SpotPriceAfterSwap(tc.amount)), 1e-6)

			// Chain rule derivative agrees with differentiating the spot price.
			dSpot := (p.SpotPriceAfterSwap(tc.amount+h) - p.SpotPriceAfterSwap(tc.amount-h)) / (2 * h)
			d := p.DerivativeSpotPriceAfterSwap(tc.amount)
			assert.True(t, d.Converged)
			assert.Less(t, relDiff(dSpot, d.Value), 1e-4)

			assert.Equal(t, 2, p.PoolCount())
			assert.Equal(t, poolstest.DAI, p.TokenIn())
			assert.Equal(t, poolstest.WETH, p.TokenOut())
		})
	}
}

func TestTwoHopLimit(t *testing.T) {
	arena := fixture(t)
	hops := []Hop{
		hop(arena, 0, poolstest.DAI, poolstest.USDC),
		hop(arena, 1, poolstest.USDC, poolstest.WETH),
	}

	// Exact in: the first hop caps DAI at 300k, which yields less USDC than
	// the second hop's 600k cap, so the first hop binds.
	in, err := New(arena, hops, curve.ExactIn)
	require.NoError(t, err)
	assert.InDelta(t, 300_000, in.Limit, 1e-6)

	// Exact out: the second hop caps WETH at 300 which needs ~857k USDC, more
	// than the first hop's 300k cap, so the first hop binds.
	out, err := New(arena, hops, curve.ExactOut)
	require.NoError(t, err)
	want := curve.OutputAmount(out.Pairs[1], curve.ExactIn, 300_000)
	assert.InDelta(t, want, out.Limit, 1e-9)
	assert.Less(t, out.Limit, 300.0)

	// Selling 300 WETH yields more USDC than the stable pool's 300k cap, so
	// the second hop binds and the limit is the WETH needed for 300k USDC.
	reversed := []Hop{
		hop(arena, 1, poolstest.WETH, poolstest.USDC),
		hop(arena, 2, poolstest.USDC, poolstest.DAI),
	}
	rp, err := New(arena, reversed, curve.ExactIn)
	require.NoError(t, err)
	assert.InDelta(t, curve.OutputAmount(rp.Pairs[0], curve.ExactOut, 300_000), rp.Limit, 1e-9)
	assert.Less(t, rp.Limit, 300.0)
}

func TestEffectivePrice(t *testing.T) {
	arena := fixture(t)
	p, err := New(arena, []Hop{hop(arena, 2, poolstest.DAI, poolstest.USDC)}, curve.ExactIn)
	require.NoError(t, err)

	assert.Equal(t, p.SpotPriceAfterSwap(0), p.EffectivePrice(0))
	assert.InDelta(t, 1/(1-0.0004), p.EffectivePrice(1e-12), 1e-6)
	assert.InDelta(t, 10_000/p.OutputAmount(10_000), p.EffectivePrice(10_000), 1e-12)

	// Effective price lies between the starting and the final spot price.
	assert.Greater(t, p.EffectivePrice(100_000), p.SpotPriceAfterSwap(0))
	assert.Less(t, p.EffectivePrice(100_000), p.SpotPriceAfterSwap(100_000))
}

func TestSortAndFilter(t *testing.T) {
	arena := fixture(t)
	direct, err := New(arena, []Hop{hop(arena, 0, poolstest.DAI, poolstest.USDC)}, curve.ExactIn)
	require.NoError(t, err)
	stable, err := New(arena, []Hop{hop(arena, 2, poolstest.DAI, poolstest.USDC)}, curve.ExactIn)
	require.NoError(t, err)
	small, err := pools.NewArena([]pools.Pool{poolstest.DaiUsdc(9, "10", 0.05)})
	require.NoError(t, err)
	tiny, err := New(small, []Hop{hop(small, 0, poolstest.DAI, poolstest.USDC)}, curve.ExactIn)
	require.NoError(t, err)

	ps := []*Path{tiny, direct, stable}
	SortByLimit(ps)
	assert.Equal(t, []*Path{direct, stable, tiny}, ps)
	assert.InDelta(t, 600_003, TotalLimit(ps), 1e-6)

	// The 5% fee pool is never among the best priced, and the stable pool
	// beats the weighted one at every sampled size.
	filtered := Filter(ps, 1)
	assert.Equal(t, []*Path{direct, stable}, filtered)

	assert.Len(t, Filter(ps, 3), 3)
}
