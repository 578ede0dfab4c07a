package router

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/safedollar-finance/balancer-sor/pools/poolstest"
	"github.com/safedollar-finance/balancer-sor/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, cfg Config, records ...pools.Pool) (*Router, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg.Registry = reg
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := New(&cfg)
	require.NoError(t, err)
	require.NoError(t, r.SetPools(records))
	return r, reg
}

func wethRoute() []pools.Pool {
	return []pools.Pool{
		poolstest.Weighted(10, 0.003, "1000",
			poolstest.Reserve{Address: poolstest.DAI, Balance: "2000000", Decimals: 18, Weight: 0.5},
			poolstest.Reserve{Address: poolstest.WETH, Balance: "1000", Decimals: 18, Weight: 0.5},
		),
		poolstest.Weighted(11, 0.003, "1000",
			poolstest.Reserve{Address: poolstest.WETH, Balance: "1000", Decimals: 18, Weight: 0.5},
			poolstest.Reserve{Address: poolstest.USDC, Balance: "2000000", Decimals: 6, Weight: 0.5},
		),
	}
}

func relDiff(want, got *big.Int) float64 {
	d := new(big.Float).SetInt(new(big.Int).Sub(want, got))
	r, _ := new(big.Float).Quo(d.Abs(d), new(big.Float).SetInt(want)).Float64()
	return r
}

func specifiedTotal(info *replay.SwapInfo, st curve.SwapType) *big.Int {
	sum := new(big.Int)
	for _, group := range info.Swaps {
		if st == curve.ExactIn {
			sum.Add(sum, group[0].Amount)
		} else {
			sum.Add(sum, group[len(group)-1].Amount)
		}
	}
	return sum
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestNewValidatesConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "NilRegistry", cfg: Config{Logger: logger}},
		{name: "NilLogger", cfg: Config{Registry: prometheus.NewRegistry()}},
		{name: "NegativeMaxPools", cfg: Config{Logger: logger, Registry: prometheus.NewRegistry(), MaxPools: -1}},
		{name: "NegativeWorkers", cfg: Config{Logger: logger, Registry: prometheus.NewRegistry(), Workers: -2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := New(&tc.cfg)
			assert.Error(t, err)
			assert.Nil(t, r)
		})
	}
}

func TestGetSwapsSplitsAcrossPools(t *testing.T) {
	testCases := []struct {
		name        string
		filterPaths bool
	}{
		{name: "Unfiltered"},
		{name: "Filtered", filterPaths: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, reg := newRouter(t, Config{FilterPaths: tc.filterPaths, Workers: 2},
				poolstest.DaiUsdc(1, "1000000", 0),
				poolstest.DaiUsdc(2, "500000", 0),
			)

			amount := poolstest.Units("100000", 18)
			info, err := r.GetSwaps(context.Background(), Query{
				TokenIn:  poolstest.DAI,
				TokenOut: poolstest.USDC,
				SwapType: curve.ExactIn,
				Amount:   amount,
			})
			require.NoError(t, err)
			require.Len(t, info.Swaps, 2)
			assert.Equal(t, amount.String(), specifiedTotal(info, curve.ExactIn).String())
			assert.Less(t, relDiff(poolstest.Units("93750", 6), info.ReturnAmount), 1e-6)
			assert.Equal(t, []common.Address{poolstest.DAI, poolstest.USDC}, info.TokenAddresses)

			assert.Equal(t, 1.0, metricValue(t, reg, "sor_queries_total", map[string]string{"outcome": outcomeRouted}))
			assert.Equal(t, 2.0, metricValue(t, reg, "sor_indexed_pools", nil))
			assert.Equal(t, 2.0, metricValue(t, reg, "sor_candidate_paths", nil))
		})
	}
}

func TestGetSwapsExactOut(t *testing.T) {
	r, _ := newRouter(t, Config{},
		poolstest.DaiUsdc(1, "1000000", 0),
		poolstest.DaiUsdc(2, "500000", 0),
	)

	amount := poolstest.Units("50000", 6)
	info, err := r.GetSwaps(context.Background(), Query{
		TokenIn:     poolstest.DAI,
		TokenOut:    poolstest.USDC,
		SwapType:    curve.ExactOut,
		Amount:      amount,
		CostPerPool: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, amount.String(), specifiedTotal(info, curve.ExactOut).String())
	assert.Less(t, relDiff(poolstest.Units("51724.137931", 18), info.ReturnAmount), 1e-6)

	// exact-out adds the cost of two pools in the return token
	fees := new(big.Int).Sub(info.ReturnAmountConsideringFees, info.ReturnAmount)
	assert.Equal(t, poolstest.Units("4", 18).String(), fees.String())
}

func TestGetSwapsTwoHop(t *testing.T) {
	r, _ := newRouter(t, Config{}, wethRoute()...)

	info, err := r.GetSwaps(context.Background(), Query{
		TokenIn:  poolstest.DAI,
		TokenOut: poolstest.USDC,
		SwapType: curve.ExactIn,
		Amount:   poolstest.Units("1000", 18),
	})
	require.NoError(t, err)
	require.Len(t, info.Swaps, 1)
	require.Len(t, info.Swaps[0], 2)
	assert.Equal(t, []common.Address{poolstest.DAI, poolstest.WETH, poolstest.USDC}, info.TokenAddresses)
	assert.Less(t, relDiff(poolstest.Units("994", 6), info.ReturnAmount), 0.01)
}

func TestGetSwapsEmpty(t *testing.T) {
	r, reg := newRouter(t, Config{},
		poolstest.DaiUsdc(1, "1000000", 0),
		poolstest.DaiUsdc(2, "500000", 0),
	)

	testCases := []struct {
		name  string
		query Query
	}{
		{
			name:  "ZeroAmount",
			query: Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: new(big.Int)},
		},
		{
			name:  "UnknownToken",
			query: Query{TokenIn: poolstest.DAI, TokenOut: poolstest.BAL, SwapType: curve.ExactIn, Amount: poolstest.Units("1", 18)},
		},
		{
			name:  "SameToken",
			query: Query{TokenIn: poolstest.DAI, TokenOut: poolstest.DAI, SwapType: curve.ExactIn, Amount: poolstest.Units("1", 18)},
		},
		{
			// limits are 300k and 150k
			name:  "AboveLiquidity",
			query: Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: poolstest.Units("500000", 18)},
		},
		{
			name: "DisabledInQuery",
			query: Query{
				TokenIn:        poolstest.DAI,
				TokenOut:       poolstest.USDC,
				SwapType:       curve.ExactIn,
				Amount:         poolstest.Units("1", 18),
				DisabledTokens: []common.Address{poolstest.USDC},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := r.GetSwaps(context.Background(), tc.query)
			require.NoError(t, err)
			assert.Empty(t, info.Swaps)
			assert.Zero(t, info.ReturnAmount.Sign())
		})
	}
	assert.Equal(t, float64(len(testCases)), metricValue(t, reg, "sor_queries_total", map[string]string{"outcome": outcomeNoRoute}))
}

func TestGetSwapsInvalidQuery(t *testing.T) {
	r, _ := newRouter(t, Config{}, poolstest.DaiUsdc(1, "1000000", 0))
	valid := Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: big.NewInt(1)}

	testCases := []struct {
		name   string
		mutate func(q *Query)
	}{
		{name: "NilAmount", mutate: func(q *Query) { q.Amount = nil }},
		{name: "NegativeAmount", mutate: func(q *Query) { q.Amount = big.NewInt(-1) }},
		{name: "UnknownSwapType", mutate: func(q *Query) { q.SwapType = 9 }},
		{name: "NegativeMaxPools", mutate: func(q *Query) { q.MaxPools = -1 }},
		{name: "NaNCost", mutate: func(q *Query) { q.CostPerPool = math.NaN() }},
		{name: "NegativeCost", mutate: func(q *Query) { q.CostPerPool = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := valid
			tc.mutate(&q)
			info, err := r.GetSwaps(context.Background(), q)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			assert.Nil(t, info)
		})
	}
}

func TestDisabledTokens(t *testing.T) {
	query := Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: poolstest.Units("1000", 18)}

	t.Run("DisableTokens", func(t *testing.T) {
		r, _ := newRouter(t, Config{}, wethRoute()...)
		info, err := r.GetSwaps(context.Background(), query)
		require.NoError(t, err)
		require.Len(t, info.Swaps, 1)

		r.DisableTokens(poolstest.WETH)
		info, err = r.GetSwaps(context.Background(), query)
		require.NoError(t, err)
		assert.Empty(t, info.Swaps)
	})

	t.Run("Config", func(t *testing.T) {
		r, _ := newRouter(t, Config{DisabledTokens: []common.Address{poolstest.WETH}}, wethRoute()...)
		info, err := r.GetSwaps(context.Background(), query)
		require.NoError(t, err)
		assert.Empty(t, info.Swaps)
	})

	t.Run("SurvivesPoolUpdate", func(t *testing.T) {
		r, _ := newRouter(t, Config{}, wethRoute()...)
		r.DisableTokens(poolstest.WETH)
		require.NoError(t, r.SetPools(append(wethRoute(), poolstest.DaiUsdc(1, "1000000", 0))))

		candidates, err := r.Candidates(context.Background(), query)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, poolstest.ID(1), candidates[0].Hops[0].PoolID)
	})
}

func TestSetPools(t *testing.T) {
	query := Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: poolstest.Units("1", 18)}
	r, _ := newRouter(t, Config{},
		poolstest.DaiUsdc(1, "1000000", 0),
		poolstest.DaiUsdc(2, "500000", 0),
	)

	ids := func() []common.Hash {
		candidates, err := r.Candidates(context.Background(), query)
		require.NoError(t, err)
		out := make([]common.Hash, len(candidates))
		for i, p := range candidates {
			out[i] = p.Hops[0].PoolID
		}
		return out
	}
	assert.Equal(t, []common.Hash{poolstest.ID(1), poolstest.ID(2)}, ids())

	t.Run("Incremental", func(t *testing.T) {
		require.NoError(t, r.SetPools([]pools.Pool{
			poolstest.DaiUsdc(2, "500000", 0),
			poolstest.DaiUsdc(3, "3000000", 0),
		}))
		assert.Equal(t, []common.Hash{poolstest.ID(3), poolstest.ID(2)}, ids())
	})

	t.Run("InvalidKeepsSnapshot", func(t *testing.T) {
		bad := poolstest.DaiUsdc(4, "1000", 0)
		bad.SwapFee = 1
		err := r.SetPools([]pools.Pool{bad})
		assert.ErrorIs(t, err, pools.ErrInvalidPool)
		assert.Equal(t, []common.Hash{poolstest.ID(3), poolstest.ID(2)}, ids())
	})

	t.Run("TokensChanged", func(t *testing.T) {
		moved := poolstest.Weighted(3, 0, "1000",
			poolstest.Reserve{Address: poolstest.DAI, Balance: "1000", Decimals: 18, Weight: 0.5},
			poolstest.Reserve{Address: poolstest.USDT, Balance: "1000", Decimals: 6, Weight: 0.5},
		)
		require.NoError(t, r.SetPools([]pools.Pool{poolstest.DaiUsdc(2, "500000", 0), moved}))
		assert.Equal(t, []common.Hash{poolstest.ID(2)}, ids())
	})
}

func TestGetSwapsCanceledContext(t *testing.T) {
	r, _ := newRouter(t, Config{}, poolstest.DaiUsdc(1, "1000000", 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetSwaps(ctx, Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: poolstest.Units("1", 18)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetSwapsConcurrentWithSetPools(t *testing.T) {
	small := []pools.Pool{poolstest.DaiUsdc(1, "1000000", 0)}
	large := []pools.Pool{poolstest.DaiUsdc(1, "1000000", 0), poolstest.DaiUsdc(2, "500000", 0)}
	r, _ := newRouter(t, Config{}, large...)

	amount := poolstest.Units("100000", 18)
	query := Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: amount}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				info, err := r.GetSwaps(context.Background(), query)
				if err != nil {
					errs <- err
					return
				}
				if specifiedTotal(info, curve.ExactIn).Cmp(amount) != 0 {
					errs <- assert.AnError
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		set := small
		if i%2 == 0 {
			set = large
		}
		require.NoError(t, r.SetPools(set))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestApplyDiff(t *testing.T) {
	query := Query{TokenIn: poolstest.DAI, TokenOut: poolstest.USDC, SwapType: curve.ExactIn, Amount: poolstest.Units("1", 18)}
	r, reg := newRouter(t, Config{}, poolstest.DaiUsdc(1, "1000000", 0))

	require.NoError(t, r.ApplyDiff(pools.Diff{
		Updates:   []pools.Pool{poolstest.DaiUsdc(1, "2000000", 0)},
		Additions: []pools.Pool{poolstest.DaiUsdc(2, "500000", 0)},
	}))
	candidates, err := r.Candidates(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.InDelta(t, 600000, candidates[0].Limit, 1e-6)
	assert.Equal(t, 2.0, metricValue(t, reg, "sor_indexed_pools", nil))

	require.NoError(t, r.ApplyDiff(pools.Diff{Deletions: []common.Hash{poolstest.ID(1)}}))
	candidates, err = r.Candidates(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, poolstest.ID(2), candidates[0].Hops[0].PoolID)

	err = r.ApplyDiff(pools.Diff{Updates: []pools.Pool{poolstest.DaiUsdc(7, "1", 0)}})
	assert.ErrorIs(t, err, pools.ErrUnknownPool)
	assert.NoError(t, r.ApplyDiff(pools.Diff{}))
}
