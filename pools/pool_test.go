package pools_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/safedollar-finance/balancer-sor/pools/poolstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threePool() pools.Pool {
	return poolstest.Stable(2, 100, 0.0004, "3000000",
		poolstest.Reserve{Address: poolstest.DAI, Balance: "1000000", Decimals: 18},
		poolstest.Reserve{Address: poolstest.USDC, Balance: "1000000", Decimals: 6},
		poolstest.Reserve{Address: poolstest.USDT, Balance: "1000000", Decimals: 6},
	)
}

func TestPoolValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(p *pools.Pool)
		valid  bool
	}{
		{name: "valid weighted", mutate: func(p *pools.Pool) {}, valid: true},
		{name: "fee of one", mutate: func(p *pools.Pool) { p.SwapFee = 1 }},
		{name: "negative fee", mutate: func(p *pools.Pool) { p.SwapFee = -0.1 }},
		{name: "single token", mutate: func(p *pools.Pool) { p.Tokens = p.Tokens[:1] }},
		{name: "weights off", mutate: func(p *pools.Pool) { p.Tokens[0].Weight = 0.6 }},
		{name: "zero weight", mutate: func(p *pools.Pool) { p.Tokens[0].Weight = 0; p.Tokens[1].Weight = 1 }},
		{name: "duplicate token", mutate: func(p *pools.Pool) { p.Tokens[1].Address = p.Tokens[0].Address }},
		{name: "share listed as token", mutate: func(p *pools.Pool) { p.Tokens[0].Address = p.Address }},
		{name: "too many decimals", mutate: func(p *pools.Pool) { p.Tokens[0].Decimals = 19 }},
		{name: "nil balance", mutate: func(p *pools.Pool) { p.Tokens[0].Balance = nil }},
		{name: "negative shares", mutate: func(p *pools.Pool) { p.TotalShares = big.NewInt(-1) }},
		{name: "unknown type", mutate: func(p *pools.Pool) { p.Type = 9 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := poolstest.DaiUsdc(1, "1000", 0.003)
			tc.mutate(&p)
			err := p.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, pools.ErrInvalidPool)
		})
	}

	stable := threePool()
	require.NoError(t, stable.Validate())
	stable.Amp = 0.5
	assert.ErrorIs(t, stable.Validate(), pools.ErrInvalidPool)
}

func TestPoolPairType(t *testing.T) {
	p := poolstest.DaiUsdc(1, "1000", 0.003)

	testCases := []struct {
		name     string
		in, out  common.Address
		expected pools.PairType
		err      error
	}{
		{"token to token", poolstest.DAI, poolstest.USDC, pools.TokenToToken, nil},
		{"join", poolstest.USDC, p.Address, pools.TokenToShare, nil},
		{"exit", p.Address, poolstest.DAI, pools.ShareToToken, nil},
		{"foreign token", poolstest.WETH, poolstest.DAI, 0, pools.ErrTokenNotInPool},
		{"same token", poolstest.DAI, poolstest.DAI, 0, pools.ErrTokenNotInPool},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.PairType(tc.in, tc.out)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPoolTypeText(t *testing.T) {
	raw, err := json.Marshal(struct {
		Type pools.PoolType `json:"type"`
	}{pools.Stable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stable"}`, string(raw))

	var pt pools.PoolType
	require.NoError(t, pt.UnmarshalText([]byte("Weighted")))
	assert.Equal(t, pools.Weighted, pt)
	assert.ErrorIs(t, pt.UnmarshalText([]byte("uniswap")), pools.ErrInvalidPool)
}

func TestArenaCloneIsIndependent(t *testing.T) {
	records := []pools.Pool{poolstest.DaiUsdc(1, "1000", 0.003), threePool()}
	arena, err := pools.NewArena(records)
	require.NoError(t, err)
	require.Equal(t, 2, arena.Len())

	// The arena owns its copy of the records.
	records[0].Tokens[0].Balance.SetInt64(0)
	assert.NotZero(t, arena.At(0).Tokens[0].Balance.Sign())

	clone := arena.Clone()
	p, err := clone.Get(poolstest.ID(2))
	require.NoError(t, err)
	p.Tokens[1].Balance.SetInt64(42)
	p.TotalShares.SetInt64(7)

	orig, err := arena.Get(poolstest.ID(2))
	require.NoError(t, err)
	assert.Equal(t, poolstest.Units("1000000", 6), orig.Tokens[1].Balance)
	assert.Equal(t, poolstest.Units("3000000", 18), orig.TotalShares)

	_, err = arena.Get(poolstest.ID(3))
	assert.ErrorIs(t, err, pools.ErrUnknownPool)

	_, err = pools.NewArena([]pools.Pool{records[1], records[1]})
	assert.ErrorIs(t, err, pools.ErrDuplicatePool)

	assert.Equal(t, []common.Hash{poolstest.ID(1), poolstest.ID(2)}, arenaIDs(arena))
}

func TestNewPoolPairData(t *testing.T) {
	weighted := poolstest.Weighted(1, 0.01, "500",
		poolstest.Reserve{Address: poolstest.WETH, Balance: "100", Decimals: 18, Weight: 0.8},
		poolstest.Reserve{Address: poolstest.USDC, Balance: "50000", Decimals: 6, Weight: 0.2},
	)

	d, err := pools.NewPoolPairData(&weighted, 3, poolstest.WETH, poolstest.USDC)
	require.NoError(t, err)
	assert.Equal(t, 3, d.PoolIndex)
	assert.Equal(t, pools.TokenToToken, d.PairType)
	assert.Equal(t, 100.0, d.BalanceIn)
	assert.Equal(t, 50000.0, d.BalanceOut)
	assert.Equal(t, uint8(6), d.DecimalsOut)
	assert.Equal(t, 0.8, d.Weighted.WeightIn)
	assert.Equal(t, 0.2, d.Weighted.WeightOut)

	d, err = pools.NewPoolPairData(&weighted, 0, weighted.Address, poolstest.USDC)
	require.NoError(t, err)
	assert.Equal(t, pools.ShareToToken, d.PairType)
	assert.Equal(t, 500.0, d.BalanceIn)
	assert.Equal(t, uint8(18), d.DecimalsIn)

	stable := threePool()
	d, err = pools.NewPoolPairData(&stable, 1, poolstest.USDT, stable.Address)
	require.NoError(t, err)
	assert.Equal(t, pools.TokenToShare, d.PairType)
	assert.Equal(t, 2, d.Stable.IndexIn)
	assert.Equal(t, -1, d.Stable.IndexOut)
	assert.Equal(t, []float64{1e6, 1e6, 1e6}, d.Stable.Balances)
	assert.True(t, d.InvariantEstimate.Converged)
	assert.InDelta(t, 3e6, d.Stable.Invariant, 1e-6)

	_, err = pools.NewPoolPairData(&stable, 1, poolstest.WETH, poolstest.DAI)
	assert.ErrorIs(t, err, pools.ErrTokenNotInPool)
}

func TestUnits(t *testing.T) {
	testCases := []struct {
		in       string
		decimals uint8
		raw      string
		err      bool
	}{
		{"1", 6, "1000000", false},
		{"1250.5", 18, "1250500000000000000000", false},
		{"0.000001", 6, "1", false},
		{"0.0000001", 6, "", true},
		{"abc", 6, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			raw, err := pools.ParseUnits(tc.in, tc.decimals)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.raw, raw.String())
			assert.Equal(t, tc.in, pools.FormatUnits(raw, tc.decimals))
		})
	}

	raw, err := pools.FromFloat(1.9999999, 6)
	require.NoError(t, err)
	assert.Equal(t, "1999999", raw.String())
	assert.Equal(t, 1.5, pools.ToFloat(big.NewInt(1_500_000), 6))
}
