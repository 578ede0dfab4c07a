// Package poolstest builds pool fixtures for tests.
package poolstest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/pools"
)

// Well-known token addresses used across tests.
var (
	DAI  = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	USDC = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	USDT = common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")
	WETH = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	BAL  = common.HexToAddress("0xba100000625a3754423978a60c9317c58a424e3d")
)

// Share returns a deterministic pool share token address.
func Share(n byte) common.Address {
	return common.BytesToAddress([]byte{0xb9, n})
}

// ID returns a deterministic pool id.
func ID(n byte) common.Hash {
	return common.BytesToHash([]byte{0x91, n})
}

// Units converts a human decimal string to raw units and panics on bad input.
func Units(s string, decimals uint8) *big.Int {
	v, err := pools.ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Reserve describes one pool token in human units.
type Reserve struct {
	Address  common.Address
	Balance  string
	Decimals uint8
	Weight   float64
}

func tokens(reserves []Reserve) []pools.Token {
	out := make([]pools.Token, len(reserves))
	for i, r := range reserves {
		out[i] = pools.Token{
			Address:  r.Address,
			Balance:  Units(r.Balance, r.Decimals),
			Decimals: r.Decimals,
			Weight:   r.Weight,
		}
	}
	return out
}

// Weighted builds a weighted pool with the given human total share supply.
func Weighted(n byte, fee float64, shares string, reserves ...Reserve) pools.Pool {
	return pools.Pool{
		ID:          ID(n),
		Address:     Share(n),
		Type:        pools.Weighted,
		SwapFee:     fee,
		TotalShares: Units(shares, pools.ShareDecimals),
		Tokens:      tokens(reserves),
	}
}

// Stable builds a stable pool.
func Stable(n byte, amp, fee float64, shares string, reserves ...Reserve) pools.Pool {
	return pools.Pool{
		ID:          ID(n),
		Address:     Share(n),
		Type:        pools.Stable,
		SwapFee:     fee,
		Amp:         amp,
		TotalShares: Units(shares, pools.ShareDecimals),
		Tokens:      tokens(reserves),
	}
}

// DaiUsdc is an equal-weight DAI/USDC pool holding balance of each token.
func DaiUsdc(n byte, balance string, fee float64) pools.Pool {
	return Weighted(n, fee, balance,
		Reserve{Address: DAI, Balance: balance, Decimals: 18, Weight: 0.5},
		Reserve{Address: USDC, Balance: balance, Decimals: 6, Weight: 0.5},
	)
}
