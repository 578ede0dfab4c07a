package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/shopspring/decimal"
)

// poolSnapshot is the on-disk pool file. Balances, shares, fees and weights
// are human decimal strings.
type poolSnapshot struct {
	Pools []poolRecord `json:"pools"`
}

type poolRecord struct {
	ID          common.Hash    `json:"id"`
	Address     common.Address `json:"address"`
	Type        pools.PoolType `json:"type"`
	SwapFee     string         `json:"swapFee"`
	Amp         string         `json:"amp,omitempty"`
	TotalShares string         `json:"totalShares"`
	Tokens      []tokenRecord  `json:"tokens"`
}

type tokenRecord struct {
	Address  common.Address `json:"address"`
	Balance  string         `json:"balance"`
	Decimals uint8          `json:"decimals"`
	Weight   string         `json:"weight,omitempty"`
}

func loadPools(path string) ([]pools.Pool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools: %w", err)
	}
	var snap poolSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode pools %s: %w", path, err)
	}

	out := make([]pools.Pool, len(snap.Pools))
	for i, rec := range snap.Pools {
		p, err := rec.pool()
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", rec.ID.Hex(), err)
		}
		out[i] = p
	}
	return out, nil
}

func (r poolRecord) pool() (pools.Pool, error) {
	p := pools.Pool{ID: r.ID, Address: r.Address, Type: r.Type}
	var err error
	if p.SwapFee, err = parseFloat(r.SwapFee); err != nil {
		return p, fmt.Errorf("swap fee: %w", err)
	}
	if p.Amp, err = parseFloat(r.Amp); err != nil {
		return p, fmt.Errorf("amp: %w", err)
	}
	if p.TotalShares, err = pools.ParseUnits(r.TotalShares, pools.ShareDecimals); err != nil {
		return p, fmt.Errorf("total shares: %w", err)
	}
	for _, t := range r.Tokens {
		balance, err := pools.ParseUnits(t.Balance, t.Decimals)
		if err != nil {
			return p, fmt.Errorf("token %s: %w", t.Address.Hex(), err)
		}
		weight, err := parseFloat(t.Weight)
		if err != nil {
			return p, fmt.Errorf("token %s weight: %w", t.Address.Hex(), err)
		}
		p.Tokens = append(p.Tokens, pools.Token{Address: t.Address, Balance: balance, Decimals: t.Decimals, Weight: weight})
	}
	return p, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// tokenDecimals finds the decimals of token in any pool, share tokens included.
func tokenDecimals(records []pools.Pool, token common.Address) (uint8, error) {
	for i := range records {
		if d, err := records[i].Decimals(token); err == nil {
			return d, nil
		}
	}
	return 0, fmt.Errorf("token %s is not in any pool", token.Hex())
}
