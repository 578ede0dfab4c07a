package pools

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ShareDecimals is the decimal count of every pool share token.
const ShareDecimals = 18

// MaxTokenDecimals is the largest token precision the exact math can upscale.
const MaxTokenDecimals = 18

var (
	// ErrInvalidPool is returned when a pool record violates its invariants.
	ErrInvalidPool = errors.New("invalid pool")
	// ErrTokenNotInPool is returned when a pair references a token the pool does not hold.
	ErrTokenNotInPool = errors.New("token not in pool")
	// ErrUnknownPool is returned when a pool id is not present in the arena.
	ErrUnknownPool = errors.New("unknown pool")
	// ErrDuplicatePool is returned when two records share the same id.
	ErrDuplicatePool = errors.New("duplicate pool")
)

// PoolType is the curve family of a pool.
type PoolType uint8

const (
	Weighted PoolType = iota + 1
	Stable
)

func (t PoolType) String() string {
	switch t {
	case Weighted:
		return "weighted"
	case Stable:
		return "stable"
	default:
		return fmt.Sprintf("PoolType(%d)", uint8(t))
	}
}

func (t PoolType) MarshalText() ([]byte, error) {
	if t != Weighted && t != Stable {
		return nil, fmt.Errorf("%w: unknown pool type %d", ErrInvalidPool, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *PoolType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "weighted":
		*t = Weighted
	case "stable":
		*t = Stable
	default:
		return fmt.Errorf("%w: unknown pool type %q", ErrInvalidPool, string(text))
	}
	return nil
}

// Token is one reserve of a pool. Balance is in raw ledger units.
type Token struct {
	Address  common.Address `json:"address"`
	Balance  *big.Int       `json:"balance"`
	Decimals uint8          `json:"decimals"`
	Weight   float64        `json:"weight,omitempty"`
}

// Pool is the tagged union over the supported curve families. Weights are only
// meaningful for Weighted pools and Amp only for Stable pools. The pool share
// token lives at Address and has TotalShares outstanding.
type Pool struct {
	ID          common.Hash    `json:"id"`
	Address     common.Address `json:"address"`
	Type        PoolType       `json:"type"`
	SwapFee     float64        `json:"swapFee"`
	Amp         float64        `json:"amp,omitempty"`
	TotalShares *big.Int       `json:"totalShares"`
	Tokens      []Token        `json:"tokens"`
}

// Validate checks the structural invariants of the pool.
func (p *Pool) Validate() error {
	if p.Type != Weighted && p.Type != Stable {
		return fmt.Errorf("%w: pool %s has unknown type %d", ErrInvalidPool, p.ID.Hex(), uint8(p.Type))
	}
	if math.IsNaN(p.SwapFee) || p.SwapFee < 0 || p.SwapFee >= 1 {
		return fmt.Errorf("%w: pool %s swap fee %g outside [0, 1)", ErrInvalidPool, p.ID.Hex(), p.SwapFee)
	}
	if len(p.Tokens) < 2 {
		return fmt.Errorf("%w: pool %s has %d tokens", ErrInvalidPool, p.ID.Hex(), len(p.Tokens))
	}
	if p.TotalShares == nil || p.TotalShares.Sign() < 0 {
		return fmt.Errorf("%w: pool %s has invalid total shares", ErrInvalidPool, p.ID.Hex())
	}

	seen := make(map[common.Address]struct{}, len(p.Tokens))
	weightSum := 0.0
	for _, t := range p.Tokens {
		if t.Address == p.Address {
			return fmt.Errorf("%w: pool %s lists its own share token", ErrInvalidPool, p.ID.Hex())
		}
		if _, dup := seen[t.Address]; dup {
			return fmt.Errorf("%w: pool %s lists token %s twice", ErrInvalidPool, p.ID.Hex(), t.Address.Hex())
		}
		seen[t.Address] = struct{}{}
		if t.Balance == nil || t.Balance.Sign() < 0 {
			return fmt.Errorf("%w: pool %s token %s has invalid balance", ErrInvalidPool, p.ID.Hex(), t.Address.Hex())
		}
		if t.Decimals > MaxTokenDecimals {
			return fmt.Errorf("%w: pool %s token %s has %d decimals", ErrInvalidPool, p.ID.Hex(), t.Address.Hex(), t.Decimals)
		}
		if p.Type == Weighted {
			if !(t.Weight > 0 && t.Weight < 1) {
				return fmt.Errorf("%w: pool %s token %s weight %g outside (0, 1)", ErrInvalidPool, p.ID.Hex(), t.Address.Hex(), t.Weight)
			}
			weightSum += t.Weight
		}
	}

	switch p.Type {
	case Weighted:
		if math.Abs(weightSum-1) > 1e-9 {
			return fmt.Errorf("%w: pool %s weights sum to %g", ErrInvalidPool, p.ID.Hex(), weightSum)
		}
	case Stable:
		if !(p.Amp >= 1) || math.IsInf(p.Amp, 0) {
			return fmt.Errorf("%w: pool %s amplification %g must be at least 1", ErrInvalidPool, p.ID.Hex(), p.Amp)
		}
	}
	return nil
}

// TokenIndex returns the position of a reserve token, or -1.
func (p *Pool) TokenIndex(token common.Address) int {
	for i := range p.Tokens {
		if p.Tokens[i].Address == token {
			return i
		}
	}
	return -1
}

// Contains reports whether token is a reserve token or the pool share token.
func (p *Pool) Contains(token common.Address) bool {
	return token == p.Address || p.TokenIndex(token) >= 0
}

// TokenAddresses returns the reserve tokens followed by the pool share token.
func (p *Pool) TokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(p.Tokens)+1)
	for _, t := range p.Tokens {
		out = append(out, t.Address)
	}
	return append(out, p.Address)
}

// Decimals returns the decimals of a reserve token or of the share token.
func (p *Pool) Decimals(token common.Address) (uint8, error) {
	if token == p.Address {
		return ShareDecimals, nil
	}
	i := p.TokenIndex(token)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s in pool %s", ErrTokenNotInPool, token.Hex(), p.ID.Hex())
	}
	return p.Tokens[i].Decimals, nil
}

// PairType classifies a swap through the pool.
func (p *Pool) PairType(tokenIn, tokenOut common.Address) (PairType, error) {
	if tokenIn == tokenOut {
		return 0, fmt.Errorf("%w: %s swapped for itself", ErrTokenNotInPool, tokenIn.Hex())
	}
	for _, token := range []common.Address{tokenIn, tokenOut} {
		if !p.Contains(token) {
			return 0, fmt.Errorf("%w: %s in pool %s", ErrTokenNotInPool, token.Hex(), p.ID.Hex())
		}
	}
	switch {
	case tokenIn == p.Address:
		return ShareToToken, nil
	case tokenOut == p.Address:
		return TokenToShare, nil
	default:
		return TokenToToken, nil
	}
}

// Clone returns a deep copy; balances of the copy can be mutated freely.
func (p *Pool) Clone() Pool {
	c := *p
	c.TotalShares = new(big.Int).Set(p.TotalShares)
	c.Tokens = make([]Token, len(p.Tokens))
	for i, t := range p.Tokens {
		c.Tokens[i] = t
		c.Tokens[i].Balance = new(big.Int).Set(t.Balance)
	}
	return c
}
