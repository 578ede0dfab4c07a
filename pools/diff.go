package pools

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Diff is the change set that turns one pool set into another. A pool whose
// token set changed appears in both Deletions and Additions.
type Diff struct {
	// Additions are pools that are new or changed tokens.
	Additions []Pool `json:"additions,omitempty"`
	// Updates are known pools with new balances, fees or parameters.
	Updates []Pool `json:"updates,omitempty"`
	// Deletions are ids of pools that were removed.
	Deletions []common.Hash `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two arenas (old -> new). Output
// follows arena order.
func Differ(old, new *Arena) Diff {
	var d Diff
	for i := range old.pools {
		prev := &old.pools[i]
		next, err := new.Get(prev.ID)
		if err != nil || !slices.Equal(prev.TokenAddresses(), next.TokenAddresses()) {
			d.Deletions = append(d.Deletions, prev.ID)
		}
	}
	for i := range new.pools {
		next := &new.pools[i]
		prev, err := old.Get(next.ID)
		switch {
		case err != nil || !slices.Equal(prev.TokenAddresses(), next.TokenAddresses()):
			d.Additions = append(d.Additions, next.Clone())
		case !prev.sameState(next):
			d.Updates = append(d.Updates, next.Clone())
		}
	}
	return d
}

// Patch builds a new arena by applying d to prev. prev is not modified.
// Surviving pools keep their order; additions are appended.
func Patch(prev *Arena, d Diff) (*Arena, error) {
	deleted := make(map[common.Hash]struct{}, len(d.Deletions))
	for _, id := range d.Deletions {
		deleted[id] = struct{}{}
	}
	updated := make(map[common.Hash]*Pool, len(d.Updates))
	for i := range d.Updates {
		updated[d.Updates[i].ID] = &d.Updates[i]
	}

	records := make([]Pool, 0, len(prev.pools)+len(d.Additions))
	for i := range prev.pools {
		p := &prev.pools[i]
		if _, ok := deleted[p.ID]; ok {
			continue
		}
		if u, ok := updated[p.ID]; ok {
			delete(updated, p.ID)
			p = u
		}
		records = append(records, *p)
	}
	for _, u := range d.Updates {
		if _, ok := updated[u.ID]; ok {
			return nil, fmt.Errorf("%w: update for %s", ErrUnknownPool, u.ID.Hex())
		}
	}
	records = append(records, d.Additions...)
	return NewArena(records)
}

// sameState compares everything but identity.
func (p *Pool) sameState(o *Pool) bool {
	if p.Address != o.Address || p.Type != o.Type || p.SwapFee != o.SwapFee || p.Amp != o.Amp ||
		p.TotalShares.Cmp(o.TotalShares) != 0 || len(p.Tokens) != len(o.Tokens) {
		return false
	}
	for i := range p.Tokens {
		a, b := p.Tokens[i], o.Tokens[i]
		if a.Address != b.Address || a.Decimals != b.Decimals || a.Weight != b.Weight || a.Balance.Cmp(b.Balance) != 0 {
			return false
		}
	}
	return true
}
