package pools

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Arena stores pools by position with an id lookup. Arenas handed to pricing
// code are treated as read-only; execution works on a Clone.
type Arena struct {
	pools []Pool
	index map[common.Hash]int
}

// NewArena validates and deep-copies the given pools.
func NewArena(records []Pool) (*Arena, error) {
	a := &Arena{
		pools: make([]Pool, 0, len(records)),
		index: make(map[common.Hash]int, len(records)),
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := a.index[records[i].ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePool, records[i].ID.Hex())
		}
		a.index[records[i].ID] = len(a.pools)
		a.pools = append(a.pools, records[i].Clone())
	}
	return a, nil
}

// Len returns the number of pools.
func (a *Arena) Len() int { return len(a.pools) }

// At returns the pool at position i.
func (a *Arena) At(i int) *Pool { return &a.pools[i] }

// Index returns the position of the pool with the given id.
func (a *Arena) Index(id common.Hash) (int, bool) {
	i, ok := a.index[id]
	return i, ok
}

// Get returns the pool with the given id.
func (a *Arena) Get(id common.Hash) (*Pool, error) {
	i, ok := a.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, id.Hex())
	}
	return &a.pools[i], nil
}

// Clone returns an independently owned copy of the arena.
func (a *Arena) Clone() *Arena {
	c := &Arena{
		pools: make([]Pool, len(a.pools)),
		index: make(map[common.Hash]int, len(a.index)),
	}
	for i := range a.pools {
		c.pools[i] = a.pools[i].Clone()
	}
	for id, i := range a.index {
		c.index[id] = i
	}
	return c
}
