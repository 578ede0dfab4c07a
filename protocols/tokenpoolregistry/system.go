package tokenpoolregistry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// System makes a Registry safe for concurrent use. Writers serialize on a
// mutex and publish a fresh View; readers load the published View lock-free.
type System struct {
	mu       sync.Mutex
	registry *Registry
	cached   atomic.Pointer[View]
}

func NewSystem(compactionThreshold int) *System {
	s := &System{registry: NewRegistry(compactionThreshold)}
	s.cached.Store(s.registry.view())
	return s
}

func (s *System) publish() {
	s.cached.Store(s.registry.view())
}

// AddPools indexes pools with their token sets. Mismatched slice lengths are
// a programmer error and panic.
func (s *System) AddPools(poolIDs []common.Hash, tokenSets [][]common.Address) {
	if len(poolIDs) != len(tokenSets) {
		panic(fmt.Sprintf("mismatched input lengths: %d pool IDs and %d token sets", len(poolIDs), len(tokenSets)))
	}
	if len(poolIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range poolIDs {
		s.registry.add(id, tokenSets[i])
	}
	s.publish()
}

func (s *System) RemovePools(poolIDs []common.Hash) {
	if len(poolIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range poolIDs {
		s.registry.removePool(id)
	}
	s.publish()
}

// RemoveTokens cuts every edge touching the tokens.
func (s *System) RemoveTokens(tokens []common.Address) {
	if len(tokens) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.registry.removeToken(t)
	}
	s.publish()
}

// Snapshot returns the published view. It is shared and must not be modified.
func (s *System) Snapshot() *View {
	return s.cached.Load()
}

// View returns a private deep copy of the published view.
func (s *System) View() *View {
	return s.cached.Load().clone()
}
