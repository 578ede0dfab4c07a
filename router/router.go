// Package router answers swap queries against a replaceable pool snapshot.
//
// A query runs discovery over the token-pool graph, prices the candidate
// routes, splits the amount across them and replays the split with exact pool
// math. Snapshots are immutable once published, so queries never block pool
// updates and never observe half-applied ones.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safedollar-finance/balancer-sor/allocator"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/discovery"
	"github.com/safedollar-finance/balancer-sor/paths"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/safedollar-finance/balancer-sor/protocols/tokenpoolregistry"
	"github.com/safedollar-finance/balancer-sor/replay"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPools is used when neither the config nor the query sets a pool cap.
const DefaultMaxPools = 4

// ErrInvalidQuery is returned for malformed queries.
var ErrInvalidQuery = errors.New("invalid query")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the router dependencies and defaults.
type Config struct {
	Logger   Logger
	Registry prometheus.Registerer

	// MaxPools is the default cap on pools per query. Zero means DefaultMaxPools.
	MaxPools int
	// DisabledTokens can never be routed through, as endpoint or intermediate.
	DisabledTokens []common.Address
	// FilterPaths prunes large candidate sets before allocation.
	FilterPaths bool
	// Workers bounds concurrent path pricing. Zero means GOMAXPROCS.
	Workers int
	// CompactionThreshold is passed to the token-pool graph.
	CompactionThreshold int
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.MaxPools < 0 {
		return errors.New("config: MaxPools cannot be negative")
	}
	if c.Workers < 0 {
		return errors.New("config: Workers cannot be negative")
	}
	return nil
}

// Query is one swap request. Amount is in raw units of the specified token:
// the token sold for exact-in, the token bought for exact-out. CostPerPool is
// the cost of one pool traversal in human units of the return token.
type Query struct {
	TokenIn        common.Address
	TokenOut       common.Address
	SwapType       curve.SwapType
	Amount         *big.Int
	MaxPools       int
	CostPerPool    float64
	DisabledTokens []common.Address
}

func (q *Query) validate() error {
	if q.SwapType != curve.ExactIn && q.SwapType != curve.ExactOut {
		return fmt.Errorf("%w: unknown swap type %d", ErrInvalidQuery, uint8(q.SwapType))
	}
	if q.Amount == nil || q.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidQuery)
	}
	if q.MaxPools < 0 {
		return fmt.Errorf("%w: max pools %d", ErrInvalidQuery, q.MaxPools)
	}
	if math.IsNaN(q.CostPerPool) || math.IsInf(q.CostPerPool, 0) || q.CostPerPool < 0 {
		return fmt.Errorf("%w: cost per pool %g", ErrInvalidQuery, q.CostPerPool)
	}
	return nil
}

// snapshot pairs an arena with the graph built from the same pools.
type snapshot struct {
	arena    *pools.Arena
	view     *tokenpoolregistry.View
	disabled map[common.Address]struct{}
}

// Router is safe for concurrent use. Writers serialize on mu; readers load
// the current snapshot lock-free.
type Router struct {
	logger      Logger
	metrics     *Metrics
	maxPools    int
	workers     int
	filterPaths bool

	mu      sync.Mutex
	graph   *tokenpoolregistry.System
	current atomic.Pointer[snapshot]
}

// New constructs a router with an empty pool set.
func New(cfg *Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Router{
		logger:      cfg.Logger,
		metrics:     NewMetrics(cfg.Registry),
		maxPools:    cfg.MaxPools,
		workers:     cfg.Workers,
		filterPaths: cfg.FilterPaths,
		graph:       tokenpoolregistry.NewSystem(cfg.CompactionThreshold),
	}
	if r.maxPools == 0 {
		r.maxPools = DefaultMaxPools
	}
	if r.workers == 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}

	empty, _ := pools.NewArena(nil)
	disabled := make(map[common.Address]struct{}, len(cfg.DisabledTokens))
	for _, t := range cfg.DisabledTokens {
		disabled[t] = struct{}{}
	}
	r.current.Store(&snapshot{arena: empty, view: r.graph.Snapshot(), disabled: disabled})
	return r, nil
}

// SetPools replaces the pool set. The graph is updated incrementally: pools
// that disappeared or changed tokens are removed and new ones added.
func (r *Router) SetPools(records []pools.Pool) error {
	timer := prometheus.NewTimer(r.metrics.poolSetDuration)
	defer timer.ObserveDuration()

	arena, err := pools.NewArena(records)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current.Load()
	r.publish(prev, arena, pools.Differ(prev.arena, arena))
	return nil
}

// ApplyDiff patches the current pool set with d.
func (r *Router) ApplyDiff(d pools.Diff) error {
	if d.IsEmpty() {
		return nil
	}
	timer := prometheus.NewTimer(r.metrics.poolSetDuration)
	defer timer.ObserveDuration()

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current.Load()
	arena, err := pools.Patch(prev.arena, d)
	if err != nil {
		return err
	}
	r.publish(prev, arena, d)
	return nil
}

// publish must be called with mu held.
func (r *Router) publish(prev *snapshot, arena *pools.Arena, d pools.Diff) {
	r.graph.RemovePools(d.Deletions)
	added := make([]common.Hash, len(d.Additions))
	tokenSets := make([][]common.Address, len(d.Additions))
	for i := range d.Additions {
		added[i] = d.Additions[i].ID
		tokenSets[i] = d.Additions[i].TokenAddresses()
	}
	r.graph.AddPools(added, tokenSets)
	r.graph.RemoveTokens(keys(prev.disabled))

	r.current.Store(&snapshot{arena: arena, view: r.graph.Snapshot(), disabled: prev.disabled})
	r.metrics.indexedPools.Set(float64(arena.Len()))
	r.logger.Info("pool set updated",
		"pools", arena.Len(),
		"added", len(d.Additions),
		"updated", len(d.Updates),
		"removed", len(d.Deletions),
	)
}

// DisableTokens permanently excludes tokens from routing.
func (r *Router) DisableTokens(tokens ...common.Address) {
	if len(tokens) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	disabled := make(map[common.Address]struct{}, len(prev.disabled)+len(tokens))
	for t := range prev.disabled {
		disabled[t] = struct{}{}
	}
	for _, t := range tokens {
		disabled[t] = struct{}{}
	}
	r.graph.RemoveTokens(tokens)
	r.current.Store(&snapshot{arena: prev.arena, view: r.graph.Snapshot(), disabled: disabled})
	r.logger.Info("tokens disabled", "count", len(tokens))
}

// GetSwaps routes q across the current pool set. Queries that cannot be
// routed, including zero amounts and amounts beyond the available liquidity,
// return an empty SwapInfo and a nil error.
func (r *Router) GetSwaps(ctx context.Context, q Query) (*replay.SwapInfo, error) {
	timer := prometheus.NewTimer(r.metrics.queryDuration.WithLabelValues(q.SwapType.String()))
	defer timer.ObserveDuration()

	info, outcome, err := r.getSwaps(ctx, q)
	r.metrics.queries.WithLabelValues(q.SwapType.String(), outcome).Inc()
	if err != nil {
		r.logger.Error("swap query failed", "tokenIn", q.TokenIn, "tokenOut", q.TokenOut, "error", err)
		return nil, err
	}
	return info, nil
}

func (r *Router) getSwaps(ctx context.Context, q Query) (*replay.SwapInfo, string, error) {
	if err := q.validate(); err != nil {
		return nil, outcomeError, err
	}
	if q.Amount.Sign() == 0 {
		return replay.Empty(), outcomeNoRoute, nil
	}

	snap := r.current.Load()
	maxPools := r.queryMaxPools(q)
	candidates, err := r.candidates(ctx, snap, q, maxPools)
	if err != nil {
		return nil, outcomeError, err
	}
	if len(candidates) == 0 {
		return replay.Empty(), outcomeNoRoute, nil
	}

	first := candidates[0]
	decimals := first.Pairs[0].DecimalsIn
	if q.SwapType == curve.ExactOut {
		decimals = first.Pairs[len(first.Pairs)-1].DecimalsOut
	}

	res, err := allocator.Optimize(candidates, allocator.Params{
		SwapType:    q.SwapType,
		Total:       pools.ToFloat(q.Amount, decimals),
		MaxPools:    maxPools,
		CostPerPool: q.CostPerPool,
	})
	r.observe(res)
	if errors.Is(err, allocator.ErrDegenerateAllocation) {
		r.logger.Warn("allocation degenerate", "tokenIn", q.TokenIn, "tokenOut", q.TokenOut, "candidates", len(candidates))
		return replay.Empty(), outcomeDegraded, nil
	}
	if err != nil {
		return nil, outcomeError, err
	}
	if res.Empty() {
		return replay.Empty(), outcomeNoRoute, nil
	}

	info, err := replay.Execute(snap.arena, res, replay.Request{
		SwapType:    q.SwapType,
		Amount:      q.Amount,
		CostPerPool: q.CostPerPool,
	})
	if err != nil {
		return nil, outcomeError, err
	}
	r.logger.Debug("swap routed",
		"tokenIn", q.TokenIn,
		"tokenOut", q.TokenOut,
		"paths", len(res.Paths),
		"trials", res.Stats.Trials,
		"return", info.ReturnAmount,
	)
	return info, outcomeRouted, nil
}

// Candidates returns the priced routes GetSwaps would allocate over, sorted by
// descending limit.
func (r *Router) Candidates(ctx context.Context, q Query) ([]*paths.Path, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return r.candidates(ctx, r.current.Load(), q, r.queryMaxPools(q))
}

func (r *Router) queryMaxPools(q Query) int {
	if q.MaxPools > 0 {
		return q.MaxPools
	}
	return r.maxPools
}

func (r *Router) candidates(ctx context.Context, snap *snapshot, q Query, maxPools int) ([]*paths.Path, error) {
	disabled := snap.disabled
	if len(q.DisabledTokens) > 0 {
		disabled = make(map[common.Address]struct{}, len(snap.disabled)+len(q.DisabledTokens))
		for t := range snap.disabled {
			disabled[t] = struct{}{}
		}
		for _, t := range q.DisabledTokens {
			disabled[t] = struct{}{}
		}
	}

	routes, err := discovery.Discover(snap.view, snap.arena, q.TokenIn, q.TokenOut, maxPools, disabled)
	if err != nil {
		return nil, err
	}
	candidates, err := r.price(ctx, snap.arena, routes, q.SwapType)
	if err != nil {
		return nil, err
	}

	paths.SortByLimit(candidates)
	if r.filterPaths {
		candidates = paths.Filter(candidates, maxPools)
	}
	r.metrics.candidatePaths.Set(float64(len(candidates)))
	return candidates, nil
}

// price builds every route concurrently, bounded by the worker count.
func (r *Router) price(ctx context.Context, arena *pools.Arena, routes [][]paths.Hop, st curve.SwapType) ([]*paths.Path, error) {
	out := make([]*paths.Path, len(routes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, hops := range routes {
		i, hops := i, hops
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := paths.New(arena, hops, st)
			if err != nil {
				return fmt.Errorf("route %d: %w", i, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range out {
		for _, pair := range p.Pairs {
			if pair.PoolType == pools.Stable && !pair.InvariantEstimate.Converged {
				r.metrics.notConverged.WithLabelValues("invariant").Inc()
			}
		}
	}
	return out, nil
}

func (r *Router) observe(res *allocator.Result) {
	if res == nil {
		return
	}
	s := res.Stats
	r.metrics.notConverged.WithLabelValues("derivative").Add(float64(s.DerivativeNotConverged))
	r.metrics.notConverged.WithLabelValues("equalize").Add(float64(s.EqualizeNotConverged))
	r.metrics.degenerate.Add(float64(s.DegenerateTrials))
}

func keys(set map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
