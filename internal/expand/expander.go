// Package expand inlines cross-component references: given parsed
// components, it recursively embeds every referenced component's full
// step tree, bounded by a depth limit and memoized so each component is
// expanded once per run regardless of how many steps reference it.
package expand

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omniview-labs/omniview/internal/model"
)

// FetchFn loads a component that is not part of the current run, keyed
// by uniqueId or name. It is the last resort in the resolution order
// and every call is counted for diagnostics.
type FetchFn func(ctx context.Context, key string) (*model.Component, bool)

// SnapshotLookup resolves a component against an already-published
// tenant snapshot, consulted before falling back to a remote fetch.
type SnapshotLookup interface {
	LookupExpanded(key string) (*model.ExpandedComponent, bool)
}

// Options tunes one expander instance.
type Options struct {
	// DepthLimit caps component nesting. Steps past the cap keep their
	// reference but are flagged instead of expanded.
	DepthLimit int
	// FetchTimeout bounds each remote fetch. A timeout degrades that
	// one step to unresolved.
	FetchTimeout time.Duration
	// Concurrency bounds how many roots expand in parallel.
	Concurrency int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DepthLimit:   10,
		FetchTimeout: 10 * time.Second,
		Concurrency:  4,
	}
}

// Stats summarizes what one ExpandAll run did.
type Stats struct {
	RemoteFetches int
	CyclesHit     int
	Unresolved    int
	DepthLimited  int
}

// Expander performs recursive reference expansion.
type Expander struct {
	log      *zap.Logger
	opts     Options
	snapshot SnapshotLookup // may be nil when no snapshot is published yet
}

// New returns an expander. snapshot may be nil.
func New(log *zap.Logger, opts Options, snapshot SnapshotLookup) *Expander {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DepthLimit <= 0 {
		opts.DepthLimit = DefaultOptions().DepthLimit
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultOptions().FetchTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	return &Expander{log: log, opts: opts, snapshot: snapshot}
}

// runState is the shared mutable state of one ExpandAll call: the
// expansion memo plus the index of this run's components. Both are
// guarded by one mutex; counters are atomics.
type runState struct {
	mu         sync.Mutex
	memo       map[string]*model.ExpandedComponent
	byUniqueID map[string]*model.Component
	byName     map[string]*model.Component

	fetches      atomic.Int64
	cycles       atomic.Int64
	unresolved   atomic.Int64
	depthLimited atomic.Int64
}

func newRunState(roots []*model.Component) *runState {
	st := &runState{
		memo:       make(map[string]*model.ExpandedComponent),
		byUniqueID: make(map[string]*model.Component, len(roots)),
		byName:     make(map[string]*model.Component, len(roots)),
	}
	for _, comp := range roots {
		st.addComponent(comp)
	}
	return st
}

// addComponent indexes a component, first match winning on key clashes.
func (st *runState) addComponent(comp *model.Component) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.byUniqueID[comp.UniqueID]; !ok {
		st.byUniqueID[comp.UniqueID] = comp
	}
	if _, ok := st.byName[comp.Name]; !ok {
		st.byName[comp.Name] = comp
	}
}

// lookupComponent resolves a key by uniqueId then name.
func (st *runState) lookupComponent(key string) *model.Component {
	st.mu.Lock()
	defer st.mu.Unlock()
	if comp, ok := st.byUniqueID[key]; ok {
		return comp
	}
	if comp, ok := st.byName[key]; ok {
		return comp
	}
	return nil
}

// fromMemo returns an independent copy of a memoized expansion.
func (st *runState) fromMemo(key string) *model.ExpandedComponent {
	st.mu.Lock()
	defer st.mu.Unlock()
	if ec, ok := st.memo[key]; ok {
		clone := ec.Clone()
		return &clone
	}
	return nil
}

// storeMemo publishes a finished expansion. The first writer wins so
// concurrent duplicate expansions settle on one canonical tree.
func (st *runState) storeMemo(key string, ec *model.ExpandedComponent) *model.ExpandedComponent {
	st.mu.Lock()
	defer st.mu.Unlock()
	if existing, ok := st.memo[key]; ok {
		return existing
	}
	st.memo[key] = ec
	return ec
}

// ExpandAll expands every root, in parallel up to the configured
// concurrency, all workers sharing one memo. The returned slice is
// ordered like roots. Expansion never fails a run: cycles, depth-limit
// hits, and fetch failures degrade individual steps and are counted.
func (e *Expander) ExpandAll(ctx context.Context, roots []*model.Component, fetch FetchFn) ([]*model.ExpandedComponent, Stats) {
	st := newRunState(roots)
	out := make([]*model.ExpandedComponent, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, comp := range roots {
		i, comp := i, comp
		g.Go(func() error {
			out[i] = e.expandComponent(gctx, comp, nil, 1, fetch, st)
			return nil
		})
	}
	// Workers only record results, never return errors.
	_ = g.Wait()

	return out, Stats{
		RemoteFetches: int(st.fetches.Load()),
		CyclesHit:     int(st.cycles.Load()),
		Unresolved:    int(st.unresolved.Load()),
		DepthLimited:  int(st.depthLimited.Load()),
	}
}

// ExpandOne expands a single component against a fresh run state. Used
// for on-demand child-hierarchy resolution outside a full reload.
func (e *Expander) ExpandOne(ctx context.Context, comp *model.Component, fetch FetchFn) (*model.ExpandedComponent, Stats) {
	out, stats := e.ExpandAll(ctx, []*model.Component{comp}, fetch)
	return out[0], stats
}

// expandComponent produces the expanded tree for one component.
// ancestry holds the uniqueIds currently being expanded on this call
// chain; a reference back into it is a cycle and links a header-only
// placeholder instead of re-entering. depth is the component-nesting
// depth, 1 at the root.
func (e *Expander) expandComponent(ctx context.Context, comp *model.Component, ancestry map[string]bool, depth int, fetch FetchFn, st *runState) *model.ExpandedComponent {
	key := comp.UniqueID
	if ec := st.fromMemo(key); ec != nil {
		return ec
	}

	next := make(map[string]bool, len(ancestry)+1)
	for k := range ancestry {
		next[k] = true
	}
	next[key] = true

	ec := &model.ExpandedComponent{
		Name:          comp.Name,
		UniqueID:      comp.UniqueID,
		ComponentType: comp.ComponentType,
		Type:          comp.Type,
		SubType:       comp.SubType,
		Version:       comp.Version,
		Steps:         model.CloneSteps(comp.Steps),
		ContentError:  comp.ContentError,
	}
	e.expandSteps(ctx, ec.Steps, next, depth, fetch, st)
	ec.FullyExpanded = true

	canonical := st.storeMemo(key, ec)
	clone := canonical.Clone()
	return &clone
}

// expandSteps walks a step slice in place, attaching expanded child
// structures to reference steps.
func (e *Expander) expandSteps(ctx context.Context, steps []model.Step, ancestry map[string]bool, depth int, fetch FetchFn, st *runState) {
	for i := range steps {
		step := &steps[i]
		e.expandSteps(ctx, step.SubSteps, ancestry, depth, fetch, st)
		e.expandSteps(ctx, step.BlockSteps, ancestry, depth, fetch, st)

		if !step.HasIPReference || step.ReferencedIP == "" {
			continue
		}

		if depth >= e.opts.DepthLimit {
			step.DepthLimitHit = true
			st.depthLimited.Add(1)
			e.log.Warn("expansion depth limit reached, reference left unexpanded",
				zap.String("step", step.Name),
				zap.String("target", step.ReferencedIP),
				zap.Int("depth", depth))
			continue
		}

		child := e.resolveChild(ctx, step.ReferencedIP, ancestry, depth, fetch, st)
		if child == nil {
			st.unresolved.Add(1)
			e.log.Info("reference could not be resolved during expansion",
				zap.String("step", step.Name),
				zap.String("target", step.ReferencedIP))
			continue
		}
		step.ChildIPStructure = child
		step.HasExpandedStructure = child.FullyExpanded
	}
}

// resolveChild resolves one reference target in strict priority order:
// the run memo, the in-progress ancestry (cycle placeholder), the
// published snapshot, and finally the remote fetch hook.
func (e *Expander) resolveChild(ctx context.Context, key string, ancestry map[string]bool, depth int, fetch FetchFn, st *runState) *model.ExpandedComponent {
	if comp := st.lookupComponent(key); comp != nil {
		if ec := st.fromMemo(comp.UniqueID); ec != nil {
			return ec
		}
		if ancestry[comp.UniqueID] {
			st.cycles.Add(1)
			e.log.Warn("expansion cycle detected, linking unexpanded placeholder",
				zap.String("target", comp.UniqueID))
			return headerOnly(comp)
		}
		return e.expandComponent(ctx, comp, ancestry, depth+1, fetch, st)
	}

	if ec := st.fromMemo(key); ec != nil {
		return ec
	}

	if e.snapshot != nil {
		if cached, ok := e.snapshot.LookupExpanded(key); ok {
			clone := cached.Clone()
			canonical := st.storeMemo(clone.UniqueID, &clone)
			out := canonical.Clone()
			return &out
		}
	}

	if fetch == nil {
		return nil
	}
	fctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()
	st.fetches.Add(1)
	comp, ok := fetch(fctx, key)
	if !ok || comp == nil {
		return nil
	}
	st.addComponent(comp)
	return e.expandComponent(ctx, comp, ancestry, depth+1, fetch, st)
}

// headerOnly builds the placeholder attached at a cycle: the component's
// identity without its steps, explicitly not fully expanded.
func headerOnly(comp *model.Component) *model.ExpandedComponent {
	return &model.ExpandedComponent{
		Name:          comp.Name,
		UniqueID:      comp.UniqueID,
		ComponentType: comp.ComponentType,
		Type:          comp.Type,
		SubType:       comp.SubType,
		Version:       comp.Version,
		FullyExpanded: false,
	}
}
