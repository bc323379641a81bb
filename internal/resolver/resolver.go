// Package resolver orchestrates the hierarchy-resolution pipeline:
// list component records, parse their definitions, build the reference
// graph, expand every cross-component call, and publish the result as a
// per-tenant snapshot. One Service instance is constructed at process
// start and shared by all request handlers; there is no ambient state.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/omniview-labs/omniview/internal/cache"
	"github.com/omniview-labs/omniview/internal/expand"
	"github.com/omniview-labs/omniview/internal/graph"
	"github.com/omniview-labs/omniview/internal/model"
	"github.com/omniview-labs/omniview/internal/parse"
	"github.com/omniview-labs/omniview/internal/source"
)

// Options tunes the resolution pipeline.
type Options struct {
	// ExpandDepth caps component nesting during expansion.
	ExpandDepth int
	// GraphDepth caps the reference-graph walk.
	GraphDepth int
	// RootConcurrency bounds how many roots expand in parallel.
	RootConcurrency int
	// FetchTimeout bounds each remote definition fetch.
	FetchTimeout time.Duration
	// SnapshotTTL is the persistent-tier expiry for published snapshots.
	SnapshotTTL time.Duration
	// ChildTTL is the expiry for memoized child hierarchies.
	ChildTTL time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ExpandDepth:     10,
		GraphDepth:      graph.DefaultMaxDepth,
		RootConcurrency: 4,
		FetchTimeout:    10 * time.Second,
		SnapshotTTL:     cache.DefaultSnapshotTTL,
		ChildTTL:        15 * time.Minute,
	}
}

// Service is the hierarchy resolver exposed to the API layer.
type Service struct {
	log      *zap.Logger
	src      source.Source
	store    *cache.SnapshotStore
	children *cache.MemoryCache
	parser   *parse.Parser
	opts     Options

	// flight guarantees at most one concurrent full reload per tenant.
	flight singleflight.Group
}

// New constructs the resolver service.
func New(log *zap.Logger, src source.Source, store *cache.SnapshotStore, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.ExpandDepth <= 0 {
		opts.ExpandDepth = defaults.ExpandDepth
	}
	if opts.GraphDepth <= 0 {
		opts.GraphDepth = defaults.GraphDepth
	}
	if opts.RootConcurrency <= 0 {
		opts.RootConcurrency = defaults.RootConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = defaults.SnapshotTTL
	}
	if opts.ChildTTL <= 0 {
		opts.ChildTTL = defaults.ChildTTL
	}
	return &Service{
		log:      log,
		src:      src,
		store:    store,
		children: cache.NewMemoryCacheWithConfig(cache.Config{DefaultTTL: opts.ChildTTL, Prefix: "children:"}),
		parser:   parse.New(log),
		opts:     opts,
	}
}

// LoadAll runs a full reload for a tenant. Concurrent callers for the
// same tenant share one pipeline run. The pipeline itself runs on a
// detached context so a disconnecting caller cannot corrupt the shared
// state; that caller just stops waiting.
func (s *Service) LoadAll(ctx context.Context, tenant string) (model.LoadSummary, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(tenant, func() (any, error) {
		return s.reload(detached, tenant)
	})

	select {
	case <-ctx.Done():
		return model.LoadSummary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.LoadSummary{}, res.Err
		}
		return res.Val.(model.LoadSummary), nil
	}
}

// reload is the full pipeline. Only a listing failure is fatal; every
// per-component problem degrades that component and is counted.
func (s *Service) reload(ctx context.Context, tenant string) (model.LoadSummary, error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("tenant", tenant), zap.String("run", runID))
	log.Info("full hierarchy reload started")

	started := time.Now()
	var timing model.LoadTiming

	records := make(map[model.ComponentType][]source.RawRecord, 3)
	for _, ct := range []model.ComponentType{
		model.TypeIntegrationProcedure, model.TypeOmniScript, model.TypeDataMapper,
	} {
		recs, err := s.src.ListComponents(ctx, ct)
		if err != nil {
			return model.LoadSummary{}, fmt.Errorf("%w: %s: %v", source.ErrListingFailed, ct, err)
		}
		records[ct] = recs
	}
	timing.List = time.Since(started)

	parseStart := time.Now()
	var components []*model.Component
	parseErrors := 0
	for _, ct := range []model.ComponentType{
		model.TypeIntegrationProcedure, model.TypeOmniScript, model.TypeDataMapper,
	} {
		for _, rec := range records[ct] {
			comp := s.buildComponent(rec)
			if comp.ContentError != "" {
				parseErrors++
				log.Warn("component definition unparseable, kept with content error",
					zap.String("component", comp.Name), zap.String("error", comp.ContentError))
			}
			components = append(components, comp)
		}
	}
	timing.Parse = time.Since(parseStart)

	graphStart := time.Now()
	builder := graph.NewBuilderWithDepth(log, s.opts.GraphDepth)
	builder.Build(components)
	timing.Graph = time.Since(graphStart)

	expandStart := time.Now()
	expander := expand.New(log, expand.Options{
		DepthLimit:   s.opts.ExpandDepth,
		FetchTimeout: s.opts.FetchTimeout,
		Concurrency:  s.opts.RootConcurrency,
	}, s.store.TenantView(tenant))
	expanded, stats := expander.ExpandAll(ctx, components, s.fetchFn())
	timing.Expand = time.Since(expandStart)
	timing.Total = time.Since(started)

	snap := &model.CacheSnapshot{
		Tenant:   tenant,
		LoadedAt: time.Now().UTC(),
		Timing:   timing,
	}
	for i, ec := range expanded {
		if ec == nil {
			continue
		}
		switch components[i].ComponentType {
		case model.TypeIntegrationProcedure:
			snap.IntegrationProcedures = append(snap.IntegrationProcedures, ec)
		case model.TypeOmniScript:
			snap.OmniScripts = append(snap.OmniScripts, ec)
		case model.TypeDataMapper:
			snap.DataMappers = append(snap.DataMappers, ec)
		}
	}
	s.store.Set(ctx, tenant, snap, s.opts.SnapshotTTL)

	summary := model.LoadSummary{
		RunID:                 runID,
		Tenant:                tenant,
		IntegrationProcedures: len(snap.IntegrationProcedures),
		OmniScripts:           len(snap.OmniScripts),
		DataMappers:           len(snap.DataMappers),
		ParseErrors:           parseErrors,
		RemoteFetches:         stats.RemoteFetches,
		CyclesSkipped:         builder.CyclesSkipped() + stats.CyclesHit,
		Unresolved:            builder.Unresolved() + stats.Unresolved,
		LoadedAt:              snap.LoadedAt,
		Timing:                timing,
	}
	log.Info("full hierarchy reload finished",
		zap.Int("integrationProcedures", summary.IntegrationProcedures),
		zap.Int("omniscripts", summary.OmniScripts),
		zap.Int("dataMappers", summary.DataMappers),
		zap.Int("parseErrors", summary.ParseErrors),
		zap.Int("remoteFetches", summary.RemoteFetches),
		zap.Duration("total", timing.Total))
	return summary, nil
}

// buildComponent parses one raw record into a component entity. A
// malformed definition keeps the component, with the error recorded.
func (s *Service) buildComponent(rec source.RawRecord) *model.Component {
	comp := &model.Component{
		ID:            rec.ID,
		Name:          rec.Name,
		ComponentType: rec.ComponentType,
		Type:          rec.Type,
		SubType:       rec.SubType,
		Version:       rec.Version,
		UniqueID:      model.BuildUniqueID(rec.Type, rec.SubType, rec.Name),
	}
	if rec.ComponentType == model.TypeDataMapper || rec.Definition == "" {
		return comp
	}
	steps, err := s.parser.Parse(rec.Definition, rec.ComponentType, rec.Name)
	if err != nil {
		comp.ContentError = err.Error()
		return comp
	}
	comp.Steps = steps
	return comp
}

// fetchFn adapts the remote source to the expander's fetch hook. The
// reference key carries no component type, so the lookup tries each
// table that can own a step tree.
func (s *Service) fetchFn() expand.FetchFn {
	return func(ctx context.Context, key string) (*model.Component, bool) {
		for _, ct := range []model.ComponentType{
			model.TypeIntegrationProcedure, model.TypeOmniScript, model.TypeDataMapper,
		} {
			rec, found, err := s.src.FetchComponentDefinition(ctx, ct, key)
			if err != nil {
				s.log.Warn("remote definition fetch failed",
					zap.String("key", key), zap.String("componentType", string(ct)), zap.Error(err))
				continue
			}
			if found {
				return s.buildComponent(rec), true
			}
		}
		return nil, false
	}
}

// GetCached returns one expanded component from the published snapshot.
// The third return asks the caller to trigger a reload: true only when
// no snapshot exists for the tenant at all.
func (s *Service) GetCached(ctx context.Context, tenant string, componentType model.ComponentType, name string) (*model.ExpandedComponent, bool, bool) {
	snap, ok := s.store.Get(ctx, tenant)
	if !ok {
		return nil, false, true
	}

	var list []*model.ExpandedComponent
	switch componentType {
	case model.TypeIntegrationProcedure:
		list = snap.IntegrationProcedures
	case model.TypeOmniScript:
		list = snap.OmniScripts
	case model.TypeDataMapper:
		list = snap.DataMappers
	}
	for _, ec := range list {
		if ec.Name == name || ec.UniqueID == name {
			clone := ec.Clone()
			return &clone, true, false
		}
	}
	return nil, false, false
}

// GetChildHierarchy resolves one component's expanded steps on demand,
// without a full reload: memo, then snapshot, then a direct fetch and
// single-component expansion.
func (s *Service) GetChildHierarchy(ctx context.Context, tenant, name string) ([]model.Step, bool) {
	memoKey := tenant + "/" + name
	if raw, err := s.children.Get(ctx, memoKey); err == nil {
		var steps []model.Step
		if err := json.Unmarshal(raw, &steps); err == nil {
			return steps, true
		}
	}

	steps, ok := s.resolveChildSteps(ctx, tenant, name)
	if !ok {
		return nil, false
	}
	if raw, err := json.Marshal(steps); err == nil {
		if err := s.children.Set(ctx, memoKey, raw, s.opts.ChildTTL); err != nil {
			s.log.Warn("child hierarchy memo write failed", zap.String("component", name), zap.Error(err))
		}
	}
	return steps, true
}

func (s *Service) resolveChildSteps(ctx context.Context, tenant, name string) ([]model.Step, bool) {
	if ec, ok := s.store.TenantView(tenant).LookupExpanded(name); ok {
		return model.CloneSteps(ec.Steps), true
	}

	comp, found := s.fetchFn()(ctx, name)
	if !found {
		return nil, false
	}
	expander := expand.New(s.log, expand.Options{
		DepthLimit:   s.opts.ExpandDepth,
		FetchTimeout: s.opts.FetchTimeout,
		Concurrency:  1,
	}, s.store.TenantView(tenant))
	ec, _ := expander.ExpandOne(ctx, comp, s.fetchFn())
	return ec.Steps, true
}

// PersistentCacheAvailable reports whether the persistent snapshot tier
// is configured and reachable.
func (s *Service) PersistentCacheAvailable() bool {
	return s.store.Available()
}

// ClearCache drops a tenant's snapshot from both tiers, along with the
// child-hierarchy memo.
func (s *Service) ClearCache(ctx context.Context, tenant string) {
	s.store.Clear(ctx, tenant)
	if err := s.children.Clear(ctx); err != nil {
		s.log.Warn("child hierarchy memo clear failed", zap.Error(err))
	}
}

// ClearAllCaches drops every tenant's cached state.
func (s *Service) ClearAllCaches(ctx context.Context) {
	s.store.ClearAll(ctx)
	if err := s.children.Clear(ctx); err != nil {
		s.log.Warn("child hierarchy memo clear failed", zap.Error(err))
	}
}
