package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omniview-labs/omniview/internal/model"
)

// DefaultSnapshotTTL is the write-through expiry for the persistent tier.
const DefaultSnapshotTTL = 48 * time.Hour

const snapshotKeyPrefix = "snapshot:"

// SnapshotStore is the two-tier store for published tenant snapshots.
// Lookup order is in-process map, then the persistent tier; a
// persistent-tier hit is promoted into the in-process map. Persistent
// tier failures are logged and otherwise ignored.
type SnapshotStore struct {
	mu         sync.RWMutex
	snapshots  map[string]*model.CacheSnapshot
	persistent Cache // nil when no persistent tier is configured
	ttl        time.Duration
	log        *zap.Logger
}

// NewSnapshotStore builds a snapshot store. persistent may be nil.
func NewSnapshotStore(log *zap.Logger, persistent Cache, ttl time.Duration) *SnapshotStore {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotStore{
		snapshots:  make(map[string]*model.CacheSnapshot),
		persistent: persistent,
		ttl:        ttl,
		log:        log,
	}
}

// Available reports whether the persistent tier is configured and
// currently reachable.
func (s *SnapshotStore) Available() bool {
	if s.persistent == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.persistent.Exists(ctx, snapshotKeyPrefix+"probe"); err != nil {
		return false
	}
	return true
}

// Get returns the published snapshot for a tenant, consulting the
// in-process map first and the persistent tier second.
func (s *SnapshotStore) Get(ctx context.Context, tenant string) (*model.CacheSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.snapshots[tenant]
	s.mu.RUnlock()
	if ok {
		return snap, true
	}

	if s.persistent == nil {
		return nil, false
	}
	raw, err := s.persistent.Get(ctx, snapshotKeyPrefix+tenant)
	if err != nil {
		if !IsCacheMiss(err) {
			s.log.Warn("persistent cache read failed", zap.String("tenant", tenant), zap.Error(err))
		}
		return nil, false
	}
	var restored model.CacheSnapshot
	if err := json.Unmarshal(raw, &restored); err != nil {
		s.log.Warn("persistent snapshot undecodable, treated as miss",
			zap.String("tenant", tenant), zap.Error(err))
		return nil, false
	}

	// Promote to the fast path. A snapshot published concurrently by a
	// reload wins over the restored one.
	s.mu.Lock()
	if current, ok := s.snapshots[tenant]; ok {
		s.mu.Unlock()
		return current, true
	}
	s.snapshots[tenant] = &restored
	s.mu.Unlock()
	return &restored, true
}

// Set publishes a snapshot: the in-process entry is swapped wholesale
// and the persistent tier is written through with the configured expiry.
// The snapshot must not be mutated after publication.
func (s *SnapshotStore) Set(ctx context.Context, tenant string, snap *model.CacheSnapshot, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	s.mu.Lock()
	s.snapshots[tenant] = snap
	s.mu.Unlock()

	if s.persistent == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn("snapshot not serializable for persistent tier",
			zap.String("tenant", tenant), zap.Error(err))
		return
	}
	if err := s.persistent.Set(ctx, snapshotKeyPrefix+tenant, raw, ttl); err != nil {
		s.log.Warn("persistent cache write failed, serving in-process only",
			zap.String("tenant", tenant), zap.Error(err))
	}
}

// Clear drops a tenant's snapshot from both tiers.
func (s *SnapshotStore) Clear(ctx context.Context, tenant string) {
	s.mu.Lock()
	delete(s.snapshots, tenant)
	s.mu.Unlock()

	if s.persistent == nil {
		return
	}
	if err := s.persistent.Delete(ctx, snapshotKeyPrefix+tenant); err != nil {
		s.log.Warn("persistent cache delete failed", zap.String("tenant", tenant), zap.Error(err))
	}
}

// ClearAll drops every tenant's snapshot from both tiers.
func (s *SnapshotStore) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.snapshots = make(map[string]*model.CacheSnapshot)
	s.mu.Unlock()

	if s.persistent == nil {
		return
	}
	if err := s.persistent.Clear(ctx); err != nil {
		s.log.Warn("persistent cache clear failed", zap.Error(err))
	}
}

// TenantView adapts one tenant's published snapshot to the expander's
// lookup interface. The view reflects whatever snapshot is published at
// lookup time.
func (s *SnapshotStore) TenantView(tenant string) *TenantView {
	return &TenantView{store: s, tenant: tenant}
}

// TenantView resolves components against one tenant's snapshot.
type TenantView struct {
	store  *SnapshotStore
	tenant string
}

// LookupExpanded finds a component by uniqueId or name across all three
// component collections of the published snapshot.
func (v *TenantView) LookupExpanded(key string) (*model.ExpandedComponent, bool) {
	snap, ok := v.store.Get(context.Background(), v.tenant)
	if !ok {
		return nil, false
	}
	for _, list := range [][]*model.ExpandedComponent{
		snap.IntegrationProcedures, snap.OmniScripts, snap.DataMappers,
	} {
		for _, ec := range list {
			if ec.UniqueID == key || ec.Name == key {
				return ec, true
			}
		}
	}
	return nil, false
}
