package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniview-labs/omniview/internal/model"
)

func testSnapshot(tenant string) *model.CacheSnapshot {
	return &model.CacheSnapshot{
		Tenant:   tenant,
		LoadedAt: time.Now().UTC().Truncate(time.Second),
		IntegrationProcedures: []*model.ExpandedComponent{
			{Name: "Roster", UniqueID: "team_roster", ComponentType: model.TypeIntegrationProcedure, FullyExpanded: true},
		},
	}
}

func redisBackedStore(t *testing.T) (*SnapshotStore, *RedisCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), DefaultConfig())
	t.Cleanup(func() { _ = rc.Close() })
	return NewSnapshotStore(nil, rc, 0), rc
}

func TestSnapshotStore_InProcessHit(t *testing.T) {
	store := NewSnapshotStore(nil, nil, 0)
	ctx := context.Background()

	_, ok := store.Get(ctx, "acme")
	assert.False(t, ok)

	store.Set(ctx, "acme", testSnapshot("acme"), 0)
	snap, ok := store.Get(ctx, "acme")
	require.True(t, ok)
	assert.Equal(t, "acme", snap.Tenant)
}

func TestSnapshotStore_PersistentTierPromotion(t *testing.T) {
	store, rc := redisBackedStore(t)
	ctx := context.Background()

	store.Set(ctx, "acme", testSnapshot("acme"), 0)

	// Simulate a process restart: a fresh store over the same redis.
	restarted := NewSnapshotStore(nil, rc, 0)
	snap, ok := restarted.Get(ctx, "acme")
	require.True(t, ok)
	require.Len(t, snap.IntegrationProcedures, 1)
	assert.Equal(t, "team_roster", snap.IntegrationProcedures[0].UniqueID)

	// Promoted into the fast path: the second read returns the same
	// in-process value.
	again, ok := restarted.Get(ctx, "acme")
	require.True(t, ok)
	assert.Same(t, snap, again)
}

func TestSnapshotStore_Clear(t *testing.T) {
	store, rc := redisBackedStore(t)
	ctx := context.Background()

	store.Set(ctx, "acme", testSnapshot("acme"), 0)
	store.Set(ctx, "globex", testSnapshot("globex"), 0)

	store.Clear(ctx, "acme")
	_, ok := store.Get(ctx, "acme")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "globex")
	assert.True(t, ok)

	// Cleared from the persistent tier as well.
	restarted := NewSnapshotStore(nil, rc, 0)
	_, ok = restarted.Get(ctx, "acme")
	assert.False(t, ok)
}

func TestSnapshotStore_ClearAll(t *testing.T) {
	store, _ := redisBackedStore(t)
	ctx := context.Background()

	store.Set(ctx, "acme", testSnapshot("acme"), 0)
	store.Set(ctx, "globex", testSnapshot("globex"), 0)
	store.ClearAll(ctx)

	_, ok := store.Get(ctx, "acme")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "globex")
	assert.False(t, ok)
}

// failingCache simulates a down persistent tier.
type failingCache struct{}

var errDown = errors.New("backend down")

func (failingCache) Get(context.Context, string) ([]byte, error)                 { return nil, errDown }
func (failingCache) Set(context.Context, string, []byte, time.Duration) error    { return errDown }
func (failingCache) Delete(context.Context, string) error                        { return errDown }
func (failingCache) Clear(context.Context) error                                 { return errDown }
func (failingCache) Exists(context.Context, string) (bool, error)                { return false, errDown }

func TestSnapshotStore_PersistentFailuresAreNonFatal(t *testing.T) {
	store := NewSnapshotStore(nil, failingCache{}, 0)
	ctx := context.Background()

	assert.False(t, store.Available())

	// Writes and reads still work through the in-process tier.
	store.Set(ctx, "acme", testSnapshot("acme"), 0)
	snap, ok := store.Get(ctx, "acme")
	require.True(t, ok)
	assert.Equal(t, "acme", snap.Tenant)

	store.Clear(ctx, "acme")
	_, ok = store.Get(ctx, "acme")
	assert.False(t, ok)
}

func TestSnapshotStore_Available(t *testing.T) {
	assert.False(t, NewSnapshotStore(nil, nil, 0).Available())

	store, _ := redisBackedStore(t)
	assert.True(t, store.Available())
}

func TestSnapshotStore_TenantViewLookup(t *testing.T) {
	store := NewSnapshotStore(nil, nil, 0)
	ctx := context.Background()

	snap := testSnapshot("acme")
	snap.OmniScripts = []*model.ExpandedComponent{
		{Name: "Intake", UniqueID: "intake_v1", ComponentType: model.TypeOmniScript},
	}
	store.Set(ctx, "acme", snap, 0)

	view := store.TenantView("acme")

	byKey, ok := view.LookupExpanded("team_roster")
	require.True(t, ok)
	assert.Equal(t, "Roster", byKey.Name)

	byName, ok := view.LookupExpanded("Intake")
	require.True(t, ok)
	assert.Equal(t, "intake_v1", byName.UniqueID)

	_, ok = view.LookupExpanded("ghost")
	assert.False(t, ok)

	_, ok = store.TenantView("other").LookupExpanded("team_roster")
	assert.False(t, ok)
}
