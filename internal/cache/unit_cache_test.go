package cache

import (
	"context"
	"testing"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingUnitStore struct {
	units map[string]models.Unit
	reads int
}

func (s *countingUnitStore) GetUnit(ctx context.Context, id, version string) (*models.Unit, error) {
	s.reads++
	u, ok := s.units[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *countingUnitStore) ListUnitsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Unit, error) {
	return nil, nil
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *countingUnitStore, *UnitCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &countingUnitStore{units: map[string]models.Unit{
		"unit-1": {ID: "unit-1", Title: "Sea view", CreatedBy: "host-1", PendingRequestsCount: 2},
	}}
	return mr, store, NewUnitCache(store, NewRedisKVStore(client), time.Minute, zap.NewNop())
}

func TestUnitCache_HintFillsAndServesFromRedis(t *testing.T) {
	mr, store, c := setupCache(t)
	ctx := context.Background()

	u, err := c.Get(ctx, "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, "host-1", u.CreatedBy)
	assert.True(t, mr.Exists("rental:unit:unit-1:"))

	u, err = c.Get(ctx, "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, "Sea view", u.Title)
	assert.Equal(t, 1, store.reads)
}

func TestUnitCache_NoHintAlwaysReadsStore(t *testing.T) {
	mr, store, c := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "unit-1", "", Hint{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.reads)
	assert.False(t, mr.Exists("rental:unit:unit-1:"))
}

func TestUnitCache_TTLExpiry(t *testing.T) {
	mr, store, c := setupCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = c.Get(ctx, "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)
}

func TestUnitCache_Invalidate(t *testing.T) {
	mr, store, c := setupCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)

	c.Invalidate(ctx, "unit-1", "unit-9")
	assert.False(t, mr.Exists("rental:unit:unit-1:"))

	_, err = c.Get(ctx, "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)
}

func TestUnitCache_CorruptSnapshotFallsBack(t *testing.T) {
	mr, store, c := setupCache(t)
	require.NoError(t, mr.Set("rental:unit:unit-1:", "{not json"))

	u, err := c.Get(context.Background(), "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, "unit-1", u.ID)
	assert.Equal(t, 1, store.reads)
}

func TestUnitCache_RedisDownFallsBack(t *testing.T) {
	mr, store, c := setupCache(t)
	mr.Close()

	u, err := c.Get(context.Background(), "unit-1", "", Hint{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, "unit-1", u.ID)
	assert.Equal(t, 1, store.reads)
}

func TestUnitCache_NotFound(t *testing.T) {
	_, _, c := setupCache(t)
	_, err := c.Get(context.Background(), "missing", "", Hint{UseCache: true})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRedisKVStore_SetNX(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	kv := NewRedisKVStore(client)
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "k", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
