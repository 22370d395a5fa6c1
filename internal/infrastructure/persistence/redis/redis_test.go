package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/pkg/circuitbreaker"
)

type fakeStore struct {
	data    map[string][]byte
	getErr  error
	sets    int
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Get(_ context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.sets++
	f.data[key] = raw
	return nil
}

func (f *fakeStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

type countingCatalog struct {
	badges []badge.Badge
	calls  int
}

func (c *countingCatalog) ListBadges(context.Context) ([]badge.Badge, error) {
	c.calls++
	return c.badges, nil
}

func TestCatalogCache_ReadThrough(t *testing.T) {
	store := newFakeStore()
	source := &countingCatalog{badges: []badge.Badge{
		{ID: "first-steps", Name: "First Steps", RequirementType: badge.RequirementModulesCompleted, RequirementValue: 1},
	}}
	cache := NewCatalogCache(store, source, time.Minute, nil)
	ctx := context.Background()

	first, err := cache.ListBadges(ctx)
	require.NoError(t, err)
	second, err := cache.ListBadges(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, store.sets)

	require.NoError(t, cache.Invalidate(ctx))
	_, err = cache.ListBadges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestCatalogCache_FallsBackOnRedisError(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	source := &countingCatalog{badges: []badge.Badge{{ID: "on-fire"}}}
	cache := NewCatalogCache(store, source, 0, nil)

	badges, err := cache.ListBadges(context.Background())
	require.NoError(t, err)
	assert.Len(t, badges, 1)
	assert.Equal(t, 1, source.calls)
}

type recordingPublisher struct {
	channel string
	message interface{}
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, message interface{}) error {
	r.channel = channel
	r.message = message
	return nil
}

func TestEventPublisher_Publish(t *testing.T) {
	rec := &recordingPublisher{}
	pub := NewEventPublisher(rec, 0)

	event := shared.NewBadgeEarnedEvent("u-1", "first-steps", "First Steps", time.Now())
	require.NoError(t, pub.Publish(event))

	assert.Equal(t, "events:badge.earned", rec.channel)
	env, ok := rec.message.(shared.EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, shared.EventBadgeEarned, env.Type)
	assert.Equal(t, "u-1", env.AggregateID)
	assert.NotEmpty(t, env.ID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "first-steps", payload["badge_id"])
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, "events:progress.level_up", PubSubChannel(string(shared.EventLevelUp)))
}

// unreachableCache points at a port nothing listens on, so every call fails fast.
func unreachableCache(threshold int) *Cache {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return &Cache{
		client: client,
		prefix: "test:",
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:             "redis",
			FailureThreshold: threshold,
			Cooldown:         time.Hour,
			IsFailure:        isConnectionFailure,
		}),
	}
}

func TestCache_BreakerStopsCallingDeadRedis(t *testing.T) {
	cache := unreachableCache(2)
	defer cache.Close()
	ctx := context.Background()

	var dest []badge.Badge
	for i := 0; i < 2; i++ {
		err := cache.Get(ctx, KeyBadgeCatalog, &dest)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
	}

	err := cache.Set(ctx, KeyBadgeCatalog, []badge.Badge{}, time.Minute)
	assert.ErrorIs(t, err, ErrCacheConnection)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, cache.Publish(ctx, "events:x", map[string]string{}), ErrCacheConnection)
}

func TestCache_LocalErrorsDoNotTripBreaker(t *testing.T) {
	cache := unreachableCache(1)
	defer cache.Close()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cache.Get(context.Background(), "", nil), ErrCacheKeyEmpty)
		assert.ErrorIs(t, cache.Set(context.Background(), "k", func() {}, time.Minute), ErrCacheSerialization)
	}
	assert.Equal(t, circuitbreaker.StateClosed, cache.breaker.State())
}

func TestCatalogCache_ServesSourceWhileRedisIsDown(t *testing.T) {
	source := &countingCatalog{badges: badge.DefaultCatalog()}
	cc := NewCatalogCache(unreachableCache(1), source, time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := cc.ListBadges(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, len(badge.DefaultCatalog()))
	}
	assert.Equal(t, 3, source.calls)
}
