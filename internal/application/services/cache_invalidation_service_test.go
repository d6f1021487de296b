package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/domain/providers"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

type fakeEventBus struct {
	mu        sync.Mutex
	published map[string][]*entities.QueueEvent
	channels  map[string]chan *entities.QueueEvent
}

func newFakeEventBus() *fakeEventBus {
	return &fakeEventBus{
		published: make(map[string][]*entities.QueueEvent),
		channels:  make(map[string]chan *entities.QueueEvent),
	}
}

func (b *fakeEventBus) Publish(ctx context.Context, channel string, event *entities.QueueEvent) error {
	b.mu.Lock()
	b.published[channel] = append(b.published[channel], event)
	ch := b.channels[channel]
	b.mu.Unlock()

	if ch != nil {
		ch <- event
	}
	return nil
}

func (b *fakeEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *entities.QueueEvent, 16)
	b.channels[channel] = ch
	return ch, nil
}

func (b *fakeEventBus) Unsubscribe(ctx context.Context, channel string) error {
	return nil
}

func (b *fakeEventBus) Close() error { return nil }

func (b *fakeEventBus) publishedOn(channel string) []*entities.QueueEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*entities.QueueEvent(nil), b.published[channel]...)
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, apperrors.NewNotFoundError("cache miss: " + key)
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

func (c *fakeCache) deletedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

func TestCacheInvalidation_DropsDashboardAndDepartmentKeys(t *testing.T) {
	bus := newFakeEventBus()
	cache := newFakeCache()
	cache.data[providers.CacheKeyDashboard] = []byte("stale")
	cache.data[providers.GetDepartmentStatusKey("cardiology")] = []byte("stale")

	svc := NewCacheInvalidationService(cache, bus)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	err := bus.Publish(context.Background(), providers.EventChannelQueueUpdates,
		entities.NewQueueEvent("cardiology", entities.QueueEventTypeCheckIn, nil))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		keys := cache.deletedKeys()
		hasDashboard, hasDept := false, false
		for _, k := range keys {
			if k == providers.CacheKeyDashboard {
				hasDashboard = true
			}
			if k == providers.GetDepartmentStatusKey("cardiology") {
				hasDept = true
			}
		}
		return hasDashboard && hasDept
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheInvalidation_PoolEventDropsDashboard(t *testing.T) {
	bus := newFakeEventBus()
	cache := newFakeCache()
	cache.data[providers.CacheKeyDashboard] = []byte("stale")

	svc := NewCacheInvalidationService(cache, bus)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	err := bus.Publish(context.Background(), providers.EventChannelPoolUpdates,
		entities.NewQueueEvent("general", entities.QueueEventTypeDoctorAssigned, nil))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		exists, _ := cache.Exists(context.Background(), providers.CacheKeyDashboard)
		return !exists
	}, 2*time.Second, 10*time.Millisecond)
}
