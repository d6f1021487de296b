package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/domain/providers"
)

// CacheInvalidationService drops cached dashboard snapshots when queue or
// pool events arrive over the bus. Local mutations already invalidate
// directly; this covers mutations published by other instances sharing the
// same Redis.
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for queue and pool events.
func (s *CacheInvalidationService) Start() error {
	queueEvents, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelQueueUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to queue updates: %w", err)
	}
	poolEvents, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelPoolUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to pool updates: %w", err)
	}

	go s.processEvents(queueEvents)
	go s.processEvents(poolEvents)
	log.Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	log.Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(events <-chan *entities.QueueEvent) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-events:
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

// handleEvent drops the dashboard snapshot and the status snapshot of the
// department the event belongs to. Per-entry estimates are computed on
// demand and never cached, so nothing else needs invalidating.
func (s *CacheInvalidationService) handleEvent(event *entities.QueueEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.Delete(ctx, providers.CacheKeyDashboard); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("failed to invalidate dashboard cache")
	}

	if event.Department == "" {
		return
	}
	key := providers.GetDepartmentStatusKey(event.Department)
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("department", event.Department).Msg("failed to invalidate department status cache")
	}
}
