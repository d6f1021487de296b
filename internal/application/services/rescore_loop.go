package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RescoreLoop drives the periodic re-scoring tick. Every interval it
// recomputes wait-based priorities across all queues and then lets the
// allocator react to any sustained overload the rescore surfaced.
type RescoreLoop struct {
	queues    *QueueService
	allocator *AllocatorService
	interval  time.Duration
}

// NewRescoreLoop creates the loop.
func NewRescoreLoop(queues *QueueService, allocator *AllocatorService, interval time.Duration) *RescoreLoop {
	return &RescoreLoop{
		queues:    queues,
		allocator: allocator,
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled, ticking at the configured interval.
// Call it from its own goroutine.
func (l *RescoreLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", l.interval).Msg("rescore loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("rescore loop stopped")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *RescoreLoop) tick(ctx context.Context) {
	rescored := l.queues.RescoreAll(ctx)
	log.Debug().Int("entries", rescored).Msg("queues re-scored")

	if l.allocator == nil {
		return
	}
	summary, err := l.allocator.AutoAllocate(ctx, "")
	if err != nil {
		log.Error().Err(err).Msg("auto-allocation tick failed")
		return
	}
	if summary.ActionsTaken > 0 {
		log.Info().
			Int("actions", summary.ActionsTaken).
			Int("assigned", summary.DoctorsAssigned).
			Int("released", summary.DoctorsReleased).
			Msg("auto-allocation executed")
	}
}
