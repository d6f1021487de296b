package repositories

import (
	"context"
	"time"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
)

// ActivityRepository defines the interface for durable activity log storage.
type ActivityRepository interface {
	// CreateActivity persists one activity log entry.
	CreateActivity(ctx context.Context, entry *entities.ActivityEntry) error

	// CreateOverride persists one emergency override audit record.
	CreateOverride(ctx context.Context, entry *entities.OverrideEntry) error

	// ListActivities returns entries recorded in [from, to), newest first,
	// capped at limit.
	ListActivities(ctx context.Context, from, to time.Time, limit int) ([]*entities.ActivityEntry, error)

	// ListOverrides returns override records for a department, newest
	// first, capped at limit. An empty department matches all.
	ListOverrides(ctx context.Context, department string, limit int) ([]*entities.OverrideEntry, error)
}
