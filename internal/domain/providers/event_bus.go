package providers

import (
	"context"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.QueueEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event types
const (
	// EventChannelQueueUpdates is the channel for all queue updates
	EventChannelQueueUpdates = "queue:updates"

	// EventChannelQueuePrefix is the prefix for department-specific channels
	EventChannelQueuePrefix = "queue:"

	// EventChannelPoolUpdates is the channel for spare pool updates
	EventChannelPoolUpdates = "pool:updates"
)

// GetDepartmentChannel returns the channel name for a specific department
func GetDepartmentChannel(department string) string {
	return EventChannelQueuePrefix + department
}
