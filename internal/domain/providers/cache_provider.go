package providers

import (
	"context"
	"time"
)

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Cache key prefixes for queue state snapshots.
const (
	CacheKeyDepartmentStatus = "status:"
	CacheKeyDashboard        = "dashboard"
)

// GetDepartmentStatusKey returns the cache key for a department status snapshot
func GetDepartmentStatusKey(department string) string {
	return CacheKeyDepartmentStatus + department
}
