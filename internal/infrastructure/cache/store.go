package cache

import (
	"context"
	"time"
)

// Store keeps short-lived string values such as reprocess run progress.
// An expiration of zero keeps the value until it is deleted, as in Redis.
type Store interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Get reports false for missing or expired keys
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}
