package ports

import (
	"context"
	"time"
)

// ReplayGuard remembers consumed challenge signatures
type ReplayGuard interface {
	// Consume marks key as used for ttl. It returns false if key was
	// already consumed and has not expired.
	Consume(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
