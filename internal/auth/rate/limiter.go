package rate

import (
	"context"
	"time"
)

// Limiter throttles login attempts per client key (normally the caller IP).
// A denied attempt surfaces as the generic unauthorized response so the
// limiter cannot be used to probe which accounts exist.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}
