package service

import (
	"context"
	"math/rand"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/logger"

	"go.uber.org/zap"
)

// conflictRetry re-runs version-guarded attempt writes that lost a race.
type conflictRetry struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func defaultConflictRetry() conflictRetry {
	return conflictRetry{
		MaxAttempts:  5,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
	}
}

// do calls op until it returns something other than CONCURRENT_UPDATE or the
// attempts run out. op must re-read whatever it writes.
func (r conflictRetry) do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := r.InitialDelay
	var err error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if err = op(ctx); err == nil || !domain.HasCode(err, domain.ErrConcurrentUpdate) {
			return err
		}
		if attempt == r.MaxAttempts {
			break
		}

		// 10% jitter
		wait := delay + time.Duration(rand.Int63n(int64(delay)/10+1))
		logger.Get().Debug("Attempt write conflicted, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}
	return err
}
