package jobs

import (
	"context"
	"log"
	"time"

	"kairos/server/internal/metrics"
)

type SessionPurger interface {
	DeleteExpiredSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartSessionSweep periodically purges session records that expired more
// than gracePeriod ago. Validation already treats expired sessions as
// invalid; the sweep only reclaims storage. An interval of zero disables it.
func StartSessionSweep(ctx context.Context, sessions SessionPurger, interval, gracePeriod time.Duration) {
	if interval <= 0 {
		return
	}
	if gracePeriod < 0 {
		gracePeriod = 0
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				purged, err := sessions.DeleteExpiredSessionsBefore(tickCtx, time.Now().UTC().Add(-gracePeriod))
				cancel()
				if err != nil {
					log.Printf("session sweep error: %v", err)
					continue
				}
				if purged > 0 {
					metrics.SessionsSwept.Add(float64(purged))
					log.Printf("session sweep purged %d expired sessions", purged)
				}
			}
		}
	}()
}
