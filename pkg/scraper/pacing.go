package scraper

import (
	"context"
	"time"
)

// pause waits d or until ctx is done, whichever comes first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextRotation reports whether a worker with failures consecutive
// failures has to swap its relay, given it last swapped at rotatedAt.
func nextRotation(failures, failLimit, rotatedAt int) bool {
	if failures <= 0 || failLimit <= 0 {
		return false
	}
	return failures%failLimit == 0 && failures != rotatedAt
}
