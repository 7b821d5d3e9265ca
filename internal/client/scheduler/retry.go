package scheduler

import (
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/sethvargo/go-retry"
)

// retryDelay returns the wait before retry attempt n, counted from 1. It
// depends on n alone, so recovered tasks keep the same progression.
func (s *Scheduler) retryDelay(n int) time.Duration {
	b := retry.WithCappedDuration(s.cfg.MaxRetryDelay, retry.NewExponential(s.cfg.RetryDelay))

	var d time.Duration
	for i := 0; i < n; i++ {
		d, _ = b.Next()
	}
	return d
}

func due(t models.UploadTask, now time.Time) bool {
	return t.NextRetryAt.IsZero() || !t.NextRetryAt.After(now)
}
