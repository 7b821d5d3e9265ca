package scheduler

import (
	"context"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
)

// reapLocked purges terminal tasks past their retention: succeeded tasks
// once routed and older than SucceededGrace, failed tasks older than
// FailedRetention, canceled tasks at once.
func (s *Scheduler) reapLocked(ctx context.Context) {
	now := s.now()

	expired := func(t models.UploadTask) bool {
		switch t.State {
		case models.StateSucceeded:
			return !t.NeedsRouting && !s.routing[t.ID] && now.Sub(t.CompletedAt) >= s.cfg.SucceededGrace
		case models.StateFailed:
			return now.Sub(t.CompletedAt) >= s.cfg.FailedRetention
		case models.StateCanceled:
			return true
		}
		return false
	}

	for _, t := range s.reg.List(expired) {
		s.removeLocked(t)
		s.log.Debug(ctx, "task purged", "task_id", t.ID, "state", t.State)
	}
}

// claimRoutesLocked returns the succeeded tasks that still need routing and
// are not being routed already.
func (s *Scheduler) claimRoutesLocked() []models.UploadTask {
	if s.router == nil {
		return nil
	}

	pending := s.reg.List(func(t models.UploadTask) bool {
		return t.State == models.StateSucceeded && t.NeedsRouting && !s.routing[t.ID]
	})
	for _, t := range pending {
		s.routing[t.ID] = true
	}
	return pending
}

// route runs the router for t and records the outcome. The flag is given up
// after MaxRouteAttempts failures so the task can be purged.
func (s *Scheduler) route(t models.UploadTask) {
	err := s.router.Route(s.base, t)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routing, t.ID)

	updated, uerr := s.reg.Update(t.ID, func(t *models.UploadTask) error {
		if err == nil {
			t.NeedsRouting = false
			return nil
		}
		t.RouteAttempts++
		if t.RouteAttempts >= s.cfg.MaxRouteAttempts {
			t.NeedsRouting = false
		}
		return nil
	})
	if uerr != nil {
		return
	}

	switch {
	case err == nil:
		s.log.Debug(s.base, "routing done", "task_id", t.ID)
	case updated.NeedsRouting:
		s.log.Warn(s.base, "routing failed, will retry", "task_id", t.ID, "attempt", updated.RouteAttempts, "error", err)
	default:
		s.log.Error(s.base, "routing abandoned", "task_id", t.ID, "attempts", updated.RouteAttempts, "error", err)
	}
}
