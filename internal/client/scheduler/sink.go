package scheduler

import (
	"errors"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/telemetry"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
)

var errStale = errors.New("task no longer accepts transfer events")

// sink receives the events of one task's handles. Events from a handle the
// scheduler no longer holds for the task are dropped.
type sink struct {
	s  *Scheduler
	id string
}

func (k *sink) current(h transfer.Handle) bool {
	cur, ok := k.s.handles[k.id]
	return ok && cur == h
}

func (k *sink) OnProgress(h transfer.Handle, bytes, total int64, resumeToken string) {
	s := k.s
	now := s.now()

	s.mu.Lock()
	if !k.current(h) {
		s.mu.Unlock()
		return
	}

	t, err := s.reg.Update(k.id, func(t *models.UploadTask) error {
		if t.State.IsTerminal() {
			return errStale
		}
		if bytes < 0 {
			bytes = 0
		}
		if bytes > t.TotalBytes {
			bytes = t.TotalBytes
		}
		t.BytesTransferred = bytes
		if resumeToken != "" {
			t.ResumeToken = resumeToken
		}
		t.LastProgressAt = now
		return nil
	})
	if err != nil {
		s.mu.Unlock()
		return
	}
	cb, _ := s.reg.Callbacks(k.id)
	s.mu.Unlock()

	stats := s.telemetry.Observe(k.id, telemetry.Sample{Bytes: t.BytesTransferred, At: now}, t.TotalBytes)
	p := models.Progress{
		BytesTransferred: t.BytesTransferred,
		TotalBytes:       t.TotalBytes,
		Percentage:       stats.Percentage,
		Speed:            stats.Speed,
		ETASeconds:       stats.ETASeconds,
		State:            t.State,
	}

	s.bus.Publish(events.Event{Kind: events.KindProgress, TaskID: k.id, OwnerID: t.OwnerID, State: t.State, Progress: p, At: now})
	if cb.OnProgress != nil {
		cb.OnProgress(k.id, p)
	}
}

func (k *sink) OnSuccess(h transfer.Handle, reference string) {
	s := k.s

	s.mu.Lock()
	if !k.current(h) {
		s.mu.Unlock()
		return
	}
	delete(s.handles, k.id)

	cb, _ := s.reg.Callbacks(k.id)
	bound := cb.OnComplete != nil

	t, err := s.reg.Update(k.id, func(t *models.UploadTask) error {
		if t.State.IsTerminal() {
			return errStale
		}
		t.State = models.StateSucceeded
		t.PauseReason = models.PauseNone
		t.Reference = reference
		t.BytesTransferred = t.TotalBytes
		t.CompletedAt = s.now()
		t.NeedsRouting = !bound
		return nil
	})
	s.kickLocked()
	s.mu.Unlock()

	if err != nil {
		return
	}
	s.telemetry.Forget(k.id)
	s.releasePayload(t)

	result := models.Result{Reference: t.Reference, RemotePath: t.RemotePath}
	s.log.Info(s.base, "upload succeeded", "task_id", k.id, "reference", reference, "needs_routing", t.NeedsRouting)
	s.bus.Publish(events.Event{Kind: events.KindCompleted, TaskID: k.id, OwnerID: t.OwnerID, State: t.State, Result: result, At: t.CompletedAt})
	if bound {
		cb.OnComplete(k.id, result, nil)
	}
}

func (k *sink) OnFailure(h transfer.Handle, err error, category transfer.Category) {
	s := k.s
	var later deferred

	s.mu.Lock()
	if !k.current(h) {
		s.mu.Unlock()
		return
	}
	delete(s.handles, k.id)

	if category == transfer.CategoryCanceled && s.base.Err() != nil {
		// Shutting down; the task stays running and is recovered as paused.
		s.mu.Unlock()
		return
	}

	s.failLocked(k.id, err, category, &later)
	s.kickLocked()
	s.mu.Unlock()

	later.run()
}

// failLocked retries a retryable failure by requeueing the task from its
// current offset, or makes the failure terminal. While offline a retryable
// failure is a connectivity pause and costs no retry.
func (s *Scheduler) failLocked(id string, cause error, category transfer.Category, later *deferred) {
	t, ok := s.reg.Get(id)
	if !ok || t.State.IsTerminal() {
		return
	}

	if category.Retryable() && !s.monitor.Online() {
		t, err := s.reg.Update(id, func(t *models.UploadTask) error {
			t.State = models.StatePaused
			t.PauseReason = models.PauseConnectivity
			return nil
		})
		if err == nil {
			s.publishState(t)
		}
		s.log.Warn(s.base, "transfer failed while offline", "task_id", id, "error", cause)
		return
	}

	if category.Retryable() && t.RetryCount < s.cfg.MaxRetries {
		t, err := s.reg.Update(id, func(t *models.UploadTask) error {
			t.State = models.StatePaused
			t.PauseReason = models.PauseRetry
			t.RetryCount++
			t.NextRetryAt = s.now().Add(s.retryDelay(t.RetryCount))
			return nil
		})
		if err != nil {
			return
		}
		s.publishState(t)
		s.log.Warn(s.base, "transfer failed, retrying", "task_id", id, "category", category, "retry", t.RetryCount, "next_at", t.NextRetryAt, "error", cause)

		t, err = s.reg.Update(id, func(t *models.UploadTask) error {
			t.State = models.StateQueued
			t.PauseReason = models.PauseNone
			return nil
		})
		if err != nil {
			return
		}
		s.queue = append(s.queue, id)
		s.publishState(t)
		return
	}

	t, err := s.reg.Update(id, func(t *models.UploadTask) error {
		t.State = models.StateFailed
		t.PauseReason = models.PauseNone
		t.LastError = cause.Error()
		t.CompletedAt = s.now()
		return nil
	})
	if err != nil {
		return
	}
	s.telemetry.Forget(id)
	s.releasePayload(t)

	s.log.Error(s.base, "upload failed", "task_id", id, "category", category, "retries", t.RetryCount, "error", cause)
	s.bus.Publish(events.Event{Kind: events.KindFailed, TaskID: id, OwnerID: t.OwnerID, State: t.State, Err: t.LastError, At: t.CompletedAt})

	if cb, ok := s.reg.Callbacks(id); ok && cb.OnComplete != nil {
		later.add(func() { cb.OnComplete(id, models.Result{}, cause) })
	}
}
