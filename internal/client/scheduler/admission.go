package scheduler

import (
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
	"github.com/dmitrijs2005/docuploader/internal/filex"
)

func (s *Scheduler) runningLocked() int {
	return len(s.reg.List(func(t models.UploadTask) bool { return t.State == models.StateRunning }))
}

func (s *Scheduler) hasSlotLocked() bool {
	return s.monitor.Online() && s.runningLocked() < s.cfg.MaxConcurrent
}

// admitLocked promotes queued tasks in FIFO order while slots are free and
// the network is up. Tasks waiting for a retry keep their place until due.
// Each task is tried at most once per pass; one that fails to start again
// goes to the back of the queue.
func (s *Scheduler) admitLocked(later *deferred) {
	if !s.monitor.Online() {
		return
	}

	now := s.now()
	running := s.runningLocked()
	pending := s.queue
	s.queue = nil

	var waiting []string
	for i, id := range pending {
		if running >= s.cfg.MaxConcurrent {
			waiting = append(waiting, pending[i:]...)
			break
		}

		t, ok := s.reg.Get(id)
		if !ok || t.State != models.StateQueued {
			continue
		}
		if !due(t, now) {
			waiting = append(waiting, id)
			continue
		}
		if s.startLocked(t, later) {
			running++
		}
	}
	s.queue = append(waiting, s.queue...)
}

// startLocked moves t to running, resuming its retained handle or opening a
// new one. It reports whether the task took a slot.
func (s *Scheduler) startLocked(t models.UploadTask, later *deferred) bool {
	if h, ok := s.handles[t.ID]; ok {
		err := s.exec.Resume(h)
		if err == nil {
			s.markRunningLocked(t.ID)
			return true
		}
		s.log.Warn(s.base, "retained handle unusable, reopening", "task_id", t.ID, "error", err)
		s.dropHandleLocked(t.ID)
	}

	h, err := s.exec.Start(s.base, t, &sink{s: s, id: t.ID})
	if err != nil {
		s.log.Warn(s.base, "transfer did not start", "task_id", t.ID, "error", err)
		s.failLocked(t.ID, err, transfer.Classify(err), later)
		return false
	}
	s.handles[t.ID] = h
	s.markRunningLocked(t.ID)
	return true
}

func (s *Scheduler) markRunningLocked(id string) {
	t, err := s.reg.Update(id, func(t *models.UploadTask) error {
		t.State = models.StateRunning
		t.PauseReason = models.PauseNone
		t.NextRetryAt = time.Time{}
		t.StartedAt = s.now()
		return nil
	})
	if err != nil {
		s.log.Error(s.base, "failed to mark task running", "task_id", id, "error", err)
		return
	}
	s.publishState(t)
	s.log.Info(s.base, "upload started", "task_id", id, "offset", t.BytesTransferred, "retry", t.RetryCount)
}

// requeueWaitingLocked moves tasks paused for one of reasons back into the
// queue. They are put in front since they held a slot before.
func (s *Scheduler) requeueWaitingLocked(reasons ...models.PauseReason) {
	match := func(t models.UploadTask) bool {
		if t.State != models.StatePaused {
			return false
		}
		for _, r := range reasons {
			if t.PauseReason == r {
				return true
			}
		}
		return false
	}

	var front []string
	for _, t := range s.reg.List(match) {
		t, err := s.reg.Update(t.ID, func(t *models.UploadTask) error {
			t.State = models.StateQueued
			t.PauseReason = models.PauseNone
			return nil
		})
		if err != nil {
			continue
		}
		s.publishState(t)
		front = append(front, t.ID)
	}
	if len(front) > 0 {
		s.queue = append(front, s.queue...)
	}
}

func (s *Scheduler) dequeueLocked(id string) {
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// dropHandleLocked forgets the task's handle and aborts it in the
// background. Events still arriving from it are ignored.
func (s *Scheduler) dropHandleLocked(id string) {
	h, ok := s.handles[id]
	if !ok {
		return
	}
	delete(s.handles, id)
	s.exec.Cancel(id, h)
}

// removeLocked deletes a terminal task and its restored payload copy.
func (s *Scheduler) removeLocked(t models.UploadTask) {
	if err := s.reg.Remove(t.ID); err != nil {
		s.log.Warn(s.base, "failed to remove task", "task_id", t.ID, "error", err)
		return
	}
	s.telemetry.Forget(t.ID)
	s.releasePayload(t)
}

func (s *Scheduler) releasePayload(t models.UploadTask) {
	if s.cfg.SpoolDir == "" || t.Payload.Path == "" {
		return
	}
	if err := filex.RemoveIfUnder(s.cfg.SpoolDir, t.Payload.Path); err != nil {
		s.log.Warn(s.base, "failed to remove spooled payload", "task_id", t.ID, "error", err)
	}
}

// onNetwork pauses running tasks when connectivity is lost and requeues the
// tasks it paused when it comes back. User pauses are left alone.
func (s *Scheduler) onNetwork(wasOnline, isOnline bool) {
	var later deferred

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if !isOnline {
		running := s.reg.List(func(t models.UploadTask) bool { return t.State == models.StateRunning })
		for _, t := range running {
			if h, ok := s.handles[t.ID]; ok {
				if err := s.exec.Pause(h); err != nil {
					s.dropHandleLocked(t.ID)
				}
			}
			t, err := s.reg.Update(t.ID, func(t *models.UploadTask) error {
				t.State = models.StatePaused
				t.PauseReason = models.PauseConnectivity
				return nil
			})
			if err != nil {
				continue
			}
			s.publishState(t)
		}
		s.log.Warn(s.base, "offline, transfers paused", "count", len(running))
	} else {
		s.requeueWaitingLocked(models.PauseConnectivity)
		s.admitLocked(&later)
		s.log.Info(s.base, "online, transfers resumed")
	}
	s.mu.Unlock()

	later.run()
}

func (s *Scheduler) publishState(t models.UploadTask) {
	s.bus.Publish(events.Event{
		Kind:    events.KindState,
		TaskID:  t.ID,
		OwnerID: t.OwnerID,
		State:   t.State,
		Err:     t.LastError,
		At:      s.now(),
	})
}
