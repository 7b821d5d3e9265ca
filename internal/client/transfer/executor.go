package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/logging"
)

// Sink receives the forwarded events of one handle, in order. OnSuccess and
// OnFailure are terminal; nothing follows them.
type Sink interface {
	OnProgress(h Handle, bytes, total int64, resumeToken string)
	OnSuccess(h Handle, reference string)
	OnFailure(h Handle, err error, category Category)
}

type Executor struct {
	svc Service
	log logging.Logger
}

func NewExecutor(svc Service, log logging.Logger) *Executor {
	return &Executor{svc: svc, log: log.With("component", "executor")}
}

// Start opens a handle continuing from the task's offset and token, starts
// it and forwards its events to sink until a terminal event or until the
// stream closes. ctx bounds the whole transfer, not just the call.
func (e *Executor) Start(ctx context.Context, task models.UploadTask, sink Sink) (Handle, error) {
	h, err := e.svc.Open(ctx, Request{
		TaskID:      task.ID,
		RemotePath:  task.RemotePath,
		Payload:     task.Payload,
		Offset:      task.BytesTransferred,
		ResumeToken: task.ResumeToken,
	})
	if err != nil {
		return nil, fmt.Errorf("open transfer: %w", err)
	}

	if err := h.Start(ctx); err != nil {
		_ = h.Cancel()
		return nil, fmt.Errorf("start transfer: %w", err)
	}

	go e.forward(ctx, task.ID, h, sink)

	e.log.Debug(ctx, "transfer started", "task_id", task.ID, "offset", task.BytesTransferred)
	return h, nil
}

func (e *Executor) Pause(h Handle) error {
	if err := h.Pause(); err != nil {
		return fmt.Errorf("pause transfer: %w", err)
	}
	return nil
}

func (e *Executor) Resume(h Handle) error {
	if err := h.Resume(); err != nil {
		return fmt.Errorf("resume transfer: %w", err)
	}
	return nil
}

// Cancel aborts h in the background. Abort failures are only logged: the
// task is gone either way.
func (e *Executor) Cancel(taskID string, h Handle) {
	go func() {
		if err := h.Cancel(); err != nil && !errors.Is(err, ErrHandleClosed) {
			e.log.Warn(context.Background(), "abort failed", "task_id", taskID, "error", err)
		}
	}()
}

func (e *Executor) forward(ctx context.Context, taskID string, h Handle, sink Sink) {
	for ev := range h.Events() {
		switch ev.Kind {
		case EventProgress:
			sink.OnProgress(h, ev.Bytes, ev.Total, ev.ResumeToken)

		case EventCompleted:
			ref, err := h.AccessReference(ctx)
			if err != nil {
				err = fmt.Errorf("access reference: %w", err)
				sink.OnFailure(h, err, Classify(err))
				return
			}
			sink.OnSuccess(h, ref)
			return

		case EventFailed:
			err := ev.Err
			if err == nil {
				err = errors.New("transfer failed")
			}
			sink.OnFailure(h, err, Classify(err))
			return

		default:
			e.log.Warn(ctx, "unknown transfer event", "task_id", taskID, "kind", ev.Kind)
		}
	}
}
