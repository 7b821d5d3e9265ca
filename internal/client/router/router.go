// Package router performs the follow-up of a succeeded upload according to
// the context the upload was submitted with.
//
// Every branch checks whether its side effect is already in place before
// acting, so routing the same task twice changes nothing the second time.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/notifications"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/records"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
	"github.com/dmitrijs2005/docuploader/internal/logging"
)

type Publisher interface {
	Publish(e events.Event)
}

type Router struct {
	records       records.Repository
	deleter       transfer.ObjectDeleter
	notifications notifications.Repository
	bus           Publisher
	log           logging.Logger
	now           func() time.Time
}

// New builds a router. deleter may be nil, in which case superseded objects
// are left in place.
func New(recs records.Repository, deleter transfer.ObjectDeleter, notes notifications.Repository, bus Publisher, log logging.Logger) *Router {
	return &Router{
		records:       recs,
		deleter:       deleter,
		notifications: notes,
		bus:           bus,
		log:           log.With("component", "router"),
		now:           time.Now,
	}
}

// Route applies the side effect of task.Context. The task must have
// succeeded and carry its reference.
func (r *Router) Route(ctx context.Context, task models.UploadTask) error {
	if task.State != models.StateSucceeded || task.Reference == "" {
		return fmt.Errorf("route %s: task is %s without reference", task.ID, task.State)
	}

	var err error
	switch task.Context.Kind {
	case models.KindArticleField:
		err = r.articleField(ctx, task)
	case models.KindAutoAttach:
		err = r.autoAttach(ctx, task)
	case models.KindProfilePicture:
		err = r.profilePicture(ctx, task)
	case models.KindGenericAttachment:
		err = r.genericAttachment(ctx, task)
	default:
		err = fmt.Errorf("%w: unknown kind %q", models.ErrInvalidContext, task.Context.Kind)
	}
	if err != nil {
		return fmt.Errorf("route %s (%s): %w", task.ID, task.Context.Kind, err)
	}

	r.log.Info(ctx, "task routed", "task_id", task.ID, "kind", task.Context.Kind)
	return nil
}

func (r *Router) articleField(ctx context.Context, task models.UploadTask) error {
	c := task.Context
	a, err := r.records.Article(ctx, c.RecordID)
	if err != nil {
		return fmt.Errorf("load article %s: %w", c.RecordID, err)
	}

	prev := a.Fields[c.Field]
	if prev == task.Reference {
		return nil
	}
	if a.Fields == nil {
		a.Fields = make(map[string]string)
	}
	a.Fields[c.Field] = task.Reference

	if err := r.records.SaveArticle(ctx, a); err != nil {
		return fmt.Errorf("save article %s: %w", c.RecordID, err)
	}

	r.deleteSuperseded(ctx, task.ID, prev)
	return nil
}

func (r *Router) autoAttach(ctx context.Context, task models.UploadTask) error {
	c := task.Context
	a, err := r.records.Article(ctx, c.RecordID)
	if err != nil {
		return fmt.Errorf("load article %s: %w", c.RecordID, err)
	}

	for _, att := range a.Attachments {
		if att.Reference == task.Reference {
			return nil
		}
	}
	a.Attachments = append(a.Attachments, models.Attachment{
		Name:       task.OriginalFileName,
		Reference:  task.Reference,
		RemotePath: task.RemotePath,
		Size:       task.TotalBytes,
	})
	a.Draft = true

	if err := r.records.SaveArticle(ctx, a); err != nil {
		return fmt.Errorf("save article %s: %w", c.RecordID, err)
	}
	return nil
}

func (r *Router) profilePicture(ctx context.Context, task models.UploadTask) error {
	c := task.Context
	u, err := r.records.User(ctx, c.RecordID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", c.RecordID, err)
	}

	prev := u.PictureRef
	if prev == task.Reference {
		return nil
	}
	u.PictureRef = task.Reference

	if err := r.records.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("save user %s: %w", c.RecordID, err)
	}

	r.deleteSuperseded(ctx, task.ID, prev)
	return nil
}

func (r *Router) genericAttachment(ctx context.Context, task models.UploadTask) error {
	n := &models.Notification{
		ID:         task.ID,
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		FileName:   task.OriginalFileName,
		Reference:  task.Reference,
		RemotePath: task.RemotePath,
		CreatedAt:  r.now(),
	}
	if err := r.notifications.Add(ctx, n); err != nil {
		return err
	}

	r.bus.Publish(events.Event{
		Kind:    events.KindNotification,
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		State:   task.State,
		Result:  models.Result{Reference: task.Reference, RemotePath: task.RemotePath},
		At:      n.CreatedAt,
	})
	return nil
}

// deleteSuperseded is best-effort; failures are only logged.
func (r *Router) deleteSuperseded(ctx context.Context, taskID, ref string) {
	if ref == "" || r.deleter == nil {
		return
	}
	if err := r.deleter.DeleteReference(ctx, ref); err != nil {
		r.log.Warn(ctx, "failed to delete superseded object", "task_id", taskID, "reference", ref, "error", err)
		return
	}
	r.log.Debug(ctx, "superseded object deleted", "task_id", taskID, "reference", ref)
}
