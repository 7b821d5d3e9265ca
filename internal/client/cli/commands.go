package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/scheduler"
	"github.com/dmitrijs2005/docuploader/internal/common"
)

var ErrUsage = errors.New("usage")

// folders maps an upload context to the top-level remote folder.
var folders = map[models.ContextKind]string{
	models.KindArticleField:      "articles",
	models.KindAutoAttach:        "articles",
	models.KindProfilePicture:    "avatars",
	models.KindGenericAttachment: "files",
}

func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: upload <path> <kind> [record] [field]", ErrUsage)
	}

	uc, err := models.ParseContext(args[1], args[2:]...)
	if err != nil {
		return err
	}

	id, err := a.uploader.Submit(ctx, scheduler.SubmitRequest{
		Path:    args[0],
		OwnerID: a.owner,
		Folder:  folders[uc.Kind],
		GroupID: uc.RecordID,
		Context: uc,
	})
	if err != nil {
		return err
	}

	t, _ := a.uploader.Status(id)
	fmt.Fprintf(a.out, "%s %s -> %s\n", id, t.State, t.RemotePath)
	return nil
}

func (a *App) Pause(ctx context.Context, args []string) error {
	id, err := oneID("pause", args)
	if err != nil {
		return err
	}
	return a.uploader.Pause(id)
}

func (a *App) Resume(ctx context.Context, args []string) error {
	id, err := oneID("resume", args)
	if err != nil {
		return err
	}
	return a.uploader.Resume(id)
}

func (a *App) Cancel(ctx context.Context, args []string) error {
	id, err := oneID("cancel", args)
	if err != nil {
		return err
	}
	return a.uploader.Cancel(id)
}

func (a *App) Status(ctx context.Context, args []string) error {
	id, err := oneID("status", args)
	if err != nil {
		return err
	}
	t, ok := a.uploader.Status(id)
	if !ok {
		return fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}
	fmt.Fprintln(a.out, formatTask(t))
	if t.Reference != "" {
		fmt.Fprintf(a.out, "  reference: %s\n", t.Reference)
	}
	if t.LastError != "" {
		fmt.Fprintf(a.out, "  error: %s\n", t.LastError)
	}
	return nil
}

func (a *App) List(ctx context.Context) error {
	list := a.uploader.ListActive()
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No active uploads")
		return nil
	}
	for _, t := range list {
		fmt.Fprintln(a.out, formatTask(t))
	}
	return nil
}

// Notifications prints pending notifications and marks them delivered.
func (a *App) Notifications(ctx context.Context) error {
	if a.notes == nil {
		return nil
	}

	list, err := a.notes.ListPending(ctx, a.owner)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No notifications")
		return nil
	}

	now := a.now()
	for _, n := range list {
		fmt.Fprintf(a.out, "%s uploaded: %s\n", n.FileName, n.Reference)
		if err := a.notes.MarkDelivered(ctx, n.ID, now); err != nil {
			a.log.Warn(ctx, "failed to mark notification delivered", "id", n.ID, "error", err)
		}
	}
	return nil
}

func oneID(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s <id>", ErrUsage, cmd)
	}
	return args[0], nil
}

func formatTask(t models.UploadTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-9s %3d%%  %s", t.ID, t.State, percent(t), t.OriginalFileName)
	if t.PauseReason != models.PauseNone {
		fmt.Fprintf(&b, "  [%s]", t.PauseReason)
	}
	if t.RetryCount > 0 {
		fmt.Fprintf(&b, "  retries=%d", t.RetryCount)
	}
	return b.String()
}

func percent(t models.UploadTask) int {
	if t.TotalBytes <= 0 {
		if t.State == models.StateSucceeded {
			return 100
		}
		return 0
	}
	return int(100 * t.BytesTransferred / t.TotalBytes)
}
