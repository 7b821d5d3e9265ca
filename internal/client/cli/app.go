package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/scheduler"
	"github.com/dmitrijs2005/docuploader/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Uploader is the part of the scheduler the REPL drives.
type Uploader interface {
	Submit(ctx context.Context, req scheduler.SubmitRequest) (string, error)
	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
	Status(id string) (models.UploadTask, bool)
	ListActive() []models.UploadTask
}

type Notifications interface {
	ListPending(ctx context.Context, ownerID string) ([]*models.Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

type Options struct {
	OwnerID string
	// Online reports connectivity for the prompt. nil shows no mode.
	Online func() bool
	In     io.Reader
	Out    io.Writer
}

type App struct {
	uploader Uploader
	notes    Notifications
	bus      Subscriber
	owner    string
	online   func() bool
	in       io.Reader
	out      io.Writer
	progress *progressView
	log      logging.Logger
	now      func() time.Time
}

func NewApp(up Uploader, notes Notifications, bus Subscriber, log logging.Logger, opts Options) *App {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		uploader: up,
		notes:    notes,
		bus:      bus,
		owner:    opts.OwnerID,
		online:   opts.Online,
		in:       opts.In,
		out:      opts.Out,
		progress: newProgressView(opts.Out, isTerminal(opts.Out)),
		log:      log.With("component", "cli"),
		now:      time.Now,
	}
}

// Run renders bus events in the background and runs the REPL until the
// user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.bus != nil {
		ch, unsubscribe := a.bus.Subscribe(64)
		defer unsubscribe()
		go a.watch(ctx, ch)
	}

	fmt.Fprintln(a.out, "Uploader (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.in))
}

func (a *App) watch(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.OwnerID != "" && e.OwnerID != a.owner {
				continue
			}
			a.progress.handle(e)
		}
	}
}

func (a *App) mode() Mode {
	if a.online == nil {
		return ""
	}
	if a.online() {
		return ModeOnline
	}
	return ModeOffline
}

func (a *App) getStatus() string {
	s := a.owner
	if m := a.mode(); m != "" {
		if s != "" {
			s += " "
		}
		s += string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}
