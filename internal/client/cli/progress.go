package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal on the output.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressView renders bus events. On a terminal each task gets a progress
// bar; otherwise progress is printed in 25% steps.
type progressView struct {
	out io.Writer
	tty bool

	mu    sync.Mutex
	bars  map[string]*progressbar.ProgressBar
	steps map[string]int
}

func newProgressView(out io.Writer, tty bool) *progressView {
	return &progressView{
		out:   out,
		tty:   tty,
		bars:  make(map[string]*progressbar.ProgressBar),
		steps: make(map[string]int),
	}
}

func (v *progressView) handle(e events.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch e.Kind {
	case events.KindProgress:
		v.progressLocked(e)
	case events.KindCompleted:
		v.finishLocked(e.TaskID)
		fmt.Fprintf(v.out, "%s done: %s\n", short(e.TaskID), e.Result.Reference)
	case events.KindFailed:
		v.finishLocked(e.TaskID)
		fmt.Fprintf(v.out, "%s failed: %s\n", short(e.TaskID), e.Err)
	case events.KindNotification:
		fmt.Fprintf(v.out, "notification: %s is available at %s\n", short(e.TaskID), e.Result.Reference)
	}
}

func (v *progressView) progressLocked(e events.Event) {
	p := e.Progress
	if !v.tty {
		step := p.Percentage / 25
		if prev, ok := v.steps[e.TaskID]; ok && step <= prev {
			return
		}
		v.steps[e.TaskID] = step
		fmt.Fprintf(v.out, "%s %d%% (%d/%d bytes)\n", short(e.TaskID), p.Percentage, p.BytesTransferred, p.TotalBytes)
		return
	}

	bar, ok := v.bars[e.TaskID]
	if !ok {
		bar = progressbar.NewOptions64(p.TotalBytes,
			progressbar.OptionSetWriter(v.out),
			progressbar.OptionSetDescription(short(e.TaskID)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(v.out) }),
		)
		v.bars[e.TaskID] = bar
	}
	_ = bar.Set64(p.BytesTransferred)
}

func (v *progressView) finishLocked(id string) {
	if bar, ok := v.bars[id]; ok {
		_ = bar.Finish()
		delete(v.bars, id)
	}
	delete(v.steps, id)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
