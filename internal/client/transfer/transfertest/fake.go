// Package transfertest provides an in-memory transfer.Service whose handles
// are driven by the test.
package transfertest

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
)

type Handle struct {
	Req transfer.Request

	mu        sync.Mutex
	events    chan transfer.Event
	closed    bool
	started   bool
	paused    bool
	canceled  bool
	reference string
	refErr    error
	startErr  error
	pauses    int
	resumes   int
}

func newHandle(req transfer.Request, ref string) *Handle {
	return &Handle{Req: req, events: make(chan transfer.Event, 256), reference: ref}
}

func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.started = true
	return nil
}

func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transfer.ErrHandleClosed
	}
	h.paused = true
	h.pauses++
	return nil
}

func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transfer.ErrHandleClosed
	}
	h.paused = false
	h.resumes++
	return nil
}

func (h *Handle) Cancel() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = true
	h.closeLocked()
	return nil
}

func (h *Handle) Events() <-chan transfer.Event { return h.events }

func (h *Handle) AccessReference(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reference, h.refErr
}

// Progress emits a progress sample.
func (h *Handle) Progress(bytes int64, token string) {
	h.emit(transfer.Event{Kind: transfer.EventProgress, Bytes: bytes, Total: h.Req.Payload.Size, ResumeToken: token}, false)
}

// Complete emits the terminal success event and closes the stream.
func (h *Handle) Complete() {
	h.emit(transfer.Event{Kind: transfer.EventCompleted, Bytes: h.Req.Payload.Size, Total: h.Req.Payload.Size}, true)
}

// Fail emits the terminal failure event and closes the stream.
func (h *Handle) Fail(err error) {
	h.emit(transfer.Event{Kind: transfer.EventFailed, Err: err}, true)
}

func (h *Handle) SetReferenceError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refErr = err
}

func (h *Handle) Started() bool  { h.mu.Lock(); defer h.mu.Unlock(); return h.started }
func (h *Handle) Paused() bool   { h.mu.Lock(); defer h.mu.Unlock(); return h.paused }
func (h *Handle) Canceled() bool { h.mu.Lock(); defer h.mu.Unlock(); return h.canceled }
func (h *Handle) Pauses() int    { h.mu.Lock(); defer h.mu.Unlock(); return h.pauses }
func (h *Handle) Resumes() int   { h.mu.Lock(); defer h.mu.Unlock(); return h.resumes }

func (h *Handle) emit(ev transfer.Event, terminal bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.events <- ev
	if terminal {
		h.closeLocked()
	}
}

func (h *Handle) closeLocked() {
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

// Service hands out Handles and remembers every request.
type Service struct {
	mu       sync.Mutex
	handles  []*Handle
	OpenErr  error
	StartErr error
	// Reference builds the access reference of a request.
	Reference func(req transfer.Request) string
}

func NewService() *Service {
	return &Service{Reference: func(req transfer.Request) string { return "mem://" + req.RemotePath }}
}

func (s *Service) Open(ctx context.Context, req transfer.Request) (transfer.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	h := newHandle(req, s.Reference(req))
	h.startErr = s.StartErr
	s.handles = append(s.handles, h)
	return h, nil
}

// Handles returns every handle opened so far, oldest first.
func (s *Service) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Handle(nil), s.handles...)
}

// For returns the handles opened for taskID, oldest first.
func (s *Service) For(taskID string) []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Handle
	for _, h := range s.handles {
		if h.Req.TaskID == taskID {
			out = append(out, h)
		}
	}
	return out
}

// Last returns the newest handle of taskID or nil.
func (s *Service) Last(taskID string) *Handle {
	hs := s.For(taskID)
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}
