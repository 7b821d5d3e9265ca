// Package scheduler admits upload tasks into a bounded set of concurrent
// transfers and drives their state machine:
//
//	queued -> running -> succeeded | failed
//	running <-> paused (user, connectivity, retry, restart)
//	any non-succeeded state -> canceled
//
// The registry holds every task. The scheduler keeps only the admission
// queue, the live transfer handles and the set of tasks being routed, all
// behind one mutex that is never held across a blocking call.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/netmon"
	"github.com/dmitrijs2005/docuploader/internal/client/registry"
	"github.com/dmitrijs2005/docuploader/internal/client/telemetry"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
	"github.com/dmitrijs2005/docuploader/internal/common"
	"github.com/dmitrijs2005/docuploader/internal/logging"
	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultMaxConcurrent    = 3
	DefaultMaxRetries       = 3
	DefaultMaxRouteAttempts = 3
	DefaultDispatchInterval = time.Second
	DefaultRetryDelay       = 2 * time.Second
	DefaultMaxRetryDelay    = time.Minute
	DefaultSucceededGrace   = 30 * time.Second
	DefaultFailedRetention  = time.Hour
)

// Store loads the snapshot written by the persistence layer.
type Store interface {
	LoadAll(ctx context.Context) ([]models.UploadTask, error)
}

type Monitor interface {
	Online() bool
	OnTransition(fn netmon.TransitionFunc)
}

type Router interface {
	Route(ctx context.Context, task models.UploadTask) error
}

type Publisher interface {
	Publish(e events.Event)
}

type Config struct {
	MaxConcurrent    int
	MaxRetries       int
	MaxRouteAttempts int
	DispatchInterval time.Duration
	// RetryDelay is the wait before the first retry. It doubles with every
	// attempt up to MaxRetryDelay.
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	SucceededGrace  time.Duration
	FailedRetention time.Duration
	// SpoolDir holds payloads restored from a snapshot. Files under it are
	// removed once their task no longer needs them.
	SpoolDir string
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRouteAttempts <= 0 {
		c.MaxRouteAttempts = DefaultMaxRouteAttempts
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = DefaultDispatchInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = max(DefaultMaxRetryDelay, c.RetryDelay)
	}
	if c.SucceededGrace <= 0 {
		c.SucceededGrace = DefaultSucceededGrace
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = DefaultFailedRetention
	}
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	c := Config{MaxRetries: DefaultMaxRetries}
	c.applyDefaults()
	return c
}

type Deps struct {
	Registry  *registry.Registry
	Store     Store
	Monitor   Monitor
	Transfers transfer.Service
	Router    Router
	Bus       Publisher
	Logger    logging.Logger
	Clock     func() time.Time
}

// SubmitRequest describes a new upload. FileName overrides the name taken
// from Path.
type SubmitRequest struct {
	Path      string
	FileName  string
	OwnerID   string
	Folder    string
	GroupID   string
	Context   models.Context
	Callbacks models.Callbacks
}

type Scheduler struct {
	cfg       Config
	reg       *registry.Registry
	store     Store
	monitor   Monitor
	exec      *transfer.Executor
	router    Router
	bus       Publisher
	telemetry *telemetry.Calculator
	log       logging.Logger
	now       func() time.Time

	// base bounds every transfer and routing call started by the scheduler.
	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	queue   []string
	handles map[string]transfer.Handle
	routing map[string]bool
	closed  bool

	kick chan struct{}
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

func New(cfg Config, deps Deps) *Scheduler {
	cfg.applyDefaults()

	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "scheduler")

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var bus Publisher = nopPublisher{}
	if deps.Bus != nil {
		bus = deps.Bus
	}

	base, stop := context.WithCancel(context.Background())

	s := &Scheduler{
		cfg:       cfg,
		reg:       deps.Registry,
		store:     deps.Store,
		monitor:   deps.Monitor,
		exec:      transfer.NewExecutor(deps.Transfers, log),
		router:    deps.Router,
		bus:       bus,
		telemetry: telemetry.NewCalculator(),
		log:       log,
		now:       clock,
		base:      base,
		stop:      stop,
		handles:   make(map[string]transfer.Handle),
		routing:   make(map[string]bool),
		kick:      make(chan struct{}, 1),
	}

	deps.Monitor.OnTransition(s.onNetwork)
	return s
}

// Submit registers a new task, binds its callbacks and admits it at once
// when a slot is free.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.OwnerID == "" {
		return "", fmt.Errorf("%w: owner is required", common.ErrInvalidState)
	}
	if err := models.CheckSegment(req.OwnerID); err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	if req.GroupID != "" {
		if err := models.CheckSegment(req.GroupID); err != nil {
			return "", fmt.Errorf("group: %w", err)
		}
	}
	if err := req.Context.Validate(); err != nil {
		return "", err
	}

	fi, err := os.Stat(req.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", common.ErrInvalidPayload, req.Path)
	}

	mtype, err := mimetype.DetectFile(req.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}

	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}

	token, err := common.MakeRandHexString(4)
	if err != nil {
		return "", fmt.Errorf("failed to generate name token: %w", err)
	}

	now := s.now()
	stored := models.StoredName(name, now, token)

	task := models.UploadTask{
		OwnerID:          req.OwnerID,
		TargetFolder:     req.Folder,
		GroupID:          req.GroupID,
		RemotePath:       models.RemotePath(req.Folder, req.OwnerID, req.GroupID, stored),
		OriginalFileName: name,
		StoredName:       stored,
		Payload: models.Payload{
			Path:        req.Path,
			Name:        name,
			ContentType: mtype.String(),
			ModTime:     fi.ModTime(),
			Size:        fi.Size(),
		},
		TotalBytes: fi.Size(),
		State:      models.StateQueued,
		Context:    req.Context,
		CreatedAt:  now,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", common.ErrSchedulerClosed
	}

	id, err := s.reg.Create(task)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	if err := s.reg.Bind(id, req.Callbacks); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.queue = append(s.queue, id)
	task.ID = id
	s.publishState(task)

	var later deferred
	s.admitLocked(&later)
	s.mu.Unlock()
	later.run()

	s.log.Info(ctx, "upload submitted", "task_id", id, "file", name, "size", task.TotalBytes, "kind", task.Context.Kind)
	return id, nil
}

// Pause stops a queued or running task until Resume. A task paused for
// another reason becomes user-paused and is no longer resumed automatically.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.reg.Get(id)
	if !ok {
		return fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}

	switch t.State {
	case models.StateQueued:
		s.dequeueLocked(id)
	case models.StateRunning:
		if h, ok := s.handles[id]; ok {
			if err := s.exec.Pause(h); err != nil {
				s.log.Warn(s.base, "pause failed, discarding handle", "task_id", id, "error", err)
				s.dropHandleLocked(id)
			}
		}
		s.kickLocked()
	case models.StatePaused:
	default:
		return fmt.Errorf("task %s is %s: %w", id, t.State, common.ErrInvalidState)
	}

	t, err := s.reg.Update(id, func(t *models.UploadTask) error {
		t.State = models.StatePaused
		t.PauseReason = models.PauseUser
		return nil
	})
	if err != nil {
		return err
	}
	s.publishState(t)
	s.log.Info(s.base, "upload paused", "task_id", id, "bytes", t.BytesTransferred)
	return nil
}

// Resume continues a paused task without waiting out a retry delay. Its
// surviving handle is resumed in place when a slot is free and the network
// is up; otherwise the task is queued.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.reg.Get(id)
	if !ok {
		return fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}

	switch t.State {
	case models.StateQueued, models.StateRunning:
		return nil
	case models.StatePaused:
	default:
		return fmt.Errorf("task %s is %s: %w", id, t.State, common.ErrInvalidState)
	}

	if h, ok := s.handles[id]; ok && s.hasSlotLocked() {
		err := s.exec.Resume(h)
		if err == nil {
			t, err = s.reg.Update(id, func(t *models.UploadTask) error {
				t.State = models.StateRunning
				t.PauseReason = models.PauseNone
				t.NextRetryAt = time.Time{}
				return nil
			})
			if err != nil {
				return err
			}
			s.publishState(t)
			s.log.Info(s.base, "upload resumed", "task_id", id, "bytes", t.BytesTransferred)
			return nil
		}
		s.log.Warn(s.base, "resume failed, discarding handle", "task_id", id, "error", err)
		s.dropHandleLocked(id)
	}

	t, err := s.reg.Update(id, func(t *models.UploadTask) error {
		t.State = models.StateQueued
		t.PauseReason = models.PauseNone
		t.NextRetryAt = time.Time{}
		return nil
	})
	if err != nil {
		return err
	}
	s.queue = append(s.queue, id)
	s.publishState(t)
	s.kickLocked()
	return nil
}

// Cancel aborts the task's transfer without waiting for it, removes the task
// and reports common.ErrCanceled to its completion callback.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()

	t, ok := s.reg.Get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}
	if t.State == models.StateSucceeded || t.State == models.StateCanceled {
		s.mu.Unlock()
		return fmt.Errorf("task %s is %s: %w", id, t.State, common.ErrInvalidState)
	}

	s.dropHandleLocked(id)
	s.dequeueLocked(id)

	t, err := s.reg.Update(id, func(t *models.UploadTask) error {
		t.State = models.StateCanceled
		t.PauseReason = models.PauseNone
		t.LastError = ""
		t.NeedsRouting = false
		t.CompletedAt = s.now()
		return nil
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}

	cb, _ := s.reg.Callbacks(id)
	s.removeLocked(t)
	s.publishState(t)
	s.kickLocked()
	s.mu.Unlock()

	s.log.Info(s.base, "upload canceled", "task_id", id)
	if cb.OnComplete != nil {
		cb.OnComplete(id, models.Result{}, common.ErrCanceled)
	}
	return nil
}

func (s *Scheduler) Status(id string) (models.UploadTask, bool) {
	return s.reg.Get(id)
}

// ListActive returns every task that has not reached a terminal state.
func (s *Scheduler) ListActive() []models.UploadTask {
	return s.reg.List(func(t models.UploadTask) bool { return !t.State.IsTerminal() })
}

// Bind attaches callbacks to an existing task, e.g. after the caller's UI
// was rebuilt. A task that already finished reports its outcome at once.
// Delivering a success hands the completion to the callback, so routing that
// has not started yet is dropped.
func (s *Scheduler) Bind(id string, cb models.Callbacks) error {
	if err := s.reg.Bind(id, cb); err != nil {
		return err
	}

	t, ok := s.reg.Get(id)
	if !ok || cb.OnComplete == nil {
		return nil
	}
	switch t.State {
	case models.StateSucceeded:
		s.mu.Lock()
		if t.NeedsRouting && !s.routing[id] {
			_, err := s.reg.Update(id, func(t *models.UploadTask) error {
				t.NeedsRouting = false
				return nil
			})
			if err != nil {
				s.log.Warn(s.base, "failed to clear routing flag", "task_id", id, "error", err)
			}
		}
		s.mu.Unlock()
		cb.OnComplete(id, models.Result{Reference: t.Reference, RemotePath: t.RemotePath}, nil)
	case models.StateFailed:
		cb.OnComplete(id, models.Result{}, errors.New(t.LastError))
	}
	return nil
}

// Recover loads the last snapshot into the registry. Call it once before Run.
func (s *Scheduler) Recover(ctx context.Context) error {
	list, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range list {
		if t.State == models.StatePaused && t.PauseReason == models.PauseRetry {
			t.State = models.StateQueued
			t.PauseReason = models.PauseNone
		}
		if _, err := s.reg.Create(t); err != nil {
			s.log.Warn(ctx, "skipping recovered task", "task_id", t.ID, "error", err)
			continue
		}
		if t.State == models.StateQueued {
			s.queue = append(s.queue, t.ID)
		}
	}

	s.log.Info(ctx, "tasks recovered", "count", len(list), "queued", len(s.queue))
	s.kickLocked()
	return nil
}

// Tick runs one dispatch pass: purge expired tasks, resume tasks waiting for
// connectivity, admit queued tasks and start pending routing.
func (s *Scheduler) Tick(ctx context.Context) {
	var later deferred

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.reapLocked(ctx)
	if s.monitor.Online() {
		s.requeueWaitingLocked(models.PauseConnectivity, models.PauseRestart)
	}
	s.admitLocked(&later)
	routes := s.claimRoutesLocked()
	s.mu.Unlock()

	later.run()
	for _, t := range routes {
		go s.route(t)
	}
}

// Run ticks every DispatchInterval and whenever a slot frees up, until ctx
// is done. In-flight transfers are stopped on return; their tasks stay in
// the registry as running and come back paused after a restart.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.kick:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
}

func (s *Scheduler) kickLocked() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// deferred collects callbacks that must run after the mutex is released.
type deferred []func()

func (d *deferred) add(fn func()) { *d = append(*d, fn) }

func (d deferred) run() {
	for _, fn := range d {
		fn()
	}
}
