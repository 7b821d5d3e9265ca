// Package registry is the in-memory source of truth for upload tasks.
//
// Every task lives in exactly one place. Callers get copies, never pointers
// into the registry, and all mutation goes through Update so the byte range
// invariant is checked on every change. Callbacks bound to a task are kept
// next to it but are never persisted.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/common"
	"github.com/google/uuid"
)

var ErrAlreadyExists = errors.New("task already exists")

// ChangeFunc observes every committed change. removed is true when the task
// left the registry.
type ChangeFunc func(task models.UploadTask, removed bool)

type entry struct {
	task models.UploadTask
	seq  int64
	cb   models.Callbacks
}

type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*entry
	seq       int64
	listeners []ChangeFunc
}

func New() *Registry {
	return &Registry{tasks: make(map[string]*entry)}
}

// OnChange registers fn. Listeners run synchronously after the registry
// lock is released and must not block.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Create stores task and returns its id, generating one when empty.
func (r *Registry) Create(task models.UploadTask) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err := task.Validate(); err != nil {
		return "", fmt.Errorf("invalid task %s: %w", task.ID, err)
	}

	r.mu.Lock()
	if _, exists := r.tasks[task.ID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, task.ID)
	}
	r.seq++
	r.tasks[task.ID] = &entry{task: task, seq: r.seq}
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, task, false)
	return task.ID, nil
}

func (r *Registry) Get(id string) (models.UploadTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return models.UploadTask{}, false
	}
	return e.task, true
}

// Update applies fn to a copy of the task and commits the copy only when fn
// succeeds and the result is valid. The committed copy is returned.
func (r *Registry) Update(id string, fn func(t *models.UploadTask) error) (models.UploadTask, error) {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return models.UploadTask{}, fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}

	next := e.task
	if err := fn(&next); err != nil {
		r.mu.Unlock()
		return e.task, err
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return e.task, fmt.Errorf("invalid update of task %s: %w", id, err)
	}
	e.task = next
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, next, false)
	return next, nil
}

// Remove deletes the task. Running or paused tasks hold transfer state and
// cannot be removed.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}
	if e.task.State.IsActive() {
		r.mu.Unlock()
		return fmt.Errorf("task %s is %s: %w", id, e.task.State, common.ErrTaskActive)
	}
	delete(r.tasks, id)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, e.task, true)
	return nil
}

// List returns copies of the tasks matching pred in submission order. A nil
// pred matches everything.
func (r *Registry) List(pred func(models.UploadTask) bool) []models.UploadTask {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.tasks))
	for _, e := range r.tasks {
		if pred == nil || pred(e.task) {
			entries = append(entries, &entry{task: e.task, seq: e.seq})
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]models.UploadTask, len(entries))
	for i, e := range entries {
		out[i] = e.task
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Bind replaces the callbacks of a task.
func (r *Registry) Bind(id string, cb models.Callbacks) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, common.ErrorNotFound)
	}
	e.cb = cb
	return nil
}

func (r *Registry) Callbacks(id string) (models.Callbacks, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return models.Callbacks{}, false
	}
	return e.cb, true
}

func (r *Registry) Unbind(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.tasks[id]; ok {
		e.cb = models.Callbacks{}
	}
}

func notify(listeners []ChangeFunc, task models.UploadTask, removed bool) {
	for _, fn := range listeners {
		fn(task, removed)
	}
}
