// Package events is an in-process fan-out bus for upload notifications.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event, and the drop is counted.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/logging"
)

type Kind string

const (
	KindProgress     Kind = "progress"
	KindState        Kind = "state"
	KindCompleted    Kind = "completed"
	KindFailed       Kind = "failed"
	KindNotification Kind = "notification"
)

type Event struct {
	Kind     Kind
	TaskID   string
	OwnerID  string
	State    models.State
	Progress models.Progress
	Result   models.Result
	Err      string
	At       time.Time
}

type Bus struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Int64
	log     logging.Logger
}

func NewBus(log logging.Logger) *Bus {
	return &Bus{subs: make(map[chan Event]struct{}), log: log.With("component", "events")}
}

// Subscribe returns a channel with the given buffer and a function that
// unsubscribes and closes it. Calling the function twice is safe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			n := b.dropped.Add(1)
			// progress drops are routine for slow terminals
			if e.Kind != KindProgress {
				b.log.Warn(context.Background(), "event dropped", "kind", e.Kind, "task_id", e.TaskID, "dropped_total", n)
			}
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
