package persistence

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/logging"
)

type Saver interface {
	SaveAll(ctx context.Context, list []models.UploadTask) error
}

// Persister writes snapshots in its own goroutine. Requests arriving while a
// save is pending collapse into one write of the latest state.
type Persister struct {
	store  Saver
	source func() []models.UploadTask
	log    logging.Logger

	pending chan struct{}
	mu      sync.Mutex
}

// NewPersister saves whatever source returns at the time of the write.
func NewPersister(store Saver, source func() []models.UploadTask, log logging.Logger) *Persister {
	return &Persister{
		store:   store,
		source:  source,
		log:     log.With("component", "persister"),
		pending: make(chan struct{}, 1),
	}
}

// Request schedules a snapshot and never blocks.
func (p *Persister) Request() {
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.pending:
			if err := p.save(ctx); err != nil {
				p.log.Error(ctx, "snapshot failed", "error", err)
			}
		}
	}
}

// Flush drops any pending request and saves synchronously.
func (p *Persister) Flush(ctx context.Context) error {
	select {
	case <-p.pending:
	default:
	}
	return p.save(ctx)
}

func (p *Persister) save(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.SaveAll(ctx, p.source())
}
