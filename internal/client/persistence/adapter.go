// Package persistence snapshots the task registry into the local SQLite
// store and restores it after a restart.
//
// The snapshot is a projection: live file and transfer handles are never
// stored. Payload bytes of unfinished tasks are stored next to the row with a
// blake2b-256 checksum and written back into the spool directory on load.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/tasks"
	"github.com/dmitrijs2005/docuploader/internal/common"
	"github.com/dmitrijs2005/docuploader/internal/dbx"
	"github.com/dmitrijs2005/docuploader/internal/filex"
	"github.com/dmitrijs2005/docuploader/internal/logging"
	"golang.org/x/crypto/blake2b"
)

const DefaultMaxBytes int64 = 50 << 20

// DB is satisfied by *sql.DB.
type DB interface {
	dbx.DBTX
	dbx.TxBeginner
}

type encodedPayload struct {
	size    int64
	modTime time.Time
	data    []byte
	sum     []byte
}

type Adapter struct {
	db       DB
	newRepo  func(dbx.DBTX) tasks.Repository
	spoolDir string
	maxBytes int64
	log      logging.Logger

	// mu makes the adapter the single writer of the snapshot.
	mu    sync.Mutex
	cache map[string]encodedPayload
}

// NewAdapter returns an adapter writing to db. maxBytes <= 0 selects
// DefaultMaxBytes.
func NewAdapter(db DB, spoolDir string, maxBytes int64, log logging.Logger) *Adapter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Adapter{
		db: db,
		newRepo: func(tx dbx.DBTX) tasks.Repository {
			return tasks.NewSQLiteRepository(tx)
		},
		spoolDir: spoolDir,
		maxBytes: maxBytes,
		log:      log.With("component", "persistence"),
		cache:    make(map[string]encodedPayload),
	}
}

// SaveAll replaces the stored snapshot with list. Tasks whose payload cannot
// be read are left out with a warning.
func (a *Adapter) SaveAll(ctx context.Context, list []models.UploadTask) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]*tasks.Row, 0, len(list))
	seen := make(map[string]bool, len(list))
	for i, t := range list {
		row, err := a.project(t, int64(i+1))
		if err != nil {
			a.log.Warn(ctx, "task left out of snapshot", "task_id", t.ID, "error", err)
			continue
		}
		if !t.State.IsTerminal() {
			seen[t.Payload.Path] = true
		}
		rows = append(rows, row)
	}
	for path := range a.cache {
		if !seen[path] {
			delete(a.cache, path)
		}
	}

	rows = a.fit(ctx, rows)

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.newRepo(tx)
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		for _, r := range rows {
			if err := repo.Insert(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// fit applies the size ceiling: terminal tasks go first, then everything
// that is not running or paused.
func (a *Adapter) fit(ctx context.Context, rows []*tasks.Row) []*tasks.Row {
	size := totalSize(rows)
	if size <= a.maxBytes {
		return rows
	}

	kept := filterRows(rows, func(s models.State) bool { return !s.IsTerminal() })
	a.log.Warn(ctx, "snapshot over ceiling, dropping finished tasks",
		"size", size, "limit", a.maxBytes, "dropped", len(rows)-len(kept))

	size = totalSize(kept)
	if size <= a.maxBytes {
		return kept
	}

	active := filterRows(kept, models.State.IsActive)
	a.log.Warn(ctx, "snapshot still over ceiling, keeping running and paused tasks only",
		"size", size, "limit", a.maxBytes, "dropped", len(kept)-len(active))

	if size = totalSize(active); size > a.maxBytes {
		a.log.Error(ctx, "snapshot written over ceiling", "size", size, "limit", a.maxBytes, "error", common.ErrSnapshotTooLarge)
	}
	return active
}

// LoadAll reads the snapshot. Running tasks come back paused with reason
// restart. Rows that cannot be restored are dropped with a warning.
func (a *Adapter) LoadAll(ctx context.Context) ([]models.UploadTask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.newRepo(a.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	spool, err := filex.EnsureDir(a.spoolDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare spool dir: %w", err)
	}

	out := make([]models.UploadTask, 0, len(rows))
	for _, r := range rows {
		t, err := a.restore(r, spool)
		if err != nil {
			a.log.Warn(ctx, "dropping unrecoverable task", "task_id", r.ID, "state", r.State, "error", err)
			continue
		}
		out = append(out, t)
	}

	a.log.Info(ctx, "snapshot loaded", "tasks", len(out), "dropped", len(rows)-len(out))
	return out, nil
}

func (a *Adapter) project(t models.UploadTask, seq int64) (*tasks.Row, error) {
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}

	row := &tasks.Row{
		ID:                 t.ID,
		Seq:                seq,
		OwnerID:            t.OwnerID,
		TargetFolder:       t.TargetFolder,
		GroupID:            t.GroupID,
		RemotePath:         t.RemotePath,
		OriginalFileName:   t.OriginalFileName,
		StoredName:         t.StoredName,
		PayloadName:        t.Payload.Name,
		PayloadContentType: t.Payload.ContentType,
		PayloadModTime:     toNanos(t.Payload.ModTime),
		PayloadSize:        t.Payload.Size,
		BytesTransferred:   t.BytesTransferred,
		TotalBytes:         t.TotalBytes,
		State:              string(t.State),
		PauseReason:        string(t.PauseReason),
		LastError:          t.LastError,
		RetryCount:         t.RetryCount,
		Context:            ctxJSON,
		ResumeToken:        t.ResumeToken,
		Reference:          t.Reference,
		NeedsRouting:       t.NeedsRouting,
		RouteAttempts:      t.RouteAttempts,
		CreatedAt:          toNanos(t.CreatedAt),
		StartedAt:          toNanos(t.StartedAt),
		LastProgressAt:     toNanos(t.LastProgressAt),
		CompletedAt:        toNanos(t.CompletedAt),
	}

	// Finished tasks are kept for routing and inspection only.
	if t.State.IsTerminal() {
		return row, nil
	}

	p, err := a.encodePayload(t.Payload)
	if err != nil {
		return nil, err
	}
	row.Payload = p.data
	row.PayloadChecksum = p.sum
	return row, nil
}

func (a *Adapter) encodePayload(p models.Payload) (encodedPayload, error) {
	if c, ok := a.cache[p.Path]; ok && c.size == p.Size && c.modTime.Equal(p.ModTime) {
		return c, nil
	}

	data, err := p.ReadAll()
	if err != nil {
		return encodedPayload{}, err
	}
	if int64(len(data)) != p.Size {
		return encodedPayload{}, fmt.Errorf("%w: %s is %d bytes, expected %d", common.ErrInvalidPayload, p.Name, len(data), p.Size)
	}

	sum := blake2b.Sum256(data)
	c := encodedPayload{size: p.Size, modTime: p.ModTime, data: data, sum: sum[:]}
	a.cache[p.Path] = c
	return c, nil
}

func (a *Adapter) restore(r *tasks.Row, spool string) (models.UploadTask, error) {
	var c models.Context
	if err := json.Unmarshal(r.Context, &c); err != nil {
		return models.UploadTask{}, fmt.Errorf("decode context: %w", err)
	}
	if err := c.Validate(); err != nil {
		return models.UploadTask{}, err
	}

	t := models.UploadTask{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		TargetFolder:     r.TargetFolder,
		GroupID:          r.GroupID,
		RemotePath:       r.RemotePath,
		OriginalFileName: r.OriginalFileName,
		StoredName:       r.StoredName,
		Payload: models.Payload{
			Name:        r.PayloadName,
			ContentType: r.PayloadContentType,
			ModTime:     fromNanos(r.PayloadModTime),
			Size:        r.PayloadSize,
		},
		BytesTransferred: r.BytesTransferred,
		TotalBytes:       r.TotalBytes,
		State:            models.State(r.State),
		PauseReason:      models.PauseReason(r.PauseReason),
		LastError:        r.LastError,
		RetryCount:       r.RetryCount,
		Context:          c,
		ResumeToken:      r.ResumeToken,
		Reference:        r.Reference,
		NeedsRouting:     r.NeedsRouting,
		RouteAttempts:    r.RouteAttempts,
		CreatedAt:        fromNanos(r.CreatedAt),
		StartedAt:        fromNanos(r.StartedAt),
		LastProgressAt:   fromNanos(r.LastProgressAt),
		CompletedAt:      fromNanos(r.CompletedAt),
	}

	switch t.State {
	case models.StateQueued, models.StatePaused, models.StateSucceeded, models.StateFailed, models.StateCanceled:
	case models.StateRunning:
		t.State = models.StatePaused
		t.PauseReason = models.PauseRestart
	default:
		return models.UploadTask{}, fmt.Errorf("unknown state %q", r.State)
	}

	if err := t.Validate(); err != nil {
		return models.UploadTask{}, err
	}

	if t.State.IsTerminal() {
		return t, nil
	}

	if int64(len(r.Payload)) != r.PayloadSize {
		return models.UploadTask{}, fmt.Errorf("%w: stored %d bytes, expected %d", common.ErrInvalidPayload, len(r.Payload), r.PayloadSize)
	}
	sum := blake2b.Sum256(r.Payload)
	if !bytes.Equal(sum[:], r.PayloadChecksum) {
		return models.UploadTask{}, common.ErrChecksumMismatch
	}

	path, err := filex.WriteSpool(spool, r.ID+"_"+models.SanitizeFileName(r.PayloadName), r.Payload)
	if err != nil {
		return models.UploadTask{}, fmt.Errorf("re-materialize payload: %w", err)
	}
	t.Payload.Path = path

	a.cache[path] = encodedPayload{size: r.PayloadSize, modTime: t.Payload.ModTime, data: r.Payload, sum: r.PayloadChecksum}
	return t, nil
}

func filterRows(rows []*tasks.Row, keep func(models.State) bool) []*tasks.Row {
	out := make([]*tasks.Row, 0, len(rows))
	for _, r := range rows {
		if keep(models.State(r.State)) {
			out = append(out, r)
		}
	}
	return out
}

func totalSize(rows []*tasks.Row) int64 {
	var n int64
	for _, r := range rows {
		n += r.Size()
	}
	return n
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
