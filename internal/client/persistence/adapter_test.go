package persistence

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/docuploader/internal/client/migrations"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))

	return db
}

var baseTime = time.Unix(1700000000, 0)

func writeFile(t *testing.T, name string, data []byte) models.Payload {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return models.Payload{Path: p, Name: name, ContentType: "application/pdf", ModTime: baseTime, Size: int64(len(data))}
}

func task(id string, state models.State, payload models.Payload) models.UploadTask {
	t := models.UploadTask{
		ID:               id,
		OwnerID:          "u1",
		TargetFolder:     "articles",
		GroupID:          "a1",
		RemotePath:       "articles/u1/a1/1_abcd1234_" + payload.Name,
		OriginalFileName: payload.Name,
		StoredName:       "1_abcd1234_" + payload.Name,
		Payload:          payload,
		TotalBytes:       payload.Size,
		State:            state,
		Context:          models.ArticleField("a1", "body"),
		CreatedAt:        baseTime,
	}
	return t
}

func TestAdapter_RoundTrip(t *testing.T) {
	db := setupDB(t)
	spool := t.TempDir()
	a := NewAdapter(db, spool, 0, logging.Nop())
	ctx := context.Background()

	queued := task("t1", models.StateQueued, writeFile(t, "a.pdf", []byte("queued bytes")))

	running := task("t2", models.StateRunning, writeFile(t, "b c.pdf", []byte("running bytes")))
	running.BytesTransferred = 5
	running.ResumeToken = `{"upload_id":"up-1"}`
	running.StartedAt = baseTime.Add(time.Second)
	running.LastProgressAt = baseTime.Add(2 * time.Second)

	done := task("t3", models.StateSucceeded, writeFile(t, "c.pdf", []byte("done")))
	done.BytesTransferred = done.TotalBytes
	done.Reference = "s3://docs/x"
	done.NeedsRouting = true
	done.RouteAttempts = 1
	done.CompletedAt = baseTime.Add(time.Minute)
	done.Context = models.GenericAttachment()

	require.NoError(t, a.SaveAll(ctx, []models.UploadTask{queued, running, done}))

	fresh := NewAdapter(db, spool, 0, logging.Nop())
	got, err := fresh.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{got[0].ID, got[1].ID, got[2].ID})

	wantRunning := running
	wantRunning.State = models.StatePaused
	wantRunning.PauseReason = models.PauseRestart
	opts := cmpopts.IgnoreFields(models.Payload{}, "Path")
	if diff := cmp.Diff(wantRunning, got[1], opts); diff != "" {
		t.Errorf("running task mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(queued, got[0], opts); diff != "" {
		t.Errorf("queued task mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(done, got[2], opts); diff != "" {
		t.Errorf("succeeded task mismatch (-want +got):\n%s", diff)
	}

	for _, restored := range got[:2] {
		assert.True(t, strings.HasPrefix(restored.Payload.Path, spool), restored.Payload.Path)
		data, err := restored.Payload.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, restored.Payload.Size, int64(len(data)))
	}
	data, _ := got[1].Payload.ReadAll()
	assert.Equal(t, "running bytes", string(data))
	assert.Equal(t, "t2_b_c.pdf", filepath.Base(got[1].Payload.Path))

	// Terminal tasks carry no payload.
	assert.Empty(t, got[2].Payload.Path)
}

func TestAdapter_SaveReplacesSnapshot(t *testing.T) {
	db := setupDB(t)
	a := NewAdapter(db, t.TempDir(), 0, logging.Nop())
	ctx := context.Background()

	p := writeFile(t, "a.pdf", []byte("abc"))
	require.NoError(t, a.SaveAll(ctx, []models.UploadTask{task("t1", models.StateQueued, p), task("t2", models.StateQueued, p)}))
	require.NoError(t, a.SaveAll(ctx, []models.UploadTask{task("t2", models.StateQueued, p)}))

	got, err := a.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].ID)
}

func TestAdapter_SaveSkipsUnreadablePayload(t *testing.T) {
	db := setupDB(t)
	a := NewAdapter(db, t.TempDir(), 0, logging.Nop())
	ctx := context.Background()

	gone := writeFile(t, "gone.pdf", []byte("abc"))
	require.NoError(t, os.Remove(gone.Path))
	changed := writeFile(t, "changed.pdf", []byte("abc"))
	changed.Size = 10

	ok := task("ok", models.StateQueued, writeFile(t, "ok.pdf", []byte("fine")))
	require.NoError(t, a.SaveAll(ctx, []models.UploadTask{
		task("gone", models.StateQueued, gone),
		task("changed", models.StateQueued, changed),
		ok,
	}))

	got, err := a.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestAdapter_LoadDropsCorruptRows(t *testing.T) {
	tests := []struct {
		name   string
		update string
	}{
		{"missing payload bytes", `UPDATE upload_tasks SET payload = X'' WHERE id = 'bad'`},
		{"checksum mismatch", `UPDATE upload_tasks SET payload_checksum = X'00' WHERE id = 'bad'`},
		{"corrupt context", `UPDATE upload_tasks SET context = '{' WHERE id = 'bad'`},
		{"unknown context kind", `UPDATE upload_tasks SET context = '{"kind":"video"}' WHERE id = 'bad'`},
		{"unknown state", `UPDATE upload_tasks SET state = 'exploded' WHERE id = 'bad'`},
		{"byte range", `UPDATE upload_tasks SET bytes_transferred = 999 WHERE id = 'bad'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupDB(t)
			a := NewAdapter(db, t.TempDir(), 0, logging.Nop())
			ctx := context.Background()

			require.NoError(t, a.SaveAll(ctx, []models.UploadTask{
				task("bad", models.StatePaused, writeFile(t, "bad.pdf", []byte("bad bytes"))),
				task("good", models.StateQueued, writeFile(t, "good.pdf", []byte("good bytes"))),
			}))
			_, err := db.Exec(tt.update)
			require.NoError(t, err)

			got, err := NewAdapter(db, t.TempDir(), 0, logging.Nop()).LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "good", got[0].ID)
		})
	}
}

func TestAdapter_SizeCeiling(t *testing.T) {
	ctx := context.Background()
	big := strings.Repeat("x", 4000)

	t.Run("drops terminal tasks first", func(t *testing.T) {
		db := setupDB(t)
		a := NewAdapter(db, t.TempDir(), 3000, logging.Nop())

		failed := task("failed", models.StateFailed, models.Payload{Name: "f.pdf"})
		failed.LastError = big
		queued := task("queued", models.StateQueued, writeFile(t, "q.pdf", []byte("abc")))

		require.NoError(t, a.SaveAll(ctx, []models.UploadTask{failed, queued}))
		got, err := a.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "queued", got[0].ID)
	})

	t.Run("keeps only running and paused", func(t *testing.T) {
		db := setupDB(t)
		a := NewAdapter(db, t.TempDir(), 6000, logging.Nop())

		queued := task("queued", models.StateQueued, writeFile(t, "q.pdf", []byte(big)))
		paused := task("paused", models.StatePaused, writeFile(t, "p.pdf", []byte(big)))
		paused.PauseReason = models.PauseUser
		done := task("done", models.StateSucceeded, models.Payload{Name: "d.pdf"})

		require.NoError(t, a.SaveAll(ctx, []models.UploadTask{done, queued, paused}))
		got, err := a.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "paused", got[0].ID)
		assert.Equal(t, models.PauseUser, got[0].PauseReason)
	})

	t.Run("under ceiling keeps everything", func(t *testing.T) {
		db := setupDB(t)
		a := NewAdapter(db, t.TempDir(), 0, logging.Nop())

		queued := task("queued", models.StateQueued, writeFile(t, "q.pdf", []byte(big)))
		done := task("done", models.StateSucceeded, models.Payload{Name: "d.pdf"})
		require.NoError(t, a.SaveAll(ctx, []models.UploadTask{done, queued}))

		got, err := a.LoadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestAdapter_SaveTransactionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM upload_tasks`).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	a := NewAdapter(db, t.TempDir(), 0, logging.Nop())
	err = a.SaveAll(context.Background(), nil)
	require.ErrorContains(t, err, "failed to save snapshot")
	require.ErrorContains(t, err, "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_LoadQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM upload_tasks`).WillReturnError(errors.New("no such table"))

	a := NewAdapter(db, t.TempDir(), 0, logging.Nop())
	_, err = a.LoadAll(context.Background())
	require.ErrorContains(t, err, "failed to load snapshot")
	require.NoError(t, mock.ExpectationsWereMet())
}
