package router

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/migrations"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/notifications"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/records"
	"github.com/dmitrijs2005/docuploader/internal/common"
	"github.com/dmitrijs2005/docuploader/internal/logging"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (d *fakeDeleter) DeleteReference(ctx context.Context, ref string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, ref)
	return d.err
}

// countingRecords counts saves on top of the in-memory store.
type countingRecords struct {
	*records.MemoryRepository
	saves int
}

func (c *countingRecords) SaveArticle(ctx context.Context, a *models.Article) error {
	c.saves++
	return c.MemoryRepository.SaveArticle(ctx, a)
}

func (c *countingRecords) SaveUser(ctx context.Context, u *models.User) error {
	c.saves++
	return c.MemoryRepository.SaveUser(ctx, u)
}

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

type fixture struct {
	router  *Router
	records *countingRecords
	deleter *fakeDeleter
	notes   *notifications.SQLiteRepository
	bus     *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records: &countingRecords{MemoryRepository: records.NewMemoryRepository()},
		deleter: &fakeDeleter{},
		notes:   notifications.NewSQLiteRepository(setupDB(t)),
		bus:     events.NewBus(logging.Nop()),
	}
	f.router = New(f.records, f.deleter, f.notes, f.bus, logging.Nop())
	f.router.now = func() time.Time { return time.Unix(1700000000, 0) }
	return f
}

func succeeded(id string, c models.Context, ref string) models.UploadTask {
	return models.UploadTask{
		ID:               id,
		OwnerID:          "u1",
		RemotePath:       "articles/u1/a1/" + id + ".pdf",
		OriginalFileName: id + ".pdf",
		TotalBytes:       42,
		BytesTransferred: 42,
		State:            models.StateSucceeded,
		Context:          c,
		Reference:        ref,
	}
}

func TestRoute_ArticleField(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces and deletes superseded", func(t *testing.T) {
		f := newFixture(t)
		f.records.PutArticle(&models.Article{ID: "a1", Fields: map[string]string{"cover": "s3://docs/old.png", "title": "Hi"}})

		require.NoError(t, f.router.Route(ctx, succeeded("t1", models.ArticleField("a1", "cover"), "s3://docs/new.png")))

		a, err := f.records.Article(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "s3://docs/new.png", a.Fields["cover"])
		assert.Equal(t, "Hi", a.Fields["title"])
		assert.Equal(t, []string{"s3://docs/old.png"}, f.deleter.deleted)
	})

	t.Run("empty field deletes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.records.PutArticle(&models.Article{ID: "a1"})

		require.NoError(t, f.router.Route(ctx, succeeded("t1", models.ArticleField("a1", "cover"), "s3://docs/new.png")))

		a, _ := f.records.Article(ctx, "a1")
		assert.Equal(t, "s3://docs/new.png", a.Fields["cover"])
		assert.Empty(t, f.deleter.deleted)
	})

	t.Run("delete failure does not fail routing", func(t *testing.T) {
		f := newFixture(t)
		f.deleter.err = errors.New("access denied")
		f.records.PutArticle(&models.Article{ID: "a1", Fields: map[string]string{"cover": "s3://docs/old.png"}})

		require.NoError(t, f.router.Route(ctx, succeeded("t1", models.ArticleField("a1", "cover"), "s3://docs/new.png")))
		a, _ := f.records.Article(ctx, "a1")
		assert.Equal(t, "s3://docs/new.png", a.Fields["cover"])
	})

	t.Run("second route is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.records.PutArticle(&models.Article{ID: "a1", Fields: map[string]string{"cover": "s3://docs/old.png"}})
		task := succeeded("t1", models.ArticleField("a1", "cover"), "s3://docs/new.png")

		require.NoError(t, f.router.Route(ctx, task))
		require.NoError(t, f.router.Route(ctx, task))
		assert.Equal(t, 1, f.records.saves)
		assert.Len(t, f.deleter.deleted, 1)
	})

	t.Run("missing article", func(t *testing.T) {
		f := newFixture(t)
		err := f.router.Route(ctx, succeeded("t1", models.ArticleField("nope", "cover"), "s3://docs/new.png"))
		require.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestRoute_AutoAttach(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.records.PutArticle(&models.Article{ID: "a1", Attachments: []models.Attachment{{Name: "old.pdf", Reference: "s3://docs/old.pdf"}}})
	task := succeeded("t1", models.AutoAttach("a1"), "s3://docs/t1.pdf")

	require.NoError(t, f.router.Route(ctx, task))
	require.NoError(t, f.router.Route(ctx, task))

	a, err := f.records.Article(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, a.Attachments, 2)
	assert.Equal(t, models.Attachment{Name: "t1.pdf", Reference: "s3://docs/t1.pdf", RemotePath: task.RemotePath, Size: 42}, a.Attachments[1])
	assert.True(t, a.Draft)
	assert.Equal(t, 1, f.records.saves)
	assert.Empty(t, f.deleter.deleted)
}

func TestRoute_ProfilePicture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.records.PutUser(&models.User{ID: "u1", PictureRef: "s3://docs/me-old.jpg"})
	task := succeeded("t1", models.ProfilePicture("u1"), "s3://docs/me.jpg")

	require.NoError(t, f.router.Route(ctx, task))
	require.NoError(t, f.router.Route(ctx, task))

	u, err := f.records.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/me.jpg", u.PictureRef)
	assert.Equal(t, []string{"s3://docs/me-old.jpg"}, f.deleter.deleted)
	assert.Equal(t, 1, f.records.saves)
}

func TestRoute_GenericAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ch, unsubscribe := f.bus.Subscribe(4)
	defer unsubscribe()

	task := succeeded("t1", models.GenericAttachment(), "s3://docs/t1.pdf")
	require.NoError(t, f.router.Route(ctx, task))
	require.NoError(t, f.router.Route(ctx, task))

	pending, err := f.notes.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t1", pending[0].TaskID)
	assert.Equal(t, "t1.pdf", pending[0].FileName)
	assert.Equal(t, "s3://docs/t1.pdf", pending[0].Reference)

	ev := <-ch
	assert.Equal(t, events.KindNotification, ev.Kind)
	assert.Equal(t, "t1", ev.TaskID)
	assert.Equal(t, "s3://docs/t1.pdf", ev.Result.Reference)
}

func TestRoute_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	running := succeeded("t1", models.GenericAttachment(), "s3://docs/x")
	running.State = models.StateRunning
	assert.Error(t, f.router.Route(ctx, running))

	noRef := succeeded("t2", models.GenericAttachment(), "")
	assert.Error(t, f.router.Route(ctx, noRef))

	unknown := succeeded("t3", models.Context{Kind: "video"}, "s3://docs/x")
	assert.ErrorIs(t, f.router.Route(ctx, unknown), models.ErrInvalidContext)
}
