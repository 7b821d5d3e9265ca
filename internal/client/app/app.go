// Package app wires the uploader together: local snapshot database,
// connectivity monitor, S3 transfer service, completion router, scheduler
// and the interactive CLI. It also handles graceful shutdown, writing a
// final snapshot before the process exits.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/cli"
	"github.com/dmitrijs2005/docuploader/internal/client/client"
	"github.com/dmitrijs2005/docuploader/internal/client/config"
	"github.com/dmitrijs2005/docuploader/internal/client/events"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/netmon"
	"github.com/dmitrijs2005/docuploader/internal/client/persistence"
	"github.com/dmitrijs2005/docuploader/internal/client/registry"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/notifications"
	"github.com/dmitrijs2005/docuploader/internal/client/repositories/records"
	"github.com/dmitrijs2005/docuploader/internal/client/router"
	"github.com/dmitrijs2005/docuploader/internal/client/scheduler"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer/s3transfer"
	"github.com/dmitrijs2005/docuploader/internal/logging"
	"github.com/dmitrijs2005/docuploader/internal/netx"
)

const (
	flushTimeout = 5 * time.Second
	// delivered notifications older than this are dropped at startup
	notificationRetention = 7 * 24 * time.Hour
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	portalDB  *sql.DB
	grpc      *client.GRPCClient
	monitor   *netmon.Monitor
	persister *persistence.Persister
	scheduler *scheduler.Scheduler
	notes     notifications.Repository
	cli       *cli.App
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	// the REPL owns stdout, logs go to stderr
	logger := logging.New(os.Stderr, c.LogLevel, c.LogFormat)

	app := &App{config: c, logger: logger}

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	app.db = db

	store := persistence.NewAdapter(db, c.SpoolDir, c.SnapshotMaxBytes, logger)
	notes := notifications.NewSQLiteRepository(db)
	app.notes = notes

	recs, err := app.records(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	transfers, err := s3transfer.New(ctx, s3transfer.Config{
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		PartSize:      c.S3PartSize,
		PublicBaseURL: c.PublicBaseURL,
	}, logger)
	if err != nil {
		app.close()
		return nil, err
	}

	probers, err := app.probers()
	if err != nil {
		app.close()
		return nil, err
	}
	app.monitor = netmon.New(logger, netmon.Options{
		Interval:     c.ProbeInterval,
		Hint:         netx.HasActiveInterface,
		StartOffline: len(probers) > 0,
	}, probers...)

	bus := events.NewBus(logger)
	reg := registry.New()

	app.scheduler = scheduler.New(scheduler.Config{
		MaxConcurrent:    c.MaxConcurrent,
		MaxRetries:       c.MaxRetries,
		DispatchInterval: c.DispatchInterval,
		RetryDelay:       c.RetryDelay,
		SucceededGrace:   c.SucceededGrace,
		FailedRetention:  c.FailedRetention,
		SpoolDir:         c.SpoolDir,
	}, scheduler.Deps{
		Registry:  reg,
		Store:     store,
		Monitor:   app.monitor,
		Transfers: transfers,
		Router:    router.New(recs, transfers, notes, bus, logger),
		Bus:       bus,
		Logger:    logger,
	})

	app.persister = persistence.NewPersister(store, func() []models.UploadTask { return reg.List(nil) }, logger)
	reg.OnChange(func(models.UploadTask, bool) { app.persister.Request() })

	app.cli = cli.NewApp(app.scheduler, notes, bus, logger, cli.Options{
		OwnerID: c.OwnerID,
		Online:  app.monitor.Online,
	})

	return app, nil
}

// records uses the portal database when a DSN is configured and an
// in-memory store otherwise.
func (app *App) records(ctx context.Context) (records.Repository, error) {
	if app.config.PortalDSN == "" {
		app.logger.Warn(ctx, "no portal DSN configured, records are kept in memory")
		return records.NewMemoryRepository(), nil
	}
	db, err := records.OpenPostgres(ctx, app.config.PortalDSN)
	if err != nil {
		return nil, err
	}
	app.portalDB = db
	return records.NewPostgresRepository(db), nil
}

func (app *App) probers() ([]netmon.Prober, error) {
	var probers []netmon.Prober
	if app.config.PortalGRPCAddr != "" {
		gc, err := client.NewGRPCClient(app.config.PortalGRPCAddr, "")
		if err != nil {
			return nil, fmt.Errorf("grpc client init error: %w", err)
		}
		app.grpc = gc
		probers = append(probers, gc)
	}
	if app.config.ProbeURL != "" {
		probers = append(probers, netx.NewHTTPProber(app.config.ProbeURL))
	}
	return probers, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run recovers the last snapshot and runs every component until the user
// exits the REPL or a signal arrives. A final snapshot is written on the way
// out.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.initSignalHandler(cancelFunc)

	if err := app.scheduler.Recover(ctx); err != nil {
		app.logger.Error(ctx, "snapshot not restored", "error", err)
	}
	if n, err := app.notes.DeleteDelivered(ctx, time.Now().Add(-notificationRetention)); err != nil {
		app.logger.Warn(ctx, "failed to prune notifications", "error", err)
	} else if n > 0 {
		app.logger.Debug(ctx, "notifications pruned", "count", n)
	}

	app.logger.Info(ctx, "Starting uploader...")

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){app.monitor.Run, app.persister.Run, app.scheduler.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	app.cli.Run(ctx)
	cancelFunc()
	wg.Wait()

	fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := app.persister.Flush(fctx); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	app.logger.Info(fctx, "uploader stopped")
	return nil
}

func (app *App) close() {
	if app.grpc != nil {
		_ = app.grpc.Close()
	}
	if app.portalDB != nil {
		_ = app.portalDB.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}
