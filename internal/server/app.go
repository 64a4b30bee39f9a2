// Package server initializes and runs the DropVault server: it wires the
// durable store, blob sink, transport and services together, restores state
// from the last snapshot on a cold start, and serves the HTTP webhook.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/dropvault/internal/cryptox"
	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/blob"
	"github.com/dmitrijs2005/dropvault/internal/server/config"
	"github.com/dmitrijs2005/dropvault/internal/server/delivery"
	"github.com/dmitrijs2005/dropvault/internal/server/grants"
	"github.com/dmitrijs2005/dropvault/internal/server/ingress"
	"github.com/dmitrijs2005/dropvault/internal/server/purge"
	"github.com/dmitrijs2005/dropvault/internal/server/registry"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dropvault/internal/server/snapshot"
	"github.com/dmitrijs2005/dropvault/internal/server/transport"
)

// snapshotSalt pins the key derivation for sealed snapshot blobs. Changing
// it orphans every blob uploaded before the change.
var snapshotSalt = []byte("dropvault/snapshots/v1")

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *registry.Service
	snapshot *snapshot.Service
	ingress  *ingress.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()

	s3sink, err := blob.NewS3Sink(ctx, blob.Options{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("blob sink init error: %w", err)
	}
	sink := snapshot.NewSealedSink(s3sink, cryptox.DeriveKey([]byte(cfg.SecretKey), snapshotSalt))

	tr := transport.NewTelegram(cfg.TransportBaseURL, cfg.TransportToken, &http.Client{Timeout: 30 * time.Second})

	pg := purge.NewService(repos.PurgeQueue(db), tr, logger, cfg.DrainBatchLimit, cfg.RemoveTimeout)
	reg := registry.NewService(db, repos, pg, logger)
	tracker := grants.NewTracker(repos.Grants(db), cfg.RetentionWindow, logger)
	dl := delivery.NewService(reg, tracker, pg, tr, cfg.SourceChannel, cfg.RetentionWindow, logger)
	sn := snapshot.NewService(db, repos, sink, logger)

	ing := ingress.NewServer(dl, reg, pg, sn, logger,
		[]byte(cfg.SecretKey), cfg.OperatorSecretHash, cfg.TokenValidityDuration)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		repos:    repos,
		registry: reg,
		snapshot: sn,
		ingress:  ing,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// restoreIfEmpty pulls the last snapshots from the blob sink on a cold
// start. A populated registry means the local store is authoritative and no
// restore happens.
func (app *App) restoreIfEmpty(ctx context.Context) error {
	n, err := app.repos.Payloads(app.db).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	restored := app.snapshot.RestoreAll(ctx)
	app.logger.Info(ctx, "cold start restore finished", "tables_restored", restored)
	return nil
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.ingress.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}()

	app.logger.Info(ctx, "listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, err.Error())
		return
	}

	if err := app.restoreIfEmpty(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
