// Package server wires the reference memo server: PostgreSQL storage, the
// key and record services, the change hub, the gRPC endpoint and the
// metrics side port.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/dmitrijs2005/memokeeper/internal/server/config"
	"github.com/dmitrijs2005/memokeeper/internal/server/hub"
	"github.com/dmitrijs2005/memokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/memokeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/memokeeper/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	rpc    *gs.GRPCServer
	web    *http.Server
}

// NewApp opens the database, applies migrations and builds the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	presigner, err := services.NewS3Presigner(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app, err := newApp(c, logger, db, rm, presigner)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager, p services.Presigner) (*App, error) {
	ks, err := services.NewKeyService(db, rm, c)
	if err != nil {
		return nil, err
	}

	h := hub.New()
	us := services.NewUserService(db, rm, c)
	rs := services.NewRecordService(db, rm, ks, p, h)

	grpcServer := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, us, ks, rs, h, gs.Options{
		JWTSecret:     c.SecretKey,
		PipelineToken: c.PipelineToken,
	})

	httpServer := &http.Server{
		Addr:              c.EndpointAddrHTTP,
		Handler:           metrics.NewRouter(db.PingContext),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{config: c, logger: logger, db: db, rpc: grpcServer, web: httpServer}, nil
}

func (app *App) serveHTTP(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = app.web.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.web.Addr)
	if err := app.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is cancelled or one of the servers fails, then
// closes the database.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")
	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "closing database failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.rpc.Run(gctx) })
	g.Go(func() error { return app.serveHTTP(gctx) })

	err := g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}
