package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/proxy"
	"github.com/raysh454/coigate/internal/records"
	"github.com/raysh454/coigate/internal/server"
	"github.com/raysh454/coigate/internal/webclient"
	"github.com/raysh454/coigate/internal/worker"
)

// Application is the global runtime state container. It owns the records
// database, the API server and, when an upstream is configured, the
// isolation proxy with its worker registration.
type Application struct {
	Config *Config
	Logger logging.Logger

	Registration *worker.Registration

	db       *sql.DB
	upstream *webclient.NetHTTPClient
	api      *http.Server
	proxy    *http.Server
}

// NewApplication opens storage and wires every component. Nothing listens
// until Run is called.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop{}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, "records.db"))
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}
	db.SetMaxOpenConns(1)

	a := &Application{Config: cfg, Logger: logger, db: db}
	if err := a.wire(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire() error {
	cfg := a.Config

	hub := records.NewHub(64)
	store, err := records.NewStore(a.db, hub)
	if err != nil {
		return err
	}
	uploads, err := records.NewUploads(cfg.UploadDir)
	if err != nil {
		return err
	}
	api := server.NewServer(cfg.ServerCfg, records.NewService(store, uploads), hub, cfg.UploadDir, a.Logger)
	a.api = api.HTTPServer()

	if cfg.ProxyAddr == "" {
		return nil
	}

	client, err := webclient.NewNetHTTPClient(cfg.WebClientCfg, a.Logger, nil)
	if err != nil {
		return err
	}
	a.upstream = client
	a.Registration = worker.NewRegistration()

	h, err := proxy.NewHandler(proxy.Config{
		Upstream:       cfg.Upstream,
		MaxRequestBody: cfg.ServerCfg.MaxContentLength,
	}, a.Registration, client, a.Logger)
	if err != nil {
		return err
	}
	a.proxy = &http.Server{
		Addr:              cfg.ProxyAddr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return nil
}

// Run registers the isolation worker, serves until ctx is cancelled and then
// shuts everything down within Config.ShutdownTimeout.
func (a *Application) Run(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}

	if a.Registration != nil {
		w := worker.New(a.Registration, a.upstream)
		if err := a.Registration.Register(ctx, w); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
			defer cancel()
			return errors.Join(fmt.Errorf("register worker: %w", err), a.Shutdown(shutdownCtx))
		}
		a.Logger.Info("worker activated", logging.Field{Key: "upstream", Value: a.Config.Upstream})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.servers() {
		g.Go(func() error {
			a.Logger.Info("listening", logging.Field{Key: "addr", Value: srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *Application) servers() []*http.Server {
	out := []*http.Server{a.api}
	if a.proxy != nil {
		out = append(out, a.proxy)
	}
	return out
}

// Shutdown stops the listeners and releases storage.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	var errs []error
	for _, srv := range a.servers() {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	if a.upstream != nil {
		_ = a.upstream.Close()
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close records db: %w", err))
	}
	return errors.Join(errs...)
}
