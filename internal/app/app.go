package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/config"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	mcpserver "pagebuilder/internal/mcp"
	"pagebuilder/internal/registry"
	"pagebuilder/internal/secret"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

// App owns every long-lived component of the editor process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store    domain.PageStore
	journal  editor.Journal
	closers  []func(context.Context) error
	janitor  *storage.Janitor
	registry *registry.Source
	metrics  *prometheus.Registry
	editor   *service.EditorService
	http     *http.Server
}

// New builds the application from cfg: store, block catalog, editor service.
// Nothing is started yet.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	reg := registry.Default()
	if cfg.Registry.Path != "" {
		var err error
		if reg, err = registry.LoadFile(cfg.Registry.Path); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("load block catalog: %w", err)
		}
	}
	a.registry = registry.NewSource(reg, cfg.Registry.Path, logger)

	svc, err := service.NewEditorService(service.Deps{
		Store:       a.store,
		Registry:    a.registry,
		Modules:     service.StaticModules{Set: domain.NewModuleSet(cfg.Modules.Enabled...)},
		Permissions: service.StaticPermissions{ReadOnly: cfg.Permissions.ReadOnly},
		Tokens:      tokenSource(cfg.Store),
		Journal:     a.journal,
		Emitter:     service.LogEmitter{Logger: logger},
		Logger:      logger,
		Metrics:     autosave.NewMetrics(a.metrics),
	}, service.Options{
		HistoryLimit:  cfg.Editor.HistoryLimit,
		AutosaveDelay: cfg.Editor.AutosaveDelay,
		SaveTimeout:   cfg.Editor.SaveTimeout,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.editor = svc
	return a, nil
}

// Editor returns the editor service.
func (a *App) Editor() *service.EditorService { return a.editor }

// Run starts the background components and serves MCP on stdio until ctx is
// done or stdin closes.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Registry.Watch {
		if err := a.registry.Watch(ctx); err != nil {
			a.logger.Warn("block catalog watch disabled", zap.Error(err))
		}
	}
	if a.janitor != nil {
		a.janitor.Start()
	}
	if a.cfg.Metrics.Addr != "" {
		a.serveMetrics()
	}

	mcpSrv, err := mcpserver.New(mcpserver.Deps{
		Editor:   a.editor,
		Registry: a.registry,
		SiteID:   a.cfg.SiteID,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- mcpSrv.ServeStdio() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops autosave timers, waits for in-flight saves and releases the
// store. Unsaved edits of open pages are discarded.
func (a *App) Shutdown(ctx context.Context) {
	a.editor.Shutdown(ctx)
	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	a.Close(ctx)
}

// Close releases the store and stops the janitor.
func (a *App) Close(ctx context.Context) {
	if a.janitor != nil {
		a.janitor.Stop()
		a.janitor = nil
	}
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) error {
	sc := a.cfg.Store
	if sc.Driver == "mongodb" {
		uri := sc.DSN
		if uri == "" {
			uri = "mongodb://" + net.JoinHostPort(sc.Host, strconv.Itoa(portOr(sc.Port, 27017)))
		}
		ms, err := storage.OpenMongo(ctx, uri, sc.Database)
		if err != nil {
			return err
		}
		a.store = ms
		a.journal = ms.HistoryJournal()
		a.closers = append(a.closers, ms.Close)
		a.logger.Info("page store ready", zap.String("driver", sc.Driver), zap.String("database", sc.Database))
		return nil
	}

	dialect := storage.Dialect(sc.Driver)
	dsn := sc.DSN
	if dsn == "" {
		var err error
		dsn, err = storage.BuildDSN(dialect, storage.ConnParams{
			Host:     sc.Host,
			Port:     sc.Port,
			User:     sc.User,
			Password: sc.Password,
			Database: sc.Database,
			SSLMode:  sc.SSLMode,
		})
		if err != nil {
			return err
		}
	}
	db, err := storage.Open(ctx, dialect, dsn)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	ps := storage.NewPageStore(db)
	a.store = ps
	a.journal = storage.NewHistoryJournal(db)
	if a.cfg.Revisions.Keep > 0 {
		a.janitor, err = storage.NewJanitor(ps, a.cfg.Revisions.Schedule, a.cfg.Revisions.Keep, a.logger)
		if err != nil {
			a.Close(ctx)
			return err
		}
	}
	a.logger.Info("page store ready", zap.String("driver", sc.Driver))
	return nil
}

func (a *App) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	a.http = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
}

// tokenSource picks where Page Store tokens come from: a secret backend, a
// static token, or none.
func tokenSource(sc config.StoreConfig) domain.TokenSource {
	if sc.TokenSecret != "" {
		var store secret.SecretStore = secret.EnvStore{Prefix: "PB_SECRET_"}
		if sc.SecretBackend == "keychain" {
			store = secret.NewKeychainStore()
		}
		return secret.TokenSource{Store: store, Key: sc.TokenSecret}
	}
	if sc.Token != "" {
		return service.StaticToken(sc.Token)
	}
	return nil
}

func portOr(p, def int) int {
	if p == 0 {
		return def
	}
	return p
}
