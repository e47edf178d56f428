package realitylog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/config"
	"github.com/realitylog/realitylog/pkg/logbook"
	"github.com/realitylog/realitylog/pkg/realtime"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/store/gormstore"
	"github.com/realitylog/realitylog/pkg/store/memory"
	"github.com/realitylog/realitylog/pkg/store/surrealdb"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// App holds the application state shared by every command and request.
type App struct {
	config *config.Config
	logger zerolog.Logger

	backend  store.Store
	store    store.Store
	watcher  store.Watcher
	readOnly atomic.Bool

	auth     *auth.Service
	hub      *realtime.Hub
	consoles *logbook.ConsoleRegistry
	editor   *logbook.Editor
	validate *validator.Validate
	clock    timecode.Clock

	// ctx bounds console generators; cancel stops them on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes an App built by NewWithStore.
type Option func(*App)

// WithClock replaces the wall clock used for sessions and timecodes.
func WithClock(c timecode.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New opens the configured backend and builds an App around it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	backend, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("store connected")
	return NewWithStore(cfg, backend, logger), nil
}

func openStore(ctx context.Context, sc config.Store) (store.Store, error) {
	opts := gormstore.Options{MaxOpenConns: sc.MaxOpenConn, Debug: sc.Debug}
	switch sc.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		s, err := gormstore.NewSQLiteStore(sc.SQLitePath, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		s, err := gormstore.NewPostgresStore(sc.PostgresDSN, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return s, nil
	case config.BackendSurrealDB:
		s, err := surrealdb.NewSurrealStore(ctx, surrealdb.Config{
			URL:       sc.SurrealURL,
			Namespace: sc.SurrealNS,
			Database:  sc.SurrealDB,
			Username:  sc.SurrealUser,
			Password:  sc.SurrealPass,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}

// NewWithStore builds an App around an already opened backend. The App owns
// backend and closes it in Close.
func NewWithStore(cfg *config.Config, backend store.Store, logger zerolog.Logger, opts ...Option) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:   cfg,
		logger:   logger,
		backend:  backend,
		validate: newValidator(),
		clock:    timecode.SystemClock{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.readOnly.Store(cfg.Server.ReadOnly)

	// Backends that can watch themselves are used as is.
	inner := backend
	if w, ok := backend.(store.Watcher); ok {
		a.watcher = w
	} else {
		ns := store.NewNotifyingStore(backend)
		a.watcher = ns
		inner = ns
	}
	a.store = store.NewReadOnlyStore(inner, a.IsReadOnly)

	a.auth = auth.NewService(a.store, auth.Options{
		SessionTTL: cfg.SessionTTL(),
		BcryptCost: cfg.Auth.BcryptCost,
		Clock:      a.clock.Now,
		Logger:     logger,
	})
	a.hub = realtime.NewHub(a.store, a.watcher, logger)
	a.consoles = logbook.NewConsoleRegistry(ctx, logbook.NewSubmitter(a.store, logger), logbook.ConsoleOptions{
		FrameRate: cfg.Timecode.FrameRate,
		Clock:     a.clock,
		Logger:    logger,
	})
	a.editor = logbook.NewEditor(a.store, logger)
	return a
}

// Close stops every console and closes the backend.
func (a *App) Close() error {
	a.consoles.CloseAll()
	a.cancel()
	if a.backend != nil {
		return a.backend.Close()
	}
	return nil
}

// Store returns the wrapped store that requests use.
func (a *App) Store() store.Store {
	return a.store
}

// Auth returns the authentication service.
func (a *App) Auth() *auth.Service {
	return a.auth
}

// Hub returns the realtime projections.
func (a *App) Hub() *realtime.Hub {
	return a.hub
}

// SetReadOnly toggles maintenance mode. While enabled every write fails with
// store.ErrReadOnly and reads keep working.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.logger.Warn().Bool("read_only", readOnly).Msg("read-only mode changed")
}

func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}

// ping checks the backend for the health endpoint when it supports it.
func (a *App) ping(ctx context.Context) error {
	type pinger interface {
		Ping(context.Context) error
	}
	p, ok := a.backend.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return errors.Join(store.ErrUnavailable, err)
	}
	return nil
}
