package realitylog

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/sync/errgroup"
)

// sweepInterval is how often expired sessions and their consoles are dropped.
const sweepInterval = time.Minute

// Router builds the HTTP handler.
//
// Health:
//
//	GET  /health, /api/health
//
// Authentication:
//
//	POST /api/auth/register        create a viewer and sign in
//	POST /api/auth/login
//	POST /api/auth/logout
//	POST /api/auth/refresh         rotate the session token
//	GET  /api/auth/me
//
// Users (admin):
//
//	GET|POST        /api/users
//	PUT|DELETE      /api/users/{id}
//
// Reference data (writes are admin only):
//
//	GET|POST        /api/{participants|locations|action-categories|tags}
//	GET|PUT|DELETE  /api/{participants|locations|action-categories|tags}/{id}
//
// Log entries:
//
//	GET     /api/log-entries          participantId, locationId, actionCategoryId,
//	                                  tagId, startDate, endDate, search, page, limit
//	DELETE  /api/log-entries          delete all (admin)
//	GET     /api/log-entries/export   format=json|csv|markdown|text|pdf
//	GET     /api/log-entries/{id}
//	PUT     /api/log-entries/{id}     {notes}
//	DELETE  /api/log-entries/{id}
//
// Analytics:
//
//	GET  /api/analytics/dashboard
//
// Console (one per session):
//
//	GET   /api/console
//	POST  /api/console/participants/{id}/toggle
//	POST  /api/console/tags/{id}/toggle
//	PUT   /api/console/location         {id}
//	PUT   /api/console/action-category  {id}
//	PUT   /api/console/notes            {notes}
//	PUT   /api/console/timecode         {timecode}
//	POST  /api/console/timecode/resync
//	POST  /api/console/submit
//
// Realtime:
//
//	GET  /ws?token=...
func (a *App) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(hlog.NewHandler(a.logger), requestID, accessLog(), a.authenticate)

	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", a.handleWebSocket).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/auth/register", a.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", a.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", signedIn(a.handleMe)).Methods(http.MethodGet)

	api.HandleFunc("/users", adminOnly(a.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users", adminOnly(a.handleCreateUser)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", adminOnly(a.handleUpdateUser)).Methods(http.MethodPut)
	api.HandleFunc("/users/{id}", adminOnly(a.handleDeleteUser)).Methods(http.MethodDelete)

	mountResource(api, "/participants", a.participants())
	mountResource(api, "/locations", a.locations())
	mountResource(api, "/action-categories", a.actionCategories())
	mountResource(api, "/tags", a.tags())

	api.HandleFunc("/log-entries", signedIn(a.handleListLogEntries)).Methods(http.MethodGet)
	api.HandleFunc("/log-entries", adminOnly(a.handleDeleteAllLogEntries)).Methods(http.MethodDelete)
	api.HandleFunc("/log-entries/export", signedIn(a.handleExport)).Methods(http.MethodGet)
	api.HandleFunc("/log-entries/{id}", signedIn(a.handleGetLogEntry)).Methods(http.MethodGet)
	api.HandleFunc("/log-entries/{id}", signedIn(a.handleEditLogEntry)).Methods(http.MethodPut)
	api.HandleFunc("/log-entries/{id}", signedIn(a.handleDeleteLogEntry)).Methods(http.MethodDelete)

	api.HandleFunc("/analytics/dashboard", signedIn(a.handleDashboard)).Methods(http.MethodGet)

	api.HandleFunc("/console", signedIn(a.handleConsoleState)).Methods(http.MethodGet)
	api.HandleFunc("/console/participants/{id}/toggle", signedIn(a.handleToggleParticipant)).Methods(http.MethodPost)
	api.HandleFunc("/console/tags/{id}/toggle", signedIn(a.handleToggleTag)).Methods(http.MethodPost)
	api.HandleFunc("/console/location", signedIn(a.handleSetLocation)).Methods(http.MethodPut)
	api.HandleFunc("/console/action-category", signedIn(a.handleSetActionCategory)).Methods(http.MethodPut)
	api.HandleFunc("/console/notes", signedIn(a.handleSetNotes)).Methods(http.MethodPut)
	api.HandleFunc("/console/timecode", signedIn(a.handleEditTimecode)).Methods(http.MethodPut)
	api.HandleFunc("/console/timecode/resync", signedIn(a.handleResyncTimecode)).Methods(http.MethodPost)
	api.HandleFunc("/console/submit", signedIn(a.handleSubmit)).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	return router
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := a.ping(r.Context()); err != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":    status,
		"backend":   a.config.Store.Backend,
		"read_only": a.IsReadOnly(),
		"time":      a.clock.Now().UTC(),
	})
}

// Run serves HTTP until ctx is canceled, alongside the realtime projections and
// the session sweeper. Shutdown waits up to the configured timeout for requests
// in flight.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	server := &http.Server{
		Addr:              a.config.Server.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.hub.Run(ctx)
	})
	g.Go(func() error {
		a.sweepSessions(ctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info().
			Str("addr", server.Addr).
			Str("backend", a.config.Store.Backend).
			Bool("read_only", a.IsReadOnly()).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweepSessions drops expired sessions and the consoles that belonged to them.
func (a *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *App) sweep() {
	sessions := a.auth.Sessions()
	expired := sessions.Sweep()
	closed := a.consoles.Prune(func(token string) bool {
		_, ok := sessions.Get(token)
		return ok
	})
	if expired > 0 || closed > 0 {
		a.logger.Debug().Int("sessions", expired).Int("consoles", closed).Msg("swept expired sessions")
	}
}
