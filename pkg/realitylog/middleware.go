package realitylog

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/models"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const (
	identityKey ctxKey = iota
	tokenKey
)

// requestID tags the request logger with an ID, reusing the caller's if sent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

func accessLog() func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		ev := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("latency", d).
			Msg("request")
	})
}

// bearerToken reads the session token from the Authorization header, or from
// the token query parameter for WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// authenticate resolves the session token, if any, into an identity on the
// request context. Requests without a valid token continue anonymously.
func (a *App) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, err := a.auth.Resolve(r.Context(), token)
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			next.ServeHTTP(w, r)
			return
		case err != nil:
			fail(w, r, err)
			return
		}
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user", u.ID.String())
		})
		ctx := context.WithValue(r.Context(), identityKey, u)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identity returns the signed-in user, or nil.
func identity(ctx context.Context) *models.User {
	u, _ := ctx.Value(identityKey).(*models.User)
	return u
}

func sessionToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *models.User)

// signedIn rejects anonymous requests with 401.
func signedIn(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := identity(r.Context())
		if u == nil {
			fail(w, r, auth.ErrUnauthenticated)
			return
		}
		h(w, r, u)
	}
}

// adminOnly rejects anonymous requests with 401 and non-admins with 403.
func adminOnly(h userHandler) http.HandlerFunc {
	return signedIn(func(w http.ResponseWriter, r *http.Request, u *models.User) {
		if u.Role.OrDefault() != models.RoleAdmin {
			fail(w, r, auth.ErrForbidden)
			return
		}
		h(w, r, u)
	})
}
