package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store/memory"
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newService(t *testing.T) (*Service, *memory.MemoryStore, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC)}
	mem := memory.New()
	svc := NewService(mem, Options{
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
		Clock:      clk.Now,
		Logger:     zerolog.Nop(),
	})
	return svc, mem, clk
}

func TestRegisterCreatesViewer(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, "jo@example.com", "secret1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, models.RoleViewer, sess.User.Role)
	assert.Equal(t, "jo", sess.User.DisplayName)
	assert.NotEqual(t, "secret1", sess.User.PasswordHash)

	stored, err := mem.GetUser(ctx, sess.User.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "secret1", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(ctx, "a@example.com", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Register(ctx, "a@example.com", "secret1", "")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "A@Example.com", "secret1", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginAndResolve(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "jo@example.com", "secret1", "Jo")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "jo@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := svc.Login(ctx, "JO@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, sess.User.LastActive)

	u, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	// A role change is visible on the next resolve.
	u.Role = models.RoleLogger
	require.NoError(t, mem.UpdateUser(ctx, u))
	u, err = svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLogger, u.Role)

	svc.Logout(sess.Token)
	_, err = svc.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveDefaultsUnknownRoleToViewer(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()
	sess, err := svc.Register(ctx, "jo@example.com", "secret1", "")
	require.NoError(t, err)

	u, err := mem.GetUser(ctx, sess.User.ID)
	require.NoError(t, err)
	u.Role = ""
	require.NoError(t, mem.UpdateUser(ctx, u))

	u, err = svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, u.Role)
}

func TestSessionExpiry(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	sess, err := svc.Register(ctx, "jo@example.com", "secret1", "")
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	_, err = svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = svc.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	sess, err := svc.Register(ctx, "jo@example.com", "secret1", "")
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	next, err := svc.Refresh(ctx, sess.Token)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, next.Token)
	assert.True(t, next.ExpiresAt.After(sess.ExpiresAt))

	_, err = svc.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Refresh(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Resolve(ctx, next.Token)
	assert.NoError(t, err)
}

func TestResolveThrottlesActivity(t *testing.T) {
	svc, mem, clk := newService(t)
	ctx := context.Background()
	sess, err := svc.Login(ctx, mustRegister(t, svc), "secret1")
	require.NoError(t, err)
	first := *sess.User.LastActive

	clk.Advance(30 * time.Second)
	_, err = svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	u, err := mem.GetUser(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.True(t, u.LastActive.Equal(first))

	clk.Advance(31 * time.Second)
	_, err = svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	u, err = mem.GetUser(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.True(t, u.LastActive.After(first))
}

func mustRegister(t *testing.T, svc *Service) string {
	t.Helper()
	_, err := svc.Register(context.Background(), "op@example.com", "secret1", "")
	require.NoError(t, err)
	return "op@example.com"
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	nu := NewUser{Email: "logger@example.com", Password: "secret1", Role: models.RoleLogger}

	_, err := svc.CreateUser(ctx, nil, nu)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.CreateUser(ctx, &models.User{ID: models.NewUserID(), Role: models.RoleLogger}, nu)
	assert.ErrorIs(t, err, ErrForbidden)

	u, err := svc.CreateUser(ctx, &models.User{ID: models.NewUserID(), Role: models.RoleAdmin}, nu)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLogger, u.Role)
}

func TestSubscribeReportsIdentityChanges(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	events, cancel := svc.Subscribe(8)
	defer cancel()

	sess, err := svc.Register(ctx, "jo@example.com", "secret1", "")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "jo@example.com", "secret1")
	require.NoError(t, err)
	svc.Logout(sess.Token)
	svc.Logout(sess.Token)

	var kinds []EventKind
	for range 3 {
		ev := <-events
		assert.Equal(t, sess.User.ID, ev.User)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventRegister, EventLogin, EventLogout}, kinds)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestRevokeEndsAllSessions(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	a, err := svc.Register(ctx, "jo@example.com", "secret1", "")
	require.NoError(t, err)
	b, err := svc.Login(ctx, "jo@example.com", "secret1")
	require.NoError(t, err)

	svc.Revoke(a.User.ID)
	for _, tok := range []string{a.Token, b.Token} {
		_, err := svc.Resolve(ctx, tok)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
	assert.Zero(t, svc.Sessions().Len())
}

func TestSweepRemovesExpired(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	s := NewSessionStore(time.Minute, clk.Now)
	_, err := s.Create(models.NewUserID())
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)
	_, err = s.Create(models.NewUserID())
	require.NoError(t, err)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}
