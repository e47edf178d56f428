// Package auth authenticates production staff and resolves bearer tokens to
// identities.
//
// Passwords are stored as bcrypt hashes on the profile record. Sessions live in
// memory (see [SessionStore]) and carry only a user ID; [Service.Resolve] reads
// the profile again on every call, so a role change is seen on the next request.
// A profile without a recognized role is treated as a viewer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// MinPasswordLength is the shortest password Register and CreateUser accept.
const MinPasswordLength = 6

// activityInterval bounds how often LastActive is written for one user.
const activityInterval = time.Minute

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("admin role required")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
)

// EventKind names an identity change.
type EventKind string

const (
	EventLogin    EventKind = "login"
	EventLogout   EventKind = "logout"
	EventRegister EventKind = "register"
)

// IdentityEvent reports a sign-in state change.
type IdentityEvent struct {
	Kind EventKind     `json:"kind"`
	User models.UserID `json:"user"`
	At   time.Time     `json:"at"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type Options struct {
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Clock      func() time.Time
	Logger     zerolog.Logger
}

// Service implements registration, sign-in and token resolution.
type Service struct {
	users    store.UserStore
	sessions *SessionStore
	cost     int
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	subs    map[int]chan IdentityEvent
	nextSub int
}

func NewService(users store.UserStore, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		users:    users,
		sessions: NewSessionStore(opts.SessionTTL, opts.Clock),
		cost:     opts.BcryptCost,
		now:      opts.Clock,
		logger:   opts.Logger.With().Str("component", "auth").Logger(),
		subs:     make(map[int]chan IdentityEvent),
	}
}

// Sessions exposes the session store, mainly for periodic sweeping.
func (s *Service) Sessions() *SessionStore { return s.sessions }

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NewUser describes a profile to create.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
	Role        models.Role
}

func (s *Service) create(ctx context.Context, nu NewUser) (*models.User, error) {
	email, err := normalizeEmail(nu.Email)
	if err != nil {
		return nil, err
	}
	if len(nu.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(nu.DisplayName)
	if name == "" {
		name = models.DefaultDisplayName(email)
	}
	u := &models.User{
		Email:        email,
		DisplayName:  name,
		Role:         nu.Role.OrDefault(),
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Service) startSession(u *models.User) (*Session, error) {
	g, err := s.sessions.Create(u.ID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{Token: g.Token, ExpiresAt: g.ExpiresAt, User: u}, nil
}

// Register creates a viewer profile and signs it in.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	u, err := s.create(ctx, NewUser{Email: email, Password: password, DisplayName: displayName, Role: models.RoleViewer})
	if err != nil {
		return nil, err
	}
	sess, err := s.startSession(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user", u.ID.String()).Msg("registered")
	s.publish(EventRegister, u.ID)
	return sess, nil
}

// CreateUser provisions a profile with a chosen role. Only admins may call it.
func (s *Service) CreateUser(ctx context.Context, admin *models.User, nu NewUser) (*models.User, error) {
	if admin == nil {
		return nil, ErrUnauthenticated
	}
	if admin.Role.OrDefault() != models.RoleAdmin {
		return nil, ErrForbidden
	}
	u, err := s.create(ctx, nu)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user", u.ID.String()).Str("role", string(u.Role)).Str("by", admin.ID.String()).Msg("user created")
	return u, nil
}

// Bootstrap creates a profile without an acting admin. It is meant for the CLI.
func (s *Service) Bootstrap(ctx context.Context, nu NewUser) (*models.User, error) {
	return s.create(ctx, nu)
}

// Login checks credentials and starts a session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	u.Role = u.Role.OrDefault()
	s.touch(ctx, u, true)

	sess, err := s.startSession(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user", u.ID.String()).Msg("login")
	s.publish(EventLogin, u.ID)
	return sess, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	id, ok := s.sessions.Delete(token)
	if !ok {
		return
	}
	s.logger.Info().Str("user", id.String()).Msg("logout")
	s.publish(EventLogout, id)
}

// Resolve returns the profile behind token, read fresh from the store.
func (s *Service) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	id, ok := s.sessions.Get(token)
	if !ok {
		return nil, ErrUnauthenticated
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if u == nil {
		s.sessions.Delete(token)
		return nil, ErrUnauthenticated
	}
	u.Role = u.Role.OrDefault()
	s.touch(ctx, u, false)
	return u, nil
}

// Refresh swaps token for a new one.
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	g, ok, err := s.sessions.Rotate(token)
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if !ok {
		return nil, ErrUnauthenticated
	}
	u, err := s.users.GetUser(ctx, g.User)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if u == nil {
		s.sessions.Delete(g.Token)
		return nil, ErrUnauthenticated
	}
	u.Role = u.Role.OrDefault()
	return &Session{Token: g.Token, ExpiresAt: g.ExpiresAt, User: u}, nil
}

// Revoke ends every session of id, e.g. after the profile is deleted.
func (s *Service) Revoke(id models.UserID) {
	if n := s.sessions.DeleteUser(id); n > 0 {
		s.publish(EventLogout, id)
	}
}

// touch stamps LastActive, at most once per activityInterval unless force is set.
// Failures are logged and otherwise ignored.
func (s *Service) touch(ctx context.Context, u *models.User, force bool) {
	now := s.now()
	if !force && u.LastActive != nil && now.Sub(*u.LastActive) < activityInterval {
		return
	}
	if err := s.users.TouchUser(ctx, u.ID, now); err != nil {
		s.logger.Debug().Err(err).Str("user", u.ID.String()).Msg("touch user")
		return
	}
	u.LastActive = &now
}

// Subscribe streams identity changes. Events are dropped for a subscriber whose
// buffer is full.
func (s *Service) Subscribe(buffer int) (<-chan IdentityEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan IdentityEvent, buffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) publish(kind EventKind, id models.UserID) {
	ev := IdentityEvent{Kind: kind, User: id, At: s.now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
