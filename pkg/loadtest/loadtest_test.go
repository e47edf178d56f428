package loadtest_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/config"
	"github.com/realitylog/realitylog/pkg/loadtest"
	"github.com/realitylog/realitylog/pkg/realitylog"
	"github.com/realitylog/realitylog/pkg/seed"
	"github.com/realitylog/realitylog/pkg/store/memory"
)

// startServer serves a fresh app with one admin and the reference data in f.
// A nil f leaves the store empty.
func startServer(t *testing.T, f *seed.File) string {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.BcryptCost = bcrypt.MinCost
	st := memory.New()
	app := realitylog.NewWithStore(&cfg, st, zerolog.Nop())
	t.Cleanup(func() { _ = app.Close() })

	ctx := context.Background()
	_, err := app.CreateUser(ctx, &realitylog.UserCreateCommand{
		Email: "admin@example.com", Password: "admin-password", Role: "admin",
	})
	require.NoError(t, err)
	if f != nil {
		_, err = seed.Apply(ctx, st, f)
		require.NoError(t, err)
	}

	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunConcurrentOperators(t *testing.T) {
	baseURL := startServer(t, seed.Default())

	report, err := loadtest.Run(context.Background(), loadtest.Options{
		BaseURL:       baseURL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin-password",
		Operators:     4,
		Entries:       10,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Operators)
	assert.EqualValues(t, 40, report.Submitted)
	assert.LessOrEqual(t, report.Deleted, report.Submitted)
	assert.Contains(t, report.String(), "4 operators submitted 40 entries")
}

func TestRunWithoutCast(t *testing.T) {
	f := seed.Default()
	f.Participants = nil
	baseURL := startServer(t, f)

	report, err := loadtest.Run(context.Background(), loadtest.Options{
		BaseURL:       baseURL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin-password",
		Operators:     2,
		Entries:       5,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 10, report.Submitted)
}

func TestScenarioIsDeterministic(t *testing.T) {
	baseURL := startServer(t, seed.Default())
	ctx := context.Background()

	admin := client.NewClient(baseURL)
	_, err := admin.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)

	run := func() (kept, deleted int) {
		op := loadtest.NewVirtualOperator(1, baseURL)
		require.NoError(t, op.Provision(ctx, admin))
		require.NoError(t, op.RunScenario(ctx, 15))
		return len(op.Entries), len(op.Deleted)
	}
	k1, d1 := run()
	k2, d2 := run()
	assert.Equal(t, k1, k2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 15, k1+d1)
}

func TestRunNeedsReferenceData(t *testing.T) {
	baseURL := startServer(t, nil)

	_, err := loadtest.Run(context.Background(), loadtest.Options{
		BaseURL:       baseURL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin-password",
		Operators:     1,
		Entries:       1,
		Logger:        zerolog.Nop(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reference data")
}

func TestRunRejectsBadAdmin(t *testing.T) {
	baseURL := startServer(t, seed.Default())

	_, err := loadtest.Run(context.Background(), loadtest.Options{
		BaseURL:       baseURL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "wrong",
		Operators:     1,
		Entries:       1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin login failed")
}
