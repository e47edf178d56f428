package realitylog

import (
	"context"
	"fmt"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/seed"
)

// Migrate creates or upgrades the schema of the configured backend. It is safe
// to run repeatedly and never drops data.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.logger.Info().Msg("running database migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.logger.Info().Msg("migrations completed")
	return nil
}

// Seed loads reference data. Records whose name already exists are skipped.
func (a *App) Seed(ctx context.Context, cmd *SeedCommand) (seed.Result, error) {
	var (
		f   *seed.File
		err error
	)
	if cmd.Default {
		f = seed.Default()
	} else {
		f, err = seed.ReadFile(cmd.File)
		if err != nil {
			return seed.Result{}, err
		}
	}
	res, err := seed.Apply(ctx, a.store, f)
	if err != nil {
		return res, err
	}
	a.logger.Info().
		Str("source", seedSource(cmd)).
		Interface("created", res.Created).
		Interface("skipped", res.Skipped).
		Msg("reference data seeded")
	return res, nil
}

func seedSource(cmd *SeedCommand) string {
	if cmd.Default {
		return "default"
	}
	return cmd.File
}

// CreateUser creates a profile without requiring an admin session.
func (a *App) CreateUser(ctx context.Context, cmd *UserCreateCommand) (*models.User, error) {
	role, err := models.ParseRole(cmd.Role)
	if err != nil {
		return nil, err
	}
	return a.auth.Bootstrap(ctx, auth.NewUser{
		Email:       cmd.Email,
		Password:    cmd.Password,
		DisplayName: cmd.DisplayName,
		Role:        role,
	})
}
