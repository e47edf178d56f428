package realitylog

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/realitylog/realitylog/pkg/config"
	"github.com/realitylog/realitylog/pkg/store/transfer"
)

// CopyTo opens cmd.Target, brings its schema up to date and copies the
// configured backend into it. The source is only read.
//
// Empty target settings are taken from the configured store, so a SurrealDB
// target only needs the fields that differ.
func (a *App) CopyTo(ctx context.Context, cmd *CopyCommand) (transfer.Result, error) {
	target := *a.config
	target.Store = mergeStore(a.config.Store, cmd.Target)
	if err := target.Finish(); err != nil {
		return transfer.Result{}, fmt.Errorf("invalid target: %w", err)
	}
	if target.Store.Backend == config.BackendMemory {
		return transfer.Result{}, errors.New("a memory target would be discarded on exit")
	}
	if sameLocation(a.config.Store, target.Store) {
		return transfer.Result{}, errors.New("target is the configured backend")
	}

	dst, err := openStore(ctx, target.Store)
	if err != nil {
		return transfer.Result{}, err
	}
	defer dst.Close()
	if err := dst.Migrate(ctx); err != nil {
		return transfer.Result{}, fmt.Errorf("failed to migrate target: %w", err)
	}

	a.logger.Info().
		Str("from", a.config.Store.Backend).
		Str("to", target.Store.Backend).
		Time("since", cmd.Since).
		Time("until", cmd.Until).
		Msg("copying production log")
	return transfer.Copy(ctx, a.store, dst, transfer.Options{
		Since:  cmd.Since,
		Until:  cmd.Until,
		Logger: a.logger,
	})
}

func mergeStore(base, over config.Store) config.Store {
	return config.Store{
		Backend:     over.Backend,
		PostgresDSN: cmp.Or(over.PostgresDSN, base.PostgresDSN),
		SQLitePath:  cmp.Or(over.SQLitePath, base.SQLitePath),
		SurrealURL:  cmp.Or(over.SurrealURL, base.SurrealURL),
		SurrealNS:   cmp.Or(over.SurrealNS, base.SurrealNS),
		SurrealDB:   cmp.Or(over.SurrealDB, base.SurrealDB),
		SurrealUser: cmp.Or(over.SurrealUser, base.SurrealUser),
		SurrealPass: cmp.Or(over.SurrealPass, base.SurrealPass),
		MaxOpenConn: cmp.Or(over.MaxOpenConn, base.MaxOpenConn),
		Debug:       over.Debug || base.Debug,
	}
}

func sameLocation(a, b config.Store) bool {
	if a.Backend != b.Backend {
		return false
	}
	switch a.Backend {
	case config.BackendSQLite:
		return a.SQLitePath == b.SQLitePath
	case config.BackendPostgres:
		return a.PostgresDSN == b.PostgresDSN
	case config.BackendSurrealDB:
		return a.SurrealURL == b.SurrealURL && a.SurrealNS == b.SurrealNS && a.SurrealDB == b.SurrealDB
	}
	return true
}
