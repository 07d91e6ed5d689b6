package main

import (
	"context"
	"fmt"

	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/storage/sqlstore"
)

// openStore opens the configured backend for the configured organization.
func openStore(ctx context.Context, s config.Settings) (storage.Storage, error) {
	opts := []sqlstore.Option{sqlstore.WithLogger(logger)}
	switch s.Backend {
	case "", config.BackendSQLite:
		return sqlstore.OpenSQLite(ctx, s.DB, s.Org, opts...)
	case config.BackendDolt:
		return sqlstore.OpenDolt(ctx, doltConfig(s.Dolt), s.Org, opts...)
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", s.Backend, config.BackendSQLite, config.BackendDolt)
	}
}

func doltConfig(d config.DoltSettings) sqlstore.DoltConfig {
	return sqlstore.DoltConfig{
		Host:       d.Host,
		Port:       d.Port,
		User:       d.User,
		Password:   d.Password,
		Database:   d.Database,
		AutoCommit: d.AutoCommit,
	}
}
