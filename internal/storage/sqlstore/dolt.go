package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/steveyegge/tenet/internal/storage"
)

// DoltConfig describes a Dolt sql-server connection.
type DoltConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// DSN overrides every field above when set (tests use the DSN a
	// container hands out).
	DSN string

	// AutoCommit creates a Dolt commit after every committed transaction so
	// the database keeps its own version history next to the event log.
	AutoCommit bool
}

var databaseNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func validateDatabaseName(name string) error {
	if !databaseNameRe.MatchString(name) {
		return fmt.Errorf("database name must match %s", databaseNameRe)
	}
	return nil
}

func buildServerDSN(cfg DoltConfig, database string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = database
	mc.Timeout = 5 * time.Second
	// UPDATE must report matched rows, not changed rows, for not-found checks
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

// OpenDolt connects to a Dolt sql-server, creates the database and schema if
// needed and returns a store bound to orgID.
func OpenDolt(ctx context.Context, cfg DoltConfig, orgID string, opts ...Option) (*Store, error) {
	if orgID == "" {
		return nil, fmt.Errorf("organization id is required")
	}

	dsn := cfg.DSN
	if dsn == "" {
		if err := validateDatabaseName(cfg.Database); err != nil {
			return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
		}
		if err := createDatabase(ctx, cfg); err != nil {
			return nil, err
		}
		dsn = buildServerDSN(cfg, cfg.Database)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Dolt server connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := newStore(db, backendDolt, orgID, opts...)

	// The server may still be starting; ride out refused connections.
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to Dolt server at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.AutoCommit {
		s.afterCommit = s.doltCommit
	}
	s.logger.Debug("opened store", "backend", backendDolt, "addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), "org", orgID)
	return s, nil
}

func createDatabase(ctx context.Context, cfg DoltConfig) error {
	initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
	if err != nil {
		return fmt.Errorf("failed to open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // name validated above
	if err != nil {
		errLower := strings.ToLower(err.Error())
		// Dolt may return 1007 even with IF NOT EXISTS
		if !strings.Contains(errLower, "database exists") && !strings.Contains(errLower, "1007") {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}
	return nil
}

// doltCommit records the just-committed SQL transaction as a Dolt commit.
// Failures are logged: the SQL transaction is already durable.
func (s *Store) doltCommit(ctx context.Context) {
	msg := storage.OperationFrom(ctx)
	if msg == "" {
		msg = "engine transaction"
	}
	_, err := s.db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', ?)", "tenet: "+msg)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "nothing to commit") {
		s.logger.Warn("dolt commit failed", "operation", msg, "error", err)
	}
}
