package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	// Pure-Go SQLite driver, registered as "sqlite"
	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied on every new connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func sqliteDSN(path string) string {
	v := url.Values{}
	for _, p := range sqlitePragmas {
		v.Add("_pragma", p)
	}
	// BEGIN IMMEDIATE takes the write lock up front so concurrent writers
	// wait on busy_timeout instead of failing at their first write.
	v.Set("_txlock", "immediate")
	return "file:" + path + "?" + v.Encode()
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// returns a store bound to orgID.
func OpenSQLite(ctx context.Context, path, orgID string, opts ...Option) (*Store, error) {
	if orgID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %s: %w", path, err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := newStore(db, backendSQLite, orgID, opts...)
	s.logger.Debug("opened store", "backend", backendSQLite, "path", path, "org", orgID)
	return s, nil
}
