package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryMaxElapsed bounds how long a transaction keeps retrying transient
// errors before giving up.
const retryMaxElapsed = 30 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is transient: a busy SQLite
// file, a dropped server connection, or a deadlock the server rolled back.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		// SQLite lock contention that outlived busy_timeout
		"database is locked",
		"sqlite_busy",
		// MySQL driver transient errors
		"driver: bad connection",
		"invalid connection",
		// Network blips and server restarts
		"broken pipe",
		"connection reset",
		"connection refused",
		"i/o timeout",
		// MySQL 2013 / 2006
		"lost connection",
		"gone away",
		// MySQL 1213 / 1205, raised by Dolt on write-write conflicts too
		"deadlock found",
		"lock wait timeout",
		"serialization failure",
		// Dolt under load
		"database is read only",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// withRetry runs op, retrying transient errors with exponential backoff.
// Anything else stops the loop immediately.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && isRetryableError(err) {
			s.logger.Debug("retrying transaction", "backend", s.backend, "attempt", attempt, "error", err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newRetryBackoff(), ctx))
}
