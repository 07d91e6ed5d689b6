package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

const conflictColumns = `id, org_id, kind, entity_a, entity_b, conflict_type, confidence, explanation,
	fingerprint, detected_at, resolved_at, resolution_action, resolution_notes, resolved_by`

func scanConflict(row scanner) (*types.Conflict, error) {
	var (
		c          types.Conflict
		kind       string
		ctype      string
		detectedAt string
		resolvedAt sql.NullString
		action     sql.NullString
		notes      sql.NullString
		resolvedBy sql.NullString
	)
	if err := row.Scan(&c.ID, &c.OrgID, &kind, &c.EntityA, &c.EntityB, &ctype, &c.Confidence, &c.Explanation,
		&c.Fingerprint, &detectedAt, &resolvedAt, &action, &notes, &resolvedBy); err != nil {
		return nil, err
	}
	c.Kind = types.ConflictKind(kind)
	c.Type = types.ConflictType(ctype)
	c.Resolution = types.ResolutionAction(action.String)
	c.ResolutionNotes = notes.String
	c.ResolvedBy = resolvedBy.String

	var err error
	if c.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, fmt.Errorf("parse detected_at: %w", err)
	}
	if c.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, fmt.Errorf("parse resolved_at: %w", err)
	}
	return &c, nil
}

func (c *conn) queryConflicts(ctx context.Context, query string, args ...any) ([]*types.Conflict, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Conflict
	for rows.Next() {
		con, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, con)
	}
	return out, rows.Err()
}

// GetConflict retrieves a conflict by ID.
func (c *conn) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE org_id = ? AND id = ?`, c.orgID, id)
	con, err := scanConflict(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get conflict %s", id)
	}
	return con, nil
}

// ListConflicts returns conflicts, most recently detected first.
func (c *conn) ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.Conflict, error) {
	where := []string{"org_id = ?"}
	args := []any{c.orgID}
	if filter.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.OpenOnly {
		where = append(where, "resolved_at IS NULL")
	}
	if filter.EntityID != "" {
		where = append(where, "(entity_a = ? OR entity_b = ?)")
		args = append(args, filter.EntityID, filter.EntityID)
	}
	out, err := c.queryConflicts(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE `+
		strings.Join(where, " AND ")+` ORDER BY detected_at DESC, id`, args...)
	if err != nil {
		return nil, wrapDBError("list conflicts", err)
	}
	return out, nil
}

// FindOpenConflict returns the open conflict for the unordered pair {a, b},
// or ErrNotFound.
func (c *conn) FindOpenConflict(ctx context.Context, kind types.ConflictKind, a, b string) (*types.Conflict, error) {
	lo, hi := types.PairKey(a, b)
	row := c.q.QueryRowContext(ctx, `
		SELECT `+conflictColumns+` FROM conflicts
		WHERE org_id = ? AND kind = ? AND pair_lo = ? AND pair_hi = ? AND resolved_at IS NULL
		ORDER BY detected_at LIMIT 1`, c.orgID, string(kind), lo, hi)
	con, err := scanConflict(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "find open conflict %s/%s", a, b)
	}
	return con, nil
}

// IsSuppressed reports whether a pair with this fingerprint was already
// settled: resolved by a resolution, or dismissed as a false positive.
func (c *conn) IsSuppressed(ctx context.Context, kind types.ConflictKind, fingerprint string) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conflicts
			 WHERE org_id = ? AND kind = ? AND fingerprint = ? AND resolved_at IS NOT NULL)
			+
			(SELECT COUNT(*) FROM dismissed_pairs
			 WHERE org_id = ? AND kind = ? AND fingerprint = ?)`,
		c.orgID, string(kind), fingerprint, c.orgID, string(kind), fingerprint).Scan(&n)
	if err != nil {
		return false, wrapDBError("check suppressed pair", err)
	}
	return n > 0, nil
}

// CreateConflict inserts a new open conflict.
func (t *tx) CreateConflict(ctx context.Context, c *types.Conflict) error {
	c.OrgID = t.orgID
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	lo, hi := types.PairKey(c.EntityA, c.EntityB)
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO conflicts (id, org_id, kind, entity_a, entity_b, pair_lo, pair_hi, conflict_type,
			confidence, explanation, fingerprint, detected_at, resolved_at, resolution_action, resolution_notes, resolved_by,
			open_pair)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrgID, string(c.Kind), c.EntityA, c.EntityB, lo, hi, string(c.Type),
		c.Confidence, c.Explanation, c.Fingerprint, formatTime(c.DetectedAt),
		nullTime(c.ResolvedAt), nullString(string(c.Resolution)), nullString(c.ResolutionNotes), nullString(c.ResolvedBy),
		openPair(c),
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("insert conflict %s: open %s conflict on %s/%s: %w", c.ID, c.Kind, lo, hi, storage.ErrAlreadyExists)
	}
	return wrapDBErrorf(err, "insert conflict %s", c.ID)
}

// UpdateConflict writes classification and resolution fields.
func (t *tx) UpdateConflict(ctx context.Context, c *types.Conflict) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE conflicts
		SET conflict_type = ?, confidence = ?, explanation = ?, fingerprint = ?,
		    resolved_at = ?, resolution_action = ?, resolution_notes = ?, resolved_by = ?, open_pair = ?
		WHERE org_id = ? AND id = ?`,
		string(c.Type), c.Confidence, c.Explanation, c.Fingerprint,
		nullTime(c.ResolvedAt), nullString(string(c.Resolution)), nullString(c.ResolutionNotes), nullString(c.ResolvedBy),
		openPair(c), t.orgID, c.ID,
	)
	if err != nil {
		return wrapDBErrorf(err, "update conflict %s", c.ID)
	}
	return requireAffected(res, "update conflict "+c.ID)
}

// openPair is the unique key of an open conflict, NULL once resolved.
func openPair(c *types.Conflict) sql.NullString {
	if !c.IsOpen() {
		return sql.NullString{}
	}
	lo, hi := types.PairKey(c.EntityA, c.EntityB)
	return sql.NullString{String: string(c.Kind) + ":" + lo + ":" + hi, Valid: true}
}

// DeleteConflict hard-deletes a conflict.
func (t *tx) DeleteConflict(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM conflicts WHERE org_id = ? AND id = ?`, t.orgID, id)
	if err != nil {
		return wrapDBErrorf(err, "delete conflict %s", id)
	}
	return requireAffected(res, "delete conflict "+id)
}

// DismissPair remembers the fingerprint of a dismissed conflict so that the
// detector does not raise the same unchanged pair again.
func (t *tx) DismissPair(ctx context.Context, c *types.Conflict, actor string) error {
	var n int
	if err := t.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dismissed_pairs WHERE org_id = ? AND kind = ? AND fingerprint = ?`,
		t.orgID, string(c.Kind), c.Fingerprint).Scan(&n); err != nil {
		return wrapDBError("check dismissed pair", err)
	}
	if n > 0 {
		return nil
	}
	lo, hi := types.PairKey(c.EntityA, c.EntityB)
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO dismissed_pairs (org_id, kind, fingerprint, pair_lo, pair_hi, dismissed_by, dismissed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.orgID, string(c.Kind), c.Fingerprint, lo, hi, actor, formatTime(time.Now()))
	return wrapDBErrorf(err, "dismiss pair %s/%s", lo, hi)
}

