package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

func (c *conn) queryDependencies(ctx context.Context, query string, args ...any) ([]*types.Dependency, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Dependency
	for rows.Next() {
		var (
			dep       types.Dependency
			createdAt string
		)
		if err := rows.Scan(&dep.OrgID, &dep.SourceID, &dep.TargetID, &dep.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		if dep.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, &dep)
	}
	return out, rows.Err()
}

// GetDependencies returns the edges touching a decision in either direction.
func (c *conn) GetDependencies(ctx context.Context, decisionID string) ([]*types.Dependency, error) {
	out, err := c.queryDependencies(ctx, `
		SELECT org_id, source_id, target_id, created_by, created_at FROM dependencies
		WHERE org_id = ? AND (source_id = ? OR target_id = ?)
		ORDER BY created_at, source_id, target_id`, c.orgID, decisionID, decisionID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get dependencies of %s", decisionID)
	}
	return out, nil
}

// ListDependencies returns every edge of the organization.
func (c *conn) ListDependencies(ctx context.Context) ([]*types.Dependency, error) {
	out, err := c.queryDependencies(ctx, `
		SELECT org_id, source_id, target_id, created_by, created_at FROM dependencies
		WHERE org_id = ? ORDER BY created_at, source_id, target_id`, c.orgID)
	if err != nil {
		return nil, wrapDBError("list dependencies", err)
	}
	return out, nil
}

// AddDependency inserts the edge source -> target after checking that
// target cannot already reach source through non-retired decisions.
func (t *tx) AddDependency(ctx context.Context, dep *types.Dependency) error {
	dep.OrgID = t.orgID
	if dep.SourceID == dep.TargetID {
		return &storage.CycleError{SourceID: dep.SourceID, TargetID: dep.TargetID}
	}
	for _, id := range []string{dep.SourceID, dep.TargetID} {
		if _, err := t.GetDecision(ctx, id); err != nil {
			return err
		}
	}

	var exists int
	if err := t.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dependencies WHERE org_id = ? AND source_id = ? AND target_id = ?`,
		t.orgID, dep.SourceID, dep.TargetID).Scan(&exists); err != nil {
		return wrapDBError("check existing dependency", err)
	}
	if exists > 0 {
		return fmt.Errorf("dependency %s -> %s: %w", dep.SourceID, dep.TargetID, storage.ErrAlreadyExists)
	}

	reachable, err := t.reaches(ctx, dep.TargetID, dep.SourceID)
	if err != nil {
		return err
	}
	if reachable {
		return &storage.CycleError{SourceID: dep.SourceID, TargetID: dep.TargetID}
	}

	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO dependencies (org_id, source_id, target_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		dep.OrgID, dep.SourceID, dep.TargetID, dep.CreatedBy, formatTime(dep.CreatedAt))
	return wrapDBErrorf(err, "insert dependency %s -> %s", dep.SourceID, dep.TargetID)
}

// reaches reports whether to is reachable from from by following
// "depends on" edges between non-retired decisions.
func (c *conn) reaches(ctx context.Context, from, to string) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `
		WITH RECURSIVE reachable(id) AS (
			SELECT CAST(? AS CHAR(64))
			UNION
			SELECT d.target_id
			FROM dependencies d
			JOIN reachable r ON d.source_id = r.id
			JOIN decisions x ON x.id = d.target_id
			WHERE d.org_id = ? AND x.lifecycle <> ?
		)
		SELECT COUNT(*) FROM reachable WHERE id = ?`,
		from, c.orgID, string(types.LifecycleRetired), to).Scan(&n)
	if err != nil {
		return false, wrapDBError("check dependency cycle", err)
	}
	return n > 0, nil
}

// RemoveDependency deletes the edge source -> target.
func (t *tx) RemoveDependency(ctx context.Context, sourceID, targetID string) error {
	res, err := t.q.ExecContext(ctx, `
		DELETE FROM dependencies WHERE org_id = ? AND source_id = ? AND target_id = ?`,
		t.orgID, sourceID, targetID)
	if err != nil {
		return wrapDBErrorf(err, "remove dependency %s -> %s", sourceID, targetID)
	}
	return requireAffected(res, fmt.Sprintf("remove dependency %s -> %s", sourceID, targetID))
}
