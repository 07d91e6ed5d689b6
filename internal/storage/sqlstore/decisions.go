package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/tenet/internal/types"
)

const decisionColumns = `id, org_id, title, description, category, parameters, lifecycle,
	health_signal, version, governance_locked, last_reviewed_at, created_by, created_at, updated_at`

func scanDecision(row scanner) (*types.Decision, error) {
	var (
		d          types.Decision
		params     string
		lifecycle  string
		reviewedAt sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&d.ID, &d.OrgID, &d.Title, &d.Description, &d.Category, &params, &lifecycle,
		&d.HealthSignal, &d.Version, &d.GovernanceLocked, &reviewedAt, &d.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Lifecycle = types.Lifecycle(lifecycle)

	var err error
	if d.Parameters, err = decodeParams(params); err != nil {
		return nil, err
	}
	if d.LastReviewedAt, err = parseNullTime(reviewedAt); err != nil {
		return nil, fmt.Errorf("parse last_reviewed_at: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &d, nil
}

func (c *conn) queryDecisions(ctx context.Context, query string, args ...any) ([]*types.Decision, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDecision retrieves a decision by ID.
func (c *conn) GetDecision(ctx context.Context, id string) (*types.Decision, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE org_id = ? AND id = ?`, c.orgID, id)
	d, err := scanDecision(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get decision %s", id)
	}
	return d, nil
}

// ListDecisions returns the organization's decisions, oldest first.
func (c *conn) ListDecisions(ctx context.Context, filter types.DecisionFilter) ([]*types.Decision, error) {
	where := []string{"org_id = ?"}
	args := []any{c.orgID}
	if filter.Lifecycle != nil {
		where = append(where, "lifecycle = ?")
		args = append(args, string(*filter.Lifecycle))
	} else if !filter.IncludeRetired {
		where = append(where, "lifecycle <> ?")
		args = append(args, string(types.LifecycleRetired))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	out, err := c.queryDecisions(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list decisions", err)
	}
	return out, nil
}

// CreateDecision inserts a new decision. ID, timestamps and org are set by
// the caller.
func (t *tx) CreateDecision(ctx context.Context, d *types.Decision) error {
	d.OrgID = t.orgID
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	params, err := encodeParams(d.Parameters)
	if err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO decisions (`+decisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OrgID, d.Title, d.Description, d.Category, params, string(d.Lifecycle),
		d.HealthSignal, d.Version, d.GovernanceLocked, nullTime(d.LastReviewedAt), d.CreatedBy,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	return wrapDBErrorf(err, "insert decision %s", d.ID)
}

// UpdateDecision writes every mutable field of d.
func (t *tx) UpdateDecision(ctx context.Context, d *types.Decision) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	params, err := encodeParams(d.Parameters)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()

	res, err := t.q.ExecContext(ctx, `
		UPDATE decisions
		SET title = ?, description = ?, category = ?, parameters = ?, lifecycle = ?,
		    health_signal = ?, version = ?, governance_locked = ?, last_reviewed_at = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		d.Title, d.Description, d.Category, params, string(d.Lifecycle),
		d.HealthSignal, d.Version, d.GovernanceLocked, nullTime(d.LastReviewedAt), formatTime(d.UpdatedAt),
		t.orgID, d.ID,
	)
	if err != nil {
		return wrapDBErrorf(err, "update decision %s", d.ID)
	}
	return requireAffected(res, "update decision "+d.ID)
}
