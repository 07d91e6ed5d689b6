package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

const constraintColumns = `id, org_id, name, description, constraint_type, is_immutable, created_at`

func scanConstraint(row scanner) (*types.Constraint, error) {
	var (
		c         types.Constraint
		ctype     string
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Description, &ctype, &c.IsImmutable, &createdAt); err != nil {
		return nil, err
	}
	c.Type = types.ConstraintType(ctype)
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &c, nil
}

// GetConstraint retrieves a constraint by ID.
func (c *conn) GetConstraint(ctx context.Context, id string) (*types.Constraint, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+constraintColumns+` FROM org_constraints WHERE org_id = ? AND id = ?`, c.orgID, id)
	con, err := scanConstraint(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get constraint %s", id)
	}
	return con, nil
}

// ListConstraints returns every constraint of the organization. All of them
// apply to all of its decisions.
func (c *conn) ListConstraints(ctx context.Context) ([]*types.Constraint, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+constraintColumns+` FROM org_constraints WHERE org_id = ? ORDER BY created_at, id`, c.orgID)
	if err != nil {
		return nil, wrapDBError("list constraints", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Constraint
	for rows.Next() {
		con, err := scanConstraint(rows)
		if err != nil {
			return nil, wrapDBError("scan constraint", err)
		}
		out = append(out, con)
	}
	return out, rows.Err()
}

// CreateConstraint inserts a new constraint.
func (t *tx) CreateConstraint(ctx context.Context, c *types.Constraint) error {
	c.OrgID = t.orgID
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO org_constraints (`+constraintColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrgID, c.Name, c.Description, string(c.Type), c.IsImmutable, formatTime(c.CreatedAt),
	)
	return wrapDBErrorf(err, "insert constraint %s", c.ID)
}

// DeleteConstraint removes a constraint. Since a constraint applies to every
// decision, it counts as referenced while any non-retired decision exists.
func (t *tx) DeleteConstraint(ctx context.Context, id string, unlinkFirst bool) error {
	if _, err := t.GetConstraint(ctx, id); err != nil {
		return err
	}
	if !unlinkFirst {
		active, err := t.ListDecisions(ctx, types.DecisionFilter{})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			ids := make([]string, len(active))
			for i, d := range active {
				ids[i] = d.ID
			}
			return &storage.InUseError{EntityID: id, ReferencedBy: ids}
		}
	}
	res, err := t.q.ExecContext(ctx, `DELETE FROM org_constraints WHERE org_id = ? AND id = ?`, t.orgID, id)
	if err != nil {
		return wrapDBErrorf(err, "delete constraint %s", id)
	}
	return requireAffected(res, "delete constraint "+id)
}
