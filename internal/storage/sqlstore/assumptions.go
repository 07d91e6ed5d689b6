package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

const assumptionColumns = `id, org_id, description, status, scope, owner_decision_id, created_at, updated_at`

func scanAssumption(row scanner) (*types.Assumption, error) {
	var (
		a         types.Assumption
		status    string
		scope     string
		owner     sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&a.ID, &a.OrgID, &a.Description, &status, &scope, &owner, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Status = types.AssumptionStatus(status)
	a.Scope = types.AssumptionScope(scope)
	a.OwnerDecisionID = owner.String

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &a, nil
}

func (c *conn) queryAssumptions(ctx context.Context, query string, args ...any) ([]*types.Assumption, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Assumption
	for rows.Next() {
		a, err := scanAssumption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAssumption retrieves an assumption by ID.
func (c *conn) GetAssumption(ctx context.Context, id string) (*types.Assumption, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+assumptionColumns+` FROM assumptions WHERE org_id = ? AND id = ?`, c.orgID, id)
	a, err := scanAssumption(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get assumption %s", id)
	}
	return a, nil
}

// ListAssumptions returns assumptions matching the filter, oldest first.
func (c *conn) ListAssumptions(ctx context.Context, filter types.AssumptionFilter) ([]*types.Assumption, error) {
	if filter.DecisionID != "" {
		all, err := c.GetLinkedAssumptions(ctx, filter.DecisionID)
		if err != nil {
			return nil, err
		}
		var out []*types.Assumption
		for _, a := range all {
			if filter.Scope != nil && a.Scope != *filter.Scope {
				continue
			}
			if filter.Status != nil && a.Status != *filter.Status {
				continue
			}
			out = append(out, a)
		}
		return out, nil
	}

	where := []string{"org_id = ?"}
	args := []any{c.orgID}
	if filter.Scope != nil {
		where = append(where, "scope = ?")
		args = append(args, string(*filter.Scope))
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	out, err := c.queryAssumptions(ctx, `SELECT `+assumptionColumns+` FROM assumptions WHERE `+
		strings.Join(where, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, wrapDBError("list assumptions", err)
	}
	return out, nil
}

// GetLinkedAssumptions returns the assumptions linked to a decision.
func (c *conn) GetLinkedAssumptions(ctx context.Context, decisionID string) ([]*types.Assumption, error) {
	out, err := c.queryAssumptions(ctx, `
		SELECT a.id, a.org_id, a.description, a.status, a.scope, a.owner_decision_id, a.created_at, a.updated_at
		FROM assumptions a
		JOIN decision_assumptions l ON l.assumption_id = a.id
		WHERE l.org_id = ? AND l.decision_id = ?
		ORDER BY a.created_at, a.id`, c.orgID, decisionID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get assumptions of %s", decisionID)
	}
	return out, nil
}

// GetLinkedDecisions returns every decision, retired ones included, that
// links the assumption.
func (c *conn) GetLinkedDecisions(ctx context.Context, assumptionID string) ([]*types.Decision, error) {
	out, err := c.queryDecisions(ctx, `
		SELECT d.id, d.org_id, d.title, d.description, d.category, d.parameters, d.lifecycle,
		       d.health_signal, d.version, d.governance_locked, d.last_reviewed_at, d.created_by, d.created_at, d.updated_at
		FROM decisions d
		JOIN decision_assumptions l ON l.decision_id = d.id
		WHERE l.org_id = ? AND l.assumption_id = ?
		ORDER BY d.created_at, d.id`, c.orgID, assumptionID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get decisions linking %s", assumptionID)
	}
	return out, nil
}

// IsLinked reports whether the assumption is linked to the decision.
func (c *conn) IsLinked(ctx context.Context, decisionID, assumptionID string) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM decision_assumptions
		WHERE org_id = ? AND decision_id = ? AND assumption_id = ?`,
		c.orgID, decisionID, assumptionID).Scan(&n)
	if err != nil {
		return false, wrapDBError("check link", err)
	}
	return n > 0, nil
}

// CreateAssumption inserts a new assumption.
func (t *tx) CreateAssumption(ctx context.Context, a *types.Assumption) error {
	a.OrgID = t.orgID
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if a.Scope == types.ScopeDecisionSpecific {
		if _, err := t.GetDecision(ctx, a.OwnerDecisionID); err != nil {
			return err
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO assumptions (`+assumptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrgID, a.Description, string(a.Status), string(a.Scope), nullString(a.OwnerDecisionID),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return wrapDBErrorf(err, "insert assumption %s", a.ID)
}

// UpdateAssumption writes description and status. Scope and owner are
// fixed at creation.
func (t *tx) UpdateAssumption(ctx context.Context, a *types.Assumption) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	a.UpdatedAt = time.Now().UTC()
	res, err := t.q.ExecContext(ctx, `
		UPDATE assumptions SET description = ?, status = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		a.Description, string(a.Status), formatTime(a.UpdatedAt), t.orgID, a.ID,
	)
	if err != nil {
		return wrapDBErrorf(err, "update assumption %s", a.ID)
	}
	return requireAffected(res, "update assumption "+a.ID)
}

// DeleteAssumption removes an assumption, its remaining links and any open
// conflict naming it. Resolved conflicts stay for the audit trail.
func (t *tx) DeleteAssumption(ctx context.Context, id string, unlinkFirst bool) error {
	if _, err := t.GetAssumption(ctx, id); err != nil {
		return err
	}
	linked, err := t.GetLinkedDecisions(ctx, id)
	if err != nil {
		return err
	}
	var active []string
	for _, d := range linked {
		if !d.IsRetired() {
			active = append(active, d.ID)
		}
	}
	if len(active) > 0 && !unlinkFirst {
		return &storage.InUseError{EntityID: id, ReferencedBy: active}
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM decision_assumptions WHERE org_id = ? AND assumption_id = ?`, t.orgID, id); err != nil {
		return wrapDBErrorf(err, "unlink assumption %s", id)
	}
	if _, err := t.q.ExecContext(ctx, `
		DELETE FROM conflicts
		WHERE org_id = ? AND kind = ? AND resolved_at IS NULL AND (entity_a = ? OR entity_b = ?)`,
		t.orgID, string(types.KindAssumption), id, id); err != nil {
		return wrapDBErrorf(err, "drop open conflicts of %s", id)
	}
	res, err := t.q.ExecContext(ctx, `DELETE FROM assumptions WHERE org_id = ? AND id = ?`, t.orgID, id)
	if err != nil {
		return wrapDBErrorf(err, "delete assumption %s", id)
	}
	return requireAffected(res, "delete assumption "+id)
}

// LinkAssumption links an assumption to a decision, enforcing that a
// decision-specific assumption only ever links to its owner.
func (t *tx) LinkAssumption(ctx context.Context, decisionID, assumptionID string) error {
	if _, err := t.GetDecision(ctx, decisionID); err != nil {
		return err
	}
	a, err := t.GetAssumption(ctx, assumptionID)
	if err != nil {
		return err
	}
	if !a.CanLinkTo(decisionID) {
		return fmt.Errorf("%w: %s is specific to decision %s", storage.ErrInvalidLink, assumptionID, a.OwnerDecisionID)
	}
	linked, err := t.IsLinked(ctx, decisionID, assumptionID)
	if err != nil {
		return err
	}
	if linked {
		return fmt.Errorf("link %s -> %s: %w", decisionID, assumptionID, storage.ErrAlreadyExists)
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO decision_assumptions (org_id, decision_id, assumption_id, created_at)
		VALUES (?, ?, ?, ?)`, t.orgID, decisionID, assumptionID, formatTime(time.Now()))
	return wrapDBErrorf(err, "link %s -> %s", decisionID, assumptionID)
}

// UnlinkAssumption removes a link; ErrNotFound if there was none.
func (t *tx) UnlinkAssumption(ctx context.Context, decisionID, assumptionID string) error {
	res, err := t.q.ExecContext(ctx, `
		DELETE FROM decision_assumptions
		WHERE org_id = ? AND decision_id = ? AND assumption_id = ?`, t.orgID, decisionID, assumptionID)
	if err != nil {
		return wrapDBErrorf(err, "unlink %s -> %s", decisionID, assumptionID)
	}
	if err := requireAffected(res, fmt.Sprintf("unlink %s -> %s", decisionID, assumptionID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("assumption %s is not linked to %s: %w", assumptionID, decisionID, storage.ErrNotFound)
		}
		return err
	}
	return nil
}
