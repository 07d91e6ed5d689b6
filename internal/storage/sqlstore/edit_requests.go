package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

const editRequestColumns = `id, org_id, decision_id, requester, justification, proposed_changes, status,
	decided_by, decided_at, decision_note, created_at`

func scanEditRequest(row scanner) (*types.EditRequest, error) {
	var (
		r         types.EditRequest
		changes   string
		status    string
		decidedBy sql.NullString
		decidedAt sql.NullString
		note      sql.NullString
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.OrgID, &r.DecisionID, &r.Requester, &r.Justification, &changes, &status,
		&decidedBy, &decidedAt, &note, &createdAt); err != nil {
		return nil, err
	}
	r.Status = types.EditRequestStatus(status)
	r.DecidedBy = decidedBy.String
	r.DecisionNote = note.String
	if err := json.Unmarshal([]byte(changes), &r.Changes); err != nil {
		return nil, fmt.Errorf("decode proposed_changes: %w", err)
	}

	var err error
	if r.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return nil, fmt.Errorf("parse decided_at: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &r, nil
}

// GetEditRequest retrieves an edit request by ID.
func (c *conn) GetEditRequest(ctx context.Context, id string) (*types.EditRequest, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+editRequestColumns+` FROM edit_requests WHERE org_id = ? AND id = ?`, c.orgID, id)
	r, err := scanEditRequest(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get edit request %s", id)
	}
	return r, nil
}

// GetPendingEditRequest returns the pending request of a decision, or
// ErrNotFound when there is none.
func (c *conn) GetPendingEditRequest(ctx context.Context, decisionID string) (*types.EditRequest, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+editRequestColumns+` FROM edit_requests
		WHERE org_id = ? AND decision_id = ? AND status = ?
		ORDER BY created_at LIMIT 1`, c.orgID, decisionID, string(types.EditStatusPending))
	r, err := scanEditRequest(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get pending edit request of %s", decisionID)
	}
	return r, nil
}

// ListEditRequests returns edit requests, newest first. An empty decisionID
// lists the whole organization.
func (c *conn) ListEditRequests(ctx context.Context, decisionID string, status *types.EditRequestStatus) ([]*types.EditRequest, error) {
	query := `SELECT ` + editRequestColumns + ` FROM edit_requests WHERE org_id = ?`
	args := []any{c.orgID}
	if decisionID != "" {
		query += ` AND decision_id = ?`
		args = append(args, decisionID)
	}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list edit requests", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.EditRequest
	for rows.Next() {
		r, err := scanEditRequest(rows)
		if err != nil {
			return nil, wrapDBError("scan edit request", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateEditRequest inserts a pending request. A decision holds at most one
// pending request at a time.
func (t *tx) CreateEditRequest(ctx context.Context, r *types.EditRequest) error {
	r.OrgID = t.orgID
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if _, err := t.GetDecision(ctx, r.DecisionID); err != nil {
		return err
	}
	pending, err := t.GetPendingEditRequest(ctx, r.DecisionID)
	switch {
	case err == nil:
		return fmt.Errorf("decision %s has pending request %s: %w", r.DecisionID, pending.ID, storage.ErrConflictingRequest)
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	changes, err := json.Marshal(r.Changes)
	if err != nil {
		return fmt.Errorf("encode proposed_changes: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO edit_requests (`+editRequestColumns+`, pending_for)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrgID, r.DecisionID, r.Requester, r.Justification, string(changes), string(r.Status),
		nullString(r.DecidedBy), nullTime(r.DecidedAt), nullString(r.DecisionNote), formatTime(r.CreatedAt),
		pendingFor(r),
	)
	if err != nil && isUniqueViolation(err) {
		// another writer filed one between the check and the insert
		return fmt.Errorf("decision %s already has a pending request: %w", r.DecisionID, storage.ErrConflictingRequest)
	}
	return wrapDBErrorf(err, "insert edit request %s", r.ID)
}

// UpdateEditRequest writes the verdict fields of a request.
func (t *tx) UpdateEditRequest(ctx context.Context, r *types.EditRequest) error {
	if !r.Status.IsValid() {
		return fmt.Errorf("validation failed: invalid status: %s", r.Status)
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE edit_requests SET status = ?, decided_by = ?, decided_at = ?, decision_note = ?, pending_for = ?
		WHERE org_id = ? AND id = ?`,
		string(r.Status), nullString(r.DecidedBy), nullTime(r.DecidedAt), nullString(r.DecisionNote),
		pendingFor(r), t.orgID, r.ID,
	)
	if err != nil {
		return wrapDBErrorf(err, "update edit request %s", r.ID)
	}
	return requireAffected(res, "update edit request "+r.ID)
}

// pendingFor is the unique key of a pending request, NULL once decided.
func pendingFor(r *types.EditRequest) sql.NullString {
	if r.Status != types.EditStatusPending {
		return sql.NullString{}
	}
	return sql.NullString{String: r.DecisionID, Valid: true}
}
