package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/steveyegge/tenet/internal/idgen"
	"github.com/steveyegge/tenet/internal/types"
)

// GetEvents returns the version log of a decision in append order.
func (c *conn) GetEvents(ctx context.Context, decisionID string) ([]*types.VersionEvent, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, org_id, decision_id, seq, version_number, event_type, actor, payload, created_at
		FROM version_events
		WHERE org_id = ? AND decision_id = ?
		ORDER BY seq ASC`, c.orgID, decisionID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get events of %s", decisionID)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.VersionEvent
	for rows.Next() {
		var (
			e         types.VersionEvent
			version   sql.NullInt64
			eventType string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &e.DecisionID, &e.Seq, &version, &eventType, &e.Actor, &payload, &createdAt); err != nil {
			return nil, wrapDBError("scan event", err)
		}
		if version.Valid {
			e.Version = int(version.Int64)
		}
		if e.Payload, err = types.DecodePayload(types.EventType(eventType), []byte(payload)); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("event %s: parse created_at: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// AppendEvent appends an event to a decision's log. Seq continues the
// decision's sequence; rows are never updated afterwards.
func (t *tx) AppendEvent(ctx context.Context, e *types.VersionEvent) error {
	if e.Payload == nil {
		return fmt.Errorf("event for %s has no payload", e.DecisionID)
	}
	e.OrgID = t.orgID
	if e.ID == "" {
		e.ID = idgen.New(idgen.PrefixEvent)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var last int64
	if err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM version_events WHERE decision_id = ?`, e.DecisionID).Scan(&last); err != nil {
		return wrapDBError("next event seq", err)
	}
	e.Seq = last + 1

	payload, err := types.EncodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", e.Type(), err)
	}
	version := sql.NullInt64{Int64: int64(e.Version), Valid: e.Version > 0}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO version_events (id, org_id, decision_id, seq, version_number, event_type, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, e.DecisionID, e.Seq, version, string(e.Type()), e.Actor, string(payload), formatTime(e.CreatedAt))
	return wrapDBErrorf(err, "append %s event to %s", e.Type(), e.DecisionID)
}
