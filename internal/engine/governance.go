package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/tenet/internal/idgen"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// LockDecision places a governance lock. Lead only. The lock gates direct
// edits and relinking by everyone else; lifecycle and health are untouched.
func (e *Engine) LockDecision(ctx context.Context, actor Actor, id, justification string) (*types.Decision, error) {
	return e.setLock(ctx, "LockDecision", actor, id, justification, true)
}

// UnlockDecision lifts a governance lock. Lead only.
func (e *Engine) UnlockDecision(ctx context.Context, actor Actor, id, justification string) (*types.Decision, error) {
	return e.setLock(ctx, "UnlockDecision", actor, id, justification, false)
}

func (e *Engine) setLock(ctx context.Context, op string, actor Actor, id, justification string, locked bool) (_ *types.Decision, err error) {
	ctx, done := e.begin(ctx, op, attribute.String("tenet.decision", id))
	defer func() { done(err) }()

	if err := requireLead(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(justification) == "" {
		return nil, validationf("a justification is required")
	}

	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *types.Decision
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		d, err := tx.GetDecision(ctx, id)
		if err != nil {
			return err
		}
		if d.IsRetired() {
			return validationf("decision %s is retired", id)
		}
		if d.GovernanceLocked == locked {
			if locked {
				return validationf("decision %s is already locked", id)
			}
			return validationf("decision %s is not locked", id)
		}
		d.GovernanceLocked = locked
		if err := tx.UpdateDecision(ctx, d); err != nil {
			return err
		}
		var p types.Payload = types.GovernanceUnlock{Justification: justification}
		if locked {
			p = types.GovernanceLock{Justification: justification}
		}
		out = d
		return tx.AppendEvent(ctx, &types.VersionEvent{DecisionID: d.ID, Actor: actor.String(), Payload: p})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequestEdit files an edit request. No decision field changes until a lead
// approves it. The justification must be at least ten characters, and a
// decision has at most one pending request: a second one fails with
// ErrConflictingRequest.
func (e *Engine) RequestEdit(ctx context.Context, actor Actor, decisionID, justification string, patch types.DecisionPatch) (_ *types.EditRequest, err error) {
	ctx, done := e.begin(ctx, "RequestEdit", attribute.String("tenet.decision", decisionID))
	defer func() { done(err) }()

	r := &types.EditRequest{
		ID:            idgen.New(idgen.PrefixEditRequest),
		DecisionID:    decisionID,
		Requester:     actor.String(),
		Justification: strings.TrimSpace(justification),
		Changes:       patch,
		Status:        types.EditStatusPending,
		CreatedAt:     e.clock(),
	}
	if err := r.Validate(); err != nil {
		return nil, validationf("%v", err)
	}

	unlock, err := e.locks.Lock(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		d, err := tx.GetDecision(ctx, decisionID)
		if err != nil {
			return err
		}
		if d.IsRetired() {
			return validationf("decision %s is retired", decisionID)
		}
		if err := checkLinkSets(ctx, tx, decisionID, patch); err != nil {
			return err
		}
		if err := tx.CreateEditRequest(ctx, r); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &types.VersionEvent{
			DecisionID: decisionID,
			Actor:      actor.String(),
			Payload: types.EditRequested{
				RequestID:     r.ID,
				Requester:     r.Requester,
				Justification: r.Justification,
				Changes:       r.Changes,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// pendingRequest loads an edit request a lead is about to decide on.
func pendingRequest(ctx context.Context, r storage.Reader, id string) (*types.EditRequest, error) {
	req, err := r.GetEditRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != types.EditStatusPending {
		return nil, validationf("edit request %s is %s, not pending", id, req.Status)
	}
	return req, nil
}

// ApproveEdit applies a pending request exactly as a direct edit by the
// approving lead would, link sets included, and writes edit_approved.
// Store failures roll everything back and come back as ErrResolutionFailed.
func (e *Engine) ApproveEdit(ctx context.Context, actor Actor, requestID, note string) (_ *types.Decision, err error) {
	ctx, done := e.begin(ctx, "ApproveEdit", attribute.String("tenet.edit_request", requestID))
	defer func() { done(err) }()

	if err := requireLead(actor); err != nil {
		return nil, err
	}
	req, err := pendingRequest(ctx, e.store, requestID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.Lock(ctx, req.DecisionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out *types.Decision
		fx  effects
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		fx.reset()
		req, err := pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		d, err := tx.GetDecision(ctx, req.DecisionID)
		if err != nil {
			return err
		}
		if d.IsRetired() {
			return validationf("decision %s is retired", d.ID)
		}
		if _, err := e.applyPatchTx(ctx, tx, d, req.Changes, actor.String(), true, func(a applied) types.Payload {
			return types.EditApproved{
				RequestID: req.ID,
				Requester: req.Requester,
				Note:      note,
				Changes:   a.changes,
				Linked:    a.linked,
				Unlinked:  a.unlinked,
				Snapshot:  d.Snapshot(),
			}
		}, &fx); err != nil {
			return err
		}

		now := e.clock()
		req.Status = types.EditStatusApproved
		req.DecidedBy = actor.String()
		req.DecidedAt = &now
		req.DecisionNote = note
		out = d
		return tx.UpdateEditRequest(ctx, req)
	})
	if err != nil {
		return nil, asResolutionFailure(err)
	}
	e.afterCommit(ctx, &fx)
	return out, nil
}

// RejectEdit closes a pending request without touching the decision.
func (e *Engine) RejectEdit(ctx context.Context, actor Actor, requestID, note string) (_ *types.EditRequest, err error) {
	ctx, done := e.begin(ctx, "RejectEdit", attribute.String("tenet.edit_request", requestID))
	defer func() { done(err) }()

	if err := requireLead(actor); err != nil {
		return nil, err
	}
	req, err := pendingRequest(ctx, e.store, requestID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.Lock(ctx, req.DecisionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *types.EditRequest
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		req, err := pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		now := e.clock()
		req.Status = types.EditStatusRejected
		req.DecidedBy = actor.String()
		req.DecidedAt = &now
		req.DecisionNote = note
		if err := tx.UpdateEditRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return tx.AppendEvent(ctx, &types.VersionEvent{
			DecisionID: req.DecisionID,
			Actor:      actor.String(),
			Payload:    types.EditRejected{RequestID: req.ID, Requester: req.Requester, Note: note},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetEditRequest returns an edit request.
func (e *Engine) GetEditRequest(ctx context.Context, id string) (*types.EditRequest, error) {
	return e.store.GetEditRequest(ctx, id)
}

// ListEditRequests returns the edit requests of a decision, optionally only
// those in one status. An empty decisionID lists across decisions.
func (e *Engine) ListEditRequests(ctx context.Context, decisionID string, status *types.EditRequestStatus) ([]*types.EditRequest, error) {
	return e.store.ListEditRequests(ctx, decisionID, status)
}
