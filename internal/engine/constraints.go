package engine

import (
	"context"
	"strings"

	"github.com/steveyegge/tenet/internal/idgen"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// NewConstraint is the input of CreateConstraint.
type NewConstraint struct {
	Name        string
	Description string
	Type        types.ConstraintType
}

// CreateConstraint adds an organizational constraint. It applies to every
// decision at once, so all of them are re-evaluated afterwards.
func (e *Engine) CreateConstraint(ctx context.Context, actor Actor, in NewConstraint) (_ *types.Constraint, err error) {
	ctx, done := e.begin(ctx, "CreateConstraint")
	defer func() { done(err) }()

	c := &types.Constraint{
		ID:          idgen.New(idgen.PrefixConstraint),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        in.Type,
		IsImmutable: true,
		CreatedAt:   e.clock(),
	}
	if c.Type == "" {
		c.Type = types.ConstraintOther
	}
	if err := c.Validate(); err != nil {
		return nil, validationf("%v", err)
	}
	if err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateConstraint(ctx, c)
	}); err != nil {
		return nil, err
	}
	e.logger.Info("constraint created", "id", c.ID, "name", c.Name, "actor", actor.String())
	e.reevaluateAll(ctx, actor.String())
	return c, nil
}

// ListConstraints returns every constraint of the organization.
func (e *Engine) ListConstraints(ctx context.Context) ([]*types.Constraint, error) {
	return e.store.ListConstraints(ctx)
}

// DeleteConstraint removes a constraint. Since it applies to every
// decision, it is in use while any non-retired decision exists; unlinkFirst
// deletes it anyway and re-evaluates every decision.
func (e *Engine) DeleteConstraint(ctx context.Context, actor Actor, id string, unlinkFirst bool) (err error) {
	ctx, done := e.begin(ctx, "DeleteConstraint")
	defer func() { done(err) }()

	if err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.DeleteConstraint(ctx, id, unlinkFirst)
	}); err != nil {
		return err
	}
	e.logger.Info("constraint deleted", "id", id, "actor", actor.String())
	e.reevaluateAll(ctx, actor.String())
	return nil
}

// reevaluateAll re-derives health for every non-retired decision after the
// constraint set changed. Each decision is its own transaction.
func (e *Engine) reevaluateAll(ctx context.Context, actor string) {
	res, err := e.evaluateDecisions(ctx, evalOpts{trigger: types.TriggerConstraintViolation, actor: actor}, nil)
	if err != nil {
		e.logger.Warn("re-evaluation after constraint change failed", "error", err)
		return
	}
	e.logger.Debug("re-evaluated decisions", "evaluated", res.Evaluated, "changed", res.Changed)
}

