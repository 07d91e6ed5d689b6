// Package storage defines the persistence contract of the decision engine.
//
// The SQL implementation lives in the sqlstore sub-package. This package
// holds the interfaces and sentinel errors shared by that implementation and
// its consumers (internal/engine, cmd/tn).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/tenet/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the
// organization's namespace.
var ErrNotFound = errors.New("not found")

// ErrCycle is returned when a dependency would close a cycle.
var ErrCycle = errors.New("dependency cycle detected")

// ErrInUse is returned when deleting an entity that is still referenced.
var ErrInUse = errors.New("entity in use")

// ErrConflictingRequest is returned when a decision already has a pending
// edit request.
var ErrConflictingRequest = errors.New("a pending edit request already exists")

// ErrAlreadyExists is returned when creating a link or edge that is
// already present.
var ErrAlreadyExists = errors.New("already exists")

// ErrInvalidLink is returned when an assumption link would break the link
// cardinality of its scope.
var ErrInvalidLink = errors.New("invalid assumption link")

// CycleError carries the edge that was rejected.
type CycleError struct {
	SourceID string
	TargetID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrCycle, e.SourceID, e.TargetID)
}

// Is lets errors.Is(err, ErrCycle) match a *CycleError.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// InUseError carries the entity that could not be deleted and what still
// references it.
type InUseError struct {
	EntityID     string
	ReferencedBy []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s: %s is referenced by %d decision(s)", ErrInUse, e.EntityID, len(e.ReferencedBy))
}

// Is lets errors.Is(err, ErrInUse) match an *InUseError.
func (e *InUseError) Is(target error) bool {
	return target == ErrInUse
}

type operationKey struct{}

// WithOperation names the engine operation running under ctx. Backends use
// it for commit messages and span names.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation name set by WithOperation, or "".
func OperationFrom(ctx context.Context) string {
	op, _ := ctx.Value(operationKey{}).(string)
	return op
}

// Reader is the read side shared by Storage and Transaction. Inside a
// transaction the reads see the transaction's own writes.
type Reader interface {
	// Decisions
	GetDecision(ctx context.Context, id string) (*types.Decision, error)
	ListDecisions(ctx context.Context, filter types.DecisionFilter) ([]*types.Decision, error)

	// Assumptions and links
	GetAssumption(ctx context.Context, id string) (*types.Assumption, error)
	ListAssumptions(ctx context.Context, filter types.AssumptionFilter) ([]*types.Assumption, error)
	GetLinkedAssumptions(ctx context.Context, decisionID string) ([]*types.Assumption, error)
	GetLinkedDecisions(ctx context.Context, assumptionID string) ([]*types.Decision, error)
	IsLinked(ctx context.Context, decisionID, assumptionID string) (bool, error)

	// Constraints
	GetConstraint(ctx context.Context, id string) (*types.Constraint, error)
	ListConstraints(ctx context.Context) ([]*types.Constraint, error)

	// Dependencies
	GetDependencies(ctx context.Context, decisionID string) ([]*types.Dependency, error)
	ListDependencies(ctx context.Context) ([]*types.Dependency, error)

	// Conflicts
	GetConflict(ctx context.Context, id string) (*types.Conflict, error)
	ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.Conflict, error)
	FindOpenConflict(ctx context.Context, kind types.ConflictKind, a, b string) (*types.Conflict, error)
	IsSuppressed(ctx context.Context, kind types.ConflictKind, fingerprint string) (bool, error)

	// Edit requests
	GetEditRequest(ctx context.Context, id string) (*types.EditRequest, error)
	GetPendingEditRequest(ctx context.Context, decisionID string) (*types.EditRequest, error)
	ListEditRequests(ctx context.Context, decisionID string, status *types.EditRequestStatus) ([]*types.EditRequest, error)

	// Version log, oldest first
	GetEvents(ctx context.Context, decisionID string) ([]*types.VersionEvent, error)
}

// Transaction provides atomic multi-operation support within a single
// database transaction. Every engine mutation runs inside one, together with
// the VersionEvents describing it.
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.UpdateDecision(ctx, d); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return tx.AppendEvent(ctx, ev) // nil triggers commit
//	})
type Transaction interface {
	Reader

	CreateDecision(ctx context.Context, d *types.Decision) error
	UpdateDecision(ctx context.Context, d *types.Decision) error

	CreateAssumption(ctx context.Context, a *types.Assumption) error
	UpdateAssumption(ctx context.Context, a *types.Assumption) error
	// DeleteAssumption fails with ErrInUse while a non-retired decision links
	// the assumption and unlinkFirst is false.
	DeleteAssumption(ctx context.Context, id string, unlinkFirst bool) error
	LinkAssumption(ctx context.Context, decisionID, assumptionID string) error
	UnlinkAssumption(ctx context.Context, decisionID, assumptionID string) error

	CreateConstraint(ctx context.Context, c *types.Constraint) error
	// DeleteConstraint fails with ErrInUse while any non-retired decision
	// exists and unlinkFirst is false, since constraints apply to all of them.
	DeleteConstraint(ctx context.Context, id string, unlinkFirst bool) error

	// AddDependency fails with a *CycleError if the edge would close a cycle
	// among non-retired decisions.
	AddDependency(ctx context.Context, dep *types.Dependency) error
	RemoveDependency(ctx context.Context, sourceID, targetID string) error

	CreateConflict(ctx context.Context, c *types.Conflict) error
	UpdateConflict(ctx context.Context, c *types.Conflict) error
	DeleteConflict(ctx context.Context, id string) error
	DismissPair(ctx context.Context, c *types.Conflict, actor string) error

	// CreateEditRequest fails with ErrConflictingRequest when the decision
	// already has a pending request.
	CreateEditRequest(ctx context.Context, r *types.EditRequest) error
	UpdateEditRequest(ctx context.Context, r *types.EditRequest) error

	// AppendEvent assigns ID, Seq and CreatedAt when unset.
	AppendEvent(ctx context.Context, e *types.VersionEvent) error
}

// Storage is the interface satisfied by *sqlstore.Store. Consumers depend on
// this interface so that alternative implementations can be substituted.
type Storage interface {
	Reader

	// RunInTransaction runs fn in one transaction: commit on nil, rollback
	// on error or panic.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// OrgID is the organization whose namespace this store reads and writes.
	OrgID() string

	Close() error
}
