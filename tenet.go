// Package tenet provides a minimal public API for using the decision engine
// from Go programs.
//
// Most callers should use the tn CLI. This package exports only the types
// and constructors needed to open an engine over a SQLite database and drive
// it programmatically.
package tenet

import (
	"context"

	"github.com/steveyegge/tenet/internal/engine"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/storage/sqlstore"
	"github.com/steveyegge/tenet/internal/types"
)

// Core types
type (
	Engine      = engine.Engine
	Config      = engine.Config
	Option      = engine.Option
	NewDecision = engine.NewDecision
	Actor       = types.Actor
	Decision    = types.Decision
	Assumption  = types.Assumption
	Constraint  = types.Constraint
	Conflict    = types.Conflict
	EditRequest = types.EditRequest
	Lifecycle   = types.Lifecycle
	Storage     = storage.Storage
)

// Lifecycle constants
const (
	LifecycleStable      = types.LifecycleStable
	LifecycleUnderReview = types.LifecycleUnderReview
	LifecycleAtRisk      = types.LifecycleAtRisk
	LifecycleInvalidated = types.LifecycleInvalidated
	LifecycleRetired     = types.LifecycleRetired
)

// Assumption status constants
const (
	StatusValid  = types.StatusValid
	StatusShaky  = types.StatusShaky
	StatusBroken = types.StatusBroken
)

// Error kinds, for errors.Is
var (
	ErrValidation         = engine.ErrValidation
	ErrNotFound           = engine.ErrNotFound
	ErrCycle              = engine.ErrCycle
	ErrInUse              = engine.ErrInUse
	ErrConflictingRequest = engine.ErrConflictingRequest
	ErrResolutionFailed   = engine.ErrResolutionFailed
)

// Engine options
var (
	WithConfig     = engine.WithConfig
	WithClassifier = engine.WithClassifier
	WithEvaluator  = engine.WithEvaluator
	WithLogger     = engine.WithLogger
)

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// Open opens (creating if needed) the SQLite database at dbPath and returns
// an engine serving orgID. Closing the returned Storage releases the
// database.
func Open(ctx context.Context, dbPath, orgID string, opts ...Option) (*Engine, Storage, error) {
	store, err := sqlstore.OpenSQLite(ctx, dbPath, orgID)
	if err != nil {
		return nil, nil, err
	}
	return engine.New(store, opts...), store, nil
}
