// Package engine is the decision governance and integrity engine.
//
// It owns every mutation of an organization's decisions, assumptions,
// constraints, dependencies, conflicts and edit requests. Each mutation runs
// in one storage transaction together with the VersionEvents that describe
// it, under a per-decision lock, and re-derives health and lifecycle for the
// decisions it touched. Conflict detection and notifications run after the
// transaction commits.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/tenet/internal/classify"
	"github.com/steveyegge/tenet/internal/constraint"
	"github.com/steveyegge/tenet/internal/lockmap"
	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// Actor is whoever performs an operation.
type Actor = types.Actor

// Config tunes the engine.
type Config struct {
	// Threshold is the confidence below which classifier verdicts are
	// discarded.
	Threshold float64

	// DetectOnWrite runs neighbourhood conflict detection after creating or
	// editing an assumption or a decision.
	DetectOnWrite bool

	// StaleAfter is how long a decision may go unreviewed before the health
	// sweep sends a needs_review reminder. Zero disables reminders.
	StaleAfter time.Duration

	// Concurrency bounds parallel classifier calls and sweep workers.
	Concurrency int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Threshold:     types.MinConfidence,
		DetectOnWrite: true,
		StaleAfter:    30 * 24 * time.Hour,
		Concurrency:   4,
	}
}

// Engine serves one organization.
type Engine struct {
	store      storage.Storage
	classifier classify.Classifier
	evaluator  constraint.Evaluator
	notifier   *notification.Dispatcher
	logger     *slog.Logger
	cfg        Config
	locks      *lockmap.Map
	now        func() time.Time

	tracer  trace.Tracer
	metrics *engineMetrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClassifier sets the entity-pair classifier used by conflict detection.
func WithClassifier(c classify.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithEvaluator sets the constraint-violation evaluator.
func WithEvaluator(ev constraint.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithDispatcher sets where notifications go.
func WithDispatcher(d *notification.Dispatcher) Option {
	return func(e *Engine) { e.notifier = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine over store. Without options it uses the default
// rule classifier, no constraint rules, and logs notifications only.
func New(store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		evaluator: constraint.Noop{},
		cfg:       DefaultConfig(),
		locks:     lockmap.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.classifier == nil {
		rc, err := classify.NewRuleClassifier(classify.DefaultRules())
		if err != nil {
			// DefaultRules always validates
			panic(err)
		}
		e.classifier = rc
	}
	if e.notifier == nil {
		e.notifier = notification.NewDispatcher(e.logger, notification.LogSink{Logger: e.logger})
	}
	if e.cfg.Concurrency < 1 {
		e.cfg.Concurrency = 1
	}
	e.tracer, e.metrics = newEngineTelemetry()
	return e
}

// Store returns the underlying storage.
func (e *Engine) Store() storage.Storage {
	return e.store
}

// OrgID is the organization the engine serves.
func (e *Engine) OrgID() string {
	return e.store.OrgID()
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// effects collects what a transaction wants done once it has committed.
// Transaction closures reset it first since the store may retry them.
type effects struct {
	notes       []notification.Notification
	assumptions []string
	decisions   []string
}

func (fx *effects) reset() {
	*fx = effects{}
}

func (fx *effects) notify(n notification.Notification) {
	fx.notes = append(fx.notes, n)
}

func (fx *effects) detectAssumption(id string) {
	if !slices.Contains(fx.assumptions, id) {
		fx.assumptions = append(fx.assumptions, id)
	}
}

func (fx *effects) detectDecision(id string) {
	if !slices.Contains(fx.decisions, id) {
		fx.decisions = append(fx.decisions, id)
	}
}

// afterCommit dispatches notifications and runs write-triggered detection.
// Failures are logged; the mutation has already committed.
func (e *Engine) afterCommit(ctx context.Context, fx *effects) {
	for _, n := range fx.notes {
		if n.OrgID == "" {
			n.OrgID = e.OrgID()
		}
		e.notifier.Dispatch(ctx, n)
	}
	if !e.cfg.DetectOnWrite {
		return
	}
	for _, id := range fx.assumptions {
		if _, err := e.detectForAssumption(ctx, id); err != nil {
			e.logger.Warn("conflict detection failed", "assumption", id, "error", err)
		}
	}
	for _, id := range fx.decisions {
		if _, err := e.detectForDecision(ctx, id); err != nil {
			e.logger.Warn("conflict detection failed", "decision", id, "error", err)
		}
	}
}

// lockStable locks the decisions returned by ids. The set is read again
// once the locks are held; if it grew in between, the locks are dropped and
// the read is repeated.
func (e *Engine) lockStable(ctx context.Context, ids func(context.Context) ([]string, error)) (func(), error) {
	for {
		want, err := ids(ctx)
		if err != nil {
			return nil, err
		}
		unlock, err := e.locks.Lock(ctx, want...)
		if err != nil {
			return nil, err
		}
		got, err := ids(ctx)
		if err != nil {
			unlock()
			return nil, err
		}
		if subset(got, want) {
			return unlock, nil
		}
		unlock()
	}
}

func subset(ids, of []string) bool {
	for _, id := range ids {
		if !slices.Contains(of, id) {
			return false
		}
	}
	return true
}

func decisionIDs(ds []*types.Decision) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}
