package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/classify"
	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/storage/sqlstore"
	"github.com/steveyegge/tenet/internal/types"
)

var (
	lead   = Actor{Name: "lead", Lead: true}
	member = Actor{Name: "member"}
)

// fakeClassifier returns scripted verdicts keyed by the unordered pair of
// entity texts.
type fakeClassifier struct {
	mu       sync.Mutex
	verdicts map[[2]string]*classify.Verdict
	calls    int
	err      error
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{verdicts: make(map[[2]string]*classify.Verdict)}
}

func textKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (f *fakeClassifier) set(a, b string, typ types.ConflictType, confidence float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[textKey(a, b)] = &classify.Verdict{Type: typ, Confidence: confidence, Explanation: "scripted"}
}

func (f *fakeClassifier) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClassifier) Classify(_ context.Context, a, b classify.Entity) (*classify.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.verdicts[textKey(a.Text, b.Text)]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}

// fakeEvaluator reports a violation for the decisions in violating, as long
// as the organization has at least one constraint.
type fakeEvaluator struct {
	mu        sync.Mutex
	violating map[string]bool
}

func (f *fakeEvaluator) set(id string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.violating == nil {
		f.violating = make(map[string]bool)
	}
	f.violating[id] = v
}

func (f *fakeEvaluator) Violates(_ context.Context, d *types.Decision, cs []*types.Constraint) (bool, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(cs) > 0 && f.violating[d.ID] {
		return true, []string{cs[0].Name + ": scripted"}, nil
	}
	return false, nil, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []notification.Notification
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Notify(_ context.Context, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *recordingSink) ofType(t notification.Type) []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.Notification
	for _, n := range s.got {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	*Engine
	store      *sqlstore.Store
	classifier *fakeClassifier
	evaluator  *fakeEvaluator
	sink       *recordingSink
	clock      *testClock
}

func setupEngine(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	store, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tenet.db"), "org-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		store:      store,
		classifier: newFakeClassifier(),
		evaluator:  &fakeEvaluator{},
		sink:       &recordingSink{},
		clock:      &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.Engine = New(store,
		WithConfig(cfg),
		WithClassifier(h.classifier),
		WithEvaluator(h.evaluator),
		WithDispatcher(notification.NewDispatcher(nil, h.sink)),
		WithClock(h.clock.Now),
	)
	return h
}

func noDetectOnWrite(c *Config) { c.DetectOnWrite = false }

func (h *harness) decision(t *testing.T, title string) *types.Decision {
	t.Helper()
	d, err := h.CreateDecision(context.Background(), lead, NewDecision{Title: title})
	require.NoError(t, err)
	return d
}

func (h *harness) universal(t *testing.T, text, linkTo string) *types.Assumption {
	t.Helper()
	a, err := h.CreateAssumption(context.Background(), lead, text, types.ScopeUniversal, linkTo)
	require.NoError(t, err)
	return a
}

func (h *harness) get(t *testing.T, id string) *types.Decision {
	t.Helper()
	d, err := h.GetDecision(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (h *harness) setStatus(t *testing.T, id string, s types.AssumptionStatus) {
	t.Helper()
	_, err := h.UpdateAssumption(context.Background(), lead, id, types.AssumptionPatch{Status: &s})
	require.NoError(t, err)
}

func (h *harness) openConflicts(t *testing.T) []*types.Conflict {
	t.Helper()
	cs, err := h.ListConflicts(context.Background(), types.ConflictFilter{OpenOnly: true})
	require.NoError(t, err)
	return cs
}

func (h *harness) requireReplay(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.VerifyReplay(context.Background(), id))
	}
}

func eventTypes(evs []*types.VersionEvent) []types.EventType {
	out := make([]types.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type()
	}
	return out
}

func ptr[T any](v T) *T { return &v }

var _ storage.Storage = (*sqlstore.Store)(nil)
