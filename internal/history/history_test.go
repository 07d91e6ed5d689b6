package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/types"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ev(seq int64, version int, p types.Payload) *types.VersionEvent {
	return &types.VersionEvent{
		ID:         "evt-" + string(rune('a'+seq)),
		DecisionID: "dec-1",
		Seq:        seq,
		Version:    version,
		Actor:      "alice",
		CreatedAt:  base.Add(time.Duration(seq) * time.Minute),
		Payload:    p,
	}
}

func sampleLog() []*types.VersionEvent {
	snap := types.DecisionSnapshot{
		Title:        "Use Postgres",
		Lifecycle:    types.LifecycleStable,
		HealthSignal: 100,
	}
	updated := snap
	updated.Title = "Use Postgres 16"
	return []*types.VersionEvent{
		ev(1, 1, types.Created{Snapshot: snap}),
		ev(2, 0, types.RelationLinked{Relation: types.Relation{Kind: types.RelationAssumption, RelatedID: "asm-1"}}),
		ev(3, 0, types.HealthEvaluated{OldHealth: 100, NewHealth: 50, OldLifecycle: types.LifecycleStable, NewLifecycle: types.LifecycleAtRisk, TriggeredBy: types.TriggerAssumptionStatusChange}),
		ev(4, 0, types.GovernanceLock{Justification: "frozen for audit"}),
		ev(5, 2, types.FieldUpdated{
			Changes:  []types.FieldChange{{Field: "title", Old: "Use Postgres", New: "Use Postgres 16"}},
			Snapshot: func() types.DecisionSnapshot { s := updated; s.HealthSignal = 50; s.Lifecycle = types.LifecycleAtRisk; s.GovernanceLocked = true; return s }(),
		}),
		ev(6, 0, types.RelationUnlinked{Relation: types.Relation{Kind: types.RelationAssumption, RelatedID: "asm-1", Reason: "obsolete"}}),
	}
}

func TestTimelineNewestFirst(t *testing.T) {
	log := sampleLog()
	tl := Timeline(log)
	require.Len(t, tl, len(log))
	for i := 1; i < len(tl); i++ {
		if tl[i-1].Seq <= tl[i].Seq {
			t.Fatalf("timeline not newest first at %d: %d then %d", i, tl[i-1].Seq, tl[i].Seq)
		}
	}
	// Input is untouched.
	assert.Equal(t, int64(1), log[0].Seq)
}

func TestVersions(t *testing.T) {
	vs := Versions(sampleLog())
	require.Len(t, vs, 2)
	assert.Equal(t, 1, vs[0].Number)
	assert.Equal(t, types.EventCreated, vs[0].EventType)
	assert.Equal(t, "Use Postgres", vs[0].Snapshot.Title)
	assert.Equal(t, 2, vs[1].Number)
	assert.Equal(t, "Use Postgres 16", vs[1].Snapshot.Title)
	require.Len(t, vs[1].Changes, 1)
	assert.Equal(t, "title", vs[1].Changes[0].Field)
}

func TestRelations(t *testing.T) {
	rs := Relations(sampleLog())
	require.Len(t, rs, 2)
	assert.False(t, rs[0].Linked)
	assert.Equal(t, "obsolete", rs[0].Relation.Reason)
	assert.True(t, rs[1].Linked)
	assert.Equal(t, "asm-1", rs[1].Relation.RelatedID)
}

func TestHealth(t *testing.T) {
	hs := Health(sampleLog())
	require.Len(t, hs, 1)
	assert.Equal(t, -50, hs[0].HealthChange)
	assert.Equal(t, types.LifecycleAtRisk, hs[0].NewLifecycle)
	assert.Equal(t, types.TriggerAssumptionStatusChange, hs[0].TriggeredBy)
}

func TestSince(t *testing.T) {
	got := Since(sampleLog(), base.Add(4*time.Minute))
	require.Len(t, got, 3)
	assert.Equal(t, int64(4), got[0].Seq)
}

func TestReplay(t *testing.T) {
	s, err := Replay(sampleLog())
	require.NoError(t, err)
	want := State{
		Title:            "Use Postgres 16",
		Version:          2,
		HealthSignal:     50,
		Lifecycle:        types.LifecycleAtRisk,
		GovernanceLocked: true,
	}
	if diff := s.Diff(want); len(diff) != 0 {
		t.Fatalf("replayed state differs on %v: %+v", diff, s)
	}
}

func TestReplayConflictResolution(t *testing.T) {
	log := sampleLog()
	log = append(log, ev(7, 0, types.DecisionConflictResolved{
		ConflictID:   "cfl-1",
		Action:       types.ActionRetireBoth,
		OldLifecycle: types.LifecycleAtRisk,
		NewLifecycle: types.LifecycleRetired,
		OldLocked:    true,
		NewLocked:    false,
	}))
	s, err := Replay(log)
	require.NoError(t, err)
	assert.Equal(t, types.LifecycleRetired, s.Lifecycle)
	assert.False(t, s.GovernanceLocked)
	assert.Equal(t, 2, s.Version)
}

func TestReplayRejectsBrokenLogs(t *testing.T) {
	tests := []struct {
		name string
		log  func() []*types.VersionEvent
	}{
		{"empty", func() []*types.VersionEvent { return nil }},
		{"no created", func() []*types.VersionEvent { return sampleLog()[1:] }},
		{"version gap", func() []*types.VersionEvent {
			log := sampleLog()
			log[4].Version = 3
			return log
		}},
		{"out of order", func() []*types.VersionEvent {
			log := sampleLog()
			log[2], log[3] = log[3], log[2]
			return log
		}},
		{"second created", func() []*types.VersionEvent {
			log := sampleLog()
			return append(log, ev(7, 3, types.Created{}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Replay(tt.log()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStateDiffTreatsNilParamsAsEmpty(t *testing.T) {
	a := State{Title: "x", Parameters: nil}
	b := State{Title: "x", Parameters: map[string]string{}}
	assert.Empty(t, a.Diff(b))

	b.Parameters["region"] = "eu"
	assert.Equal(t, []string{"parameters"}, a.Diff(b))
}

func TestStateOf(t *testing.T) {
	d := &types.Decision{
		Title:            "t",
		Version:          4,
		HealthSignal:     70,
		Lifecycle:        types.LifecycleUnderReview,
		GovernanceLocked: true,
	}
	s := StateOf(d)
	assert.Equal(t, 4, s.Version)
	assert.Equal(t, 70, s.HealthSignal)
	assert.True(t, s.GovernanceLocked)
}
