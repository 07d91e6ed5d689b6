package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/config"
)

type recordingSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []Notification
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchFansOut(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(discard(), ok, bad)

	results := d.Dispatch(context.Background(), Notification{
		Type:       TypeHealthDegraded,
		Severity:   SeverityWarning,
		DecisionID: "dec-1",
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "boom", results[1].Error)

	require.Len(t, ok.got, 1)
	assert.False(t, ok.got[0].CreatedAt.IsZero(), "CreatedAt should be stamped")
	require.Len(t, bad.got, 1, "a failing sink still receives the notification")
}

func TestDispatchWithoutSinks(t *testing.T) {
	d := NewDispatcher(nil)
	assert.Empty(t, d.Dispatch(context.Background(), Notification{Type: TypeNeedsReview}))
}

func TestRemindReviewOncePerDecision(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d := NewDispatcher(discard(), sink)
	ctx := context.Background()

	assert.True(t, d.RemindReview(ctx, Notification{DecisionID: "dec-1"}))
	assert.False(t, d.RemindReview(ctx, Notification{DecisionID: "dec-1"}))
	assert.True(t, d.RemindReview(ctx, Notification{DecisionID: "dec-2"}))
	assert.ElementsMatch(t, []string{"dec-1", "dec-2"}, d.PendingReviews())

	d.DismissReview("dec-1")
	assert.True(t, d.RemindReview(ctx, Notification{DecisionID: "dec-1"}))

	require.Len(t, sink.got, 3)
	for _, n := range sink.got {
		assert.Equal(t, TypeNeedsReview, n.Type)
		assert.Equal(t, SeverityInfo, n.Severity)
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}
	ctx := context.Background()

	require.NoError(t, s.Notify(ctx, Notification{Type: TypeLifecycleChanged, Severity: SeverityInfo, DecisionID: "dec-info"}))
	require.NoError(t, s.Notify(ctx, Notification{Type: TypeHealthDegraded, Severity: SeverityCritical, DecisionID: "dec-crit"}))

	out := buf.String()
	assert.NotContains(t, out, "dec-info")
	assert.Contains(t, out, "dec-crit")
	assert.Contains(t, out, "level=ERROR")
}

func fastBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 4)
}

func TestWebhookSinkDelivers(t *testing.T) {
	var got Notification
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Tenet-Event")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL)
	s.NewBackOff = fastBackOff
	err := s.Notify(context.Background(), Notification{
		Type:       TypeConflictDetected,
		Severity:   SeverityCritical,
		DecisionID: "dec-1",
		ConflictID: "cfl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "conflict_detected", header)
	assert.Equal(t, "cfl-1", got.ConflictID)
	assert.Equal(t, SeverityCritical, got.Severity)
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL)
	s.NewBackOff = fastBackOff
	require.NoError(t, s.Notify(context.Background(), Notification{Type: TypeNeedsReview}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookSinkGivesUpOnClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL)
	s.NewBackOff = fastBackOff
	err := s.Notify(context.Background(), Notification{Type: TypeNeedsReview})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSinkSubjects(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "tenet.notifications")

	require.NoError(t, s.Notify(context.Background(), Notification{Type: TypeHealthDegraded, DecisionID: "dec-1"}))
	require.NoError(t, s.Notify(context.Background(), Notification{Type: TypeNeedsReview, DecisionID: "dec-2"}))

	assert.Equal(t, []string{
		"tenet.notifications.health_degraded",
		"tenet.notifications.needs_review",
	}, pub.subjects)
	assert.True(t, strings.Contains(string(pub.payloads[0]), `"decision_id":"dec-1"`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Notify(ctx, Notification{Type: TypeNeedsReview}))
	assert.Len(t, pub.subjects, 2)
}

func TestOpenWithoutNATS(t *testing.T) {
	d, closeFn, err := Open(config.NotifySettings{Webhooks: []string{"http://127.0.0.1:1/hook", ""}}, discard())
	require.NoError(t, err)
	defer closeFn()
	require.Len(t, d.sinks, 2)
	assert.Equal(t, "log", d.sinks[0].Name())
	assert.Equal(t, "webhook:http://127.0.0.1:1/hook", d.sinks[1].Name())
}
