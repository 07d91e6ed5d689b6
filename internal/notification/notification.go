// Package notification delivers engine notifications (health degradation,
// lifecycle changes, detected conflicts, review reminders) to the configured
// channels: the log, HTTP webhooks and a NATS subject.
//
// Delivery is best effort. The engine dispatches after its transaction has
// committed, and a failing channel never undoes or blocks a mutation.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Type names what happened.
type Type string

const (
	TypeHealthDegraded   Type = "health_degraded"
	TypeLifecycleChanged Type = "lifecycle_changed"
	TypeConflictDetected Type = "conflict_detected"
	TypeNeedsReview      Type = "needs_review"
)

// Severity is how urgent a notification is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is the payload every channel receives.
type Notification struct {
	Type       Type      `json:"type"`
	Severity   Severity  `json:"severity"`
	DecisionID string    `json:"decision_id"`
	CreatedAt  time.Time `json:"created_at"`

	OrgID      string `json:"org_id,omitempty"`
	ConflictID string `json:"conflict_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// DispatchResult records the outcome of delivering to one channel.
type DispatchResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher fans notifications out to every sink. It also remembers which
// decisions have an outstanding needs_review reminder so the staleness sweep
// does not repeat it until the decision is reviewed.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewDispatcher returns a dispatcher delivering to sinks. With no sinks,
// notifications are only logged at debug level.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		pending: make(map[string]time.Time),
	}
}

// Dispatch sends n to every sink. Failures are logged and reported in the
// results; they are never returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) []DispatchResult {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if len(d.sinks) == 0 {
		d.logger.Debug("notification (no channels configured)",
			"type", n.Type, "severity", n.Severity, "decision", n.DecisionID)
		return nil
	}

	results := make([]DispatchResult, 0, len(d.sinks))
	for _, s := range d.sinks {
		res := DispatchResult{Channel: s.Name(), Success: true}
		if err := s.Notify(ctx, n); err != nil {
			res.Success = false
			res.Error = err.Error()
			d.logger.Warn("notification delivery failed",
				"channel", s.Name(), "type", n.Type, "decision", n.DecisionID, "error", err)
		}
		results = append(results, res)
	}
	return results
}

// RemindReview dispatches a needs_review notification unless one is already
// outstanding for the decision. It reports whether a reminder was sent.
func (d *Dispatcher) RemindReview(ctx context.Context, n Notification) bool {
	d.mu.Lock()
	if _, ok := d.pending[n.DecisionID]; ok {
		d.mu.Unlock()
		return false
	}
	d.pending[n.DecisionID] = time.Now()
	d.mu.Unlock()

	n.Type = TypeNeedsReview
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	d.Dispatch(ctx, n)
	return true
}

// DismissReview clears the outstanding needs_review reminder of a decision.
func (d *Dispatcher) DismissReview(decisionID string) {
	d.mu.Lock()
	delete(d.pending, decisionID)
	d.mu.Unlock()
}

// PendingReviews lists decisions with an outstanding reminder.
func (d *Dispatcher) PendingReviews() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.pending))
	for id := range d.pending {
		out = append(out, id)
	}
	return out
}

// LogSink writes notifications to a slog logger.
type LogSink struct {
	Logger *slog.Logger
}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Notify implements Sink.
func (s LogSink) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	switch n.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	s.Logger.Log(ctx, level, "notification",
		"type", n.Type,
		"severity", n.Severity,
		"decision", n.DecisionID,
		"conflict", n.ConflictID,
		"message", n.Message,
	)
	return nil
}

func encode(n Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return data, nil
}
