package classify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tenet/internal/types"
)

func messageJSON(text string) string {
	body, _ := json.Marshal(map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-haiku-4-5",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 42, "output_tokens": 7},
	})
	return string(body)
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *ModelClassifier {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m, err := NewModelClassifier("test-key", "claude-haiku-4-5", option.WithBaseURL(srv.URL))
	require.NoError(t, err)
	m.initialBackoff = time.Millisecond
	return m
}

func TestModelClassifierConflict(t *testing.T) {
	var prompt string
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		prompt = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageJSON(`Here you go: {"conflict": true, "type": "contradictory", "confidence": 0.82, "explanation": "growth vs decline"}`))
	})

	v, err := m.Classify(context.Background(),
		asm("asm-a", "Demand grows"), asm("asm-b", "Demand shrinks"))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.ConflictContradictory, v.Type)
	assert.InDelta(t, 0.82, v.Confidence, 1e-9)
	assert.Equal(t, "growth vs decline", v.Explanation)

	assert.Contains(t, prompt, "Demand grows")
	assert.Contains(t, prompt, "MUTUALLY_EXCLUSIVE")
	assert.NotContains(t, prompt, "RESOURCE_COMPETITION", "assumption prompts only list assumption conflict types")
}

func TestModelClassifierNoConflict(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageJSON(`{"conflict": false}`))
	})
	v, err := m.Classify(context.Background(), asm("asm-a", "x"), asm("asm-b", "y"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestModelClassifierRetriesServerErrors(t *testing.T) {
	var calls int32
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
			return
		}
		_, _ = io.WriteString(w, messageJSON(`{"conflict": true, "type": "PREMISE_INVALIDATION", "confidence": 0.7, "explanation": "x"}`))
	})
	v, err := m.Classify(context.Background(),
		dec("dec-a", "A", "", nil), dec("dec-b", "B", "", nil))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.ConflictPremiseInvalidation, v.Type)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestModelClassifierDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	})
	_, err := m.Classify(context.Background(), asm("asm-a", "x"), asm("asm-b", "y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		kind    types.ConflictKind
		want    *Verdict
		wantErr bool
	}{
		{"no json", "I think they conflict", types.KindAssumption, nil, true},
		{"bad json", "{conflict: yes}", types.KindAssumption, nil, true},
		{"type not valid for kind", `{"conflict": true, "type": "RESOURCE_COMPETITION", "confidence": 0.9}`, types.KindAssumption, nil, true},
		{"confidence out of range", `{"conflict": true, "type": "CONTRADICTORY", "confidence": 1.5}`, types.KindDecision, nil, true},
		{"no conflict", `{"conflict": false, "type": "CONTRADICTORY"}`, types.KindDecision, nil, false},
		{"decision conflict", "```json\n{\"conflict\": true, \"type\": \"RESOURCE_COMPETITION\", \"confidence\": 0.6, \"explanation\": \"same team\"}\n```", types.KindDecision,
			&Verdict{Type: types.ConflictResourceCompetition, Confidence: 0.6, Explanation: "same team"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.text, tt.kind)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderIncludesParameters(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	m, err := NewModelClassifier("k", "claude-haiku-4-5")
	require.NoError(t, err)
	out, err := m.render(
		dec("dec-a", "Use Postgres", "infra", map[string]string{"region": "eu", "database": "postgres"}),
		dec("dec-b", "Use MySQL", "infra", nil),
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Category: infra")
	// Parameters are listed in key order.
	assert.Less(t, strings.Index(out, "database=postgres"), strings.Index(out, "region=eu"))
	assert.Contains(t, out, "RESOURCE_COMPETITION")
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(io.EOF))
}
