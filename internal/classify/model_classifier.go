package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/tenet/internal/telemetry"
	"github.com/steveyegge/tenet/internal/types"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when no API key is configured.
var ErrAPIKeyRequired = errors.New("API key required")

// ModelClassifier asks an Anthropic model to judge a pair.
type ModelClassifier struct {
	client         anthropic.Client
	model          anthropic.Model
	prompt         *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

// NewModelClassifier creates a model-backed classifier. Env var
// ANTHROPIC_API_KEY takes precedence over apiKey. Extra request options
// (base URL, HTTP client) are passed to the SDK.
func NewModelClassifier(apiKey, model string, opts ...option.RequestOption) (*ModelClassifier, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or classifier.api-key", ErrAPIKeyRequired)
	}
	if model == "" {
		return nil, fmt.Errorf("classifier model is required")
	}

	tmpl, err := template.New("classify").Parse(classifyPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	// Retries are handled here so they show up in spans and metrics.
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)

	aiMetricsOnce.Do(initAIMetrics)

	return &ModelClassifier{
		client:         anthropic.NewClient(all...),
		model:          anthropic.Model(model),
		prompt:         tmpl,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Classify implements Classifier.
func (m *ModelClassifier) Classify(ctx context.Context, a, b Entity) (*Verdict, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	prompt, err := m.render(a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}
	text, err := m.callWithRetry(ctx, prompt, a.Kind)
	if err != nil {
		return nil, err
	}
	return parseVerdict(text, a.Kind)
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/steveyegge/tenet/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("tenet.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("tenet.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("tenet.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func (m *ModelClassifier) callWithRetry(ctx context.Context, prompt string, kind types.ConflictKind) (string, error) {
	tracer := telemetry.Tracer("github.com/steveyegge/tenet/ai")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenet.ai.model", string(m.model)),
		attribute.String("tenet.ai.operation", "classify"),
		attribute.String("tenet.conflict.kind", string(kind)),
	)

	params := anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := m.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("tenet.ai.model", string(m.model))
			if aiMetrics.inputTokens != nil {
				aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(
				attribute.Int64("tenet.ai.input_tokens", message.Usage.InputTokens),
				attribute.Int64("tenet.ai.output_tokens", message.Usage.OutputTokens),
				attribute.Int("tenet.ai.attempts", attempt+1),
			)

			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	return "", fmt.Errorf("failed after %d retries: %w", m.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

type modelAnswer struct {
	Conflict    bool    `json:"conflict"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// parseVerdict reads the JSON object in the model's reply. Text around the
// object is ignored.
func parseVerdict(text string, kind types.ConflictKind) (*Verdict, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("model reply has no JSON object: %q", truncate(text, 120))
	}
	var ans modelAnswer
	if err := json.Unmarshal([]byte(text[start:end+1]), &ans); err != nil {
		return nil, fmt.Errorf("decoding model reply: %w", err)
	}
	if !ans.Conflict {
		return nil, nil
	}
	v := &Verdict{
		Type:        types.ConflictType(strings.ToUpper(strings.TrimSpace(ans.Type))),
		Confidence:  ans.Confidence,
		Explanation: ans.Explanation,
	}
	if err := v.Validate(kind); err != nil {
		return nil, fmt.Errorf("model reply: %w", err)
	}
	return v, nil
}

type promptEntity struct {
	Text       string
	Category   string
	Parameters []string
}

type promptData struct {
	Kind  string
	Types []types.ConflictType
	A, B  promptEntity
}

func toPromptEntity(e Entity) promptEntity {
	pe := promptEntity{Text: e.Text, Category: e.Category}
	for _, k := range sortedParamKeys(e.Parameters) {
		pe.Parameters = append(pe.Parameters, k+"="+e.Parameters[k])
	}
	return pe
}

func (m *ModelClassifier) render(a, b Entity) (string, error) {
	data := promptData{
		Kind: string(a.Kind),
		A:    toPromptEntity(a),
		B:    toPromptEntity(b),
	}
	for _, t := range allConflictTypes {
		if t.ValidFor(a.Kind) {
			data.Types = append(data.Types, t)
		}
	}
	var buf bytes.Buffer
	if err := m.prompt.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var allConflictTypes = []types.ConflictType{
	types.ConflictContradictory,
	types.ConflictMutuallyExclusive,
	types.ConflictIncompatible,
	types.ConflictResourceCompetition,
	types.ConflictObjectiveUndermining,
	types.ConflictPremiseInvalidation,
}

const classifyPromptTemplate = `You review an organization's {{.Kind}}s for contradictions. Decide whether the two {{.Kind}}s below conflict.

**{{.Kind}} A:** {{.A.Text}}
{{if .A.Category}}Category: {{.A.Category}}
{{end}}{{range .A.Parameters}}- {{.}}
{{end}}
**{{.Kind}} B:** {{.B.Text}}
{{if .B.Category}}Category: {{.B.Category}}
{{end}}{{range .B.Parameters}}- {{.}}
{{end}}
Allowed conflict types: {{range $i, $t := .Types}}{{if $i}}, {{end}}{{$t}}{{end}}.

Only report a conflict when both cannot hold at the same time. Reply with a single JSON object and nothing else:

{"conflict": true|false, "type": "<one allowed type>", "confidence": <0.0-1.0>, "explanation": "<one sentence>"}`
