package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/types"
)

// Confidence levels of the rule classifier.
const (
	exclusiveConfidence = 0.9
	resourceConfidence  = 0.7
	maxTextConfidence   = 0.95
)

// RuleClassifier finds conflicts with word-level heuristics and decision
// parameter rules. It is safe for concurrent use; rules can be swapped while
// classification is running.
type RuleClassifier struct {
	mu    sync.RWMutex
	rules *compiledRules
}

type compiledRules struct {
	Rules
	negations map[string]bool
	stopwords map[string]bool
	opposites map[string][]string
}

func compile(r Rules) (*compiledRules, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	c := &compiledRules{
		Rules:     r,
		negations: make(map[string]bool),
		stopwords: make(map[string]bool),
		opposites: make(map[string][]string),
	}
	for _, w := range r.Negations {
		c.negations[normalizeWord(w)] = true
	}
	for _, w := range r.Stopwords {
		c.stopwords[normalizeWord(w)] = true
	}
	for _, p := range r.Antonyms {
		x, y := normalizeWord(p.Words[0]), normalizeWord(p.Words[1])
		c.opposites[x] = append(c.opposites[x], y)
		c.opposites[y] = append(c.opposites[y], x)
	}
	return c, nil
}

// NewRuleClassifier returns a classifier using r.
func NewRuleClassifier(r Rules) (*RuleClassifier, error) {
	compiled, err := compile(r)
	if err != nil {
		return nil, err
	}
	return &RuleClassifier{rules: compiled}, nil
}

// SetRules replaces the active rules. Invalid rules are rejected and the
// previous ones stay in effect.
func (c *RuleClassifier) SetRules(r Rules) error {
	compiled, err := compile(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.rules = compiled
	c.mu.Unlock()
	return nil
}

// Rules returns the active rules.
func (c *RuleClassifier) Rules() Rules {
	return c.current().Rules
}

func (c *RuleClassifier) current() *compiledRules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Watch reloads rules from path whenever the file changes, until ctx is done.
func (c *RuleClassifier) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	return config.WatchFile(ctx, path, logger, func() error {
		r, err := LoadRules(path)
		if err != nil {
			return err
		}
		return c.SetRules(r)
	})
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(ctx context.Context, a, b Entity) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	r := c.current()
	if a.Kind == types.KindDecision {
		if v := r.parameterVerdict(a, b); v != nil {
			return v, nil
		}
	}
	return r.textVerdict(a, b), nil
}

func (r *compiledRules) parameterVerdict(a, b Entity) *Verdict {
	if a.Category != "" && b.Category != "" && !strings.EqualFold(a.Category, b.Category) {
		// Different areas may legitimately pick different values.
		return r.resourceVerdict(a, b)
	}
	for _, key := range r.ExclusiveKeys {
		va, vb := strings.TrimSpace(a.Parameters[key]), strings.TrimSpace(b.Parameters[key])
		if va == "" || vb == "" || strings.EqualFold(va, vb) {
			continue
		}
		return &Verdict{
			Type:        types.ConflictMutuallyExclusive,
			Confidence:  exclusiveConfidence,
			Explanation: fmt.Sprintf("both decide %s: %q vs %q", key, va, vb),
		}
	}
	return r.resourceVerdict(a, b)
}

func (r *compiledRules) resourceVerdict(a, b Entity) *Verdict {
	for _, key := range r.ResourceKeys {
		va, vb := strings.TrimSpace(a.Parameters[key]), strings.TrimSpace(b.Parameters[key])
		if va == "" || !strings.EqualFold(va, vb) {
			continue
		}
		return &Verdict{
			Type:        types.ConflictResourceCompetition,
			Confidence:  resourceConfidence,
			Explanation: fmt.Sprintf("both claim %s %q", key, va),
		}
	}
	return nil
}

// textVerdict flags two texts about the same subject with opposite polarity:
// either exactly one of them is negated or they use antonyms (but not both,
// "will not increase" and "will decrease" agree).
func (r *compiledRules) textVerdict(a, b Entity) *Verdict {
	ta, tb := tokenize(a.Text), tokenize(b.Text)
	ca, cb := r.content(ta), r.content(tb)
	if len(ca) == 0 || len(cb) == 0 {
		return nil
	}
	overlap := jaccard(ca, cb)
	if overlap < r.MinOverlap {
		return nil
	}

	negA, negB := r.negated(ta), r.negated(tb)
	x, y, antonyms := r.antonymHit(ta, tb)
	if antonyms == (negA != negB) {
		return nil
	}

	confidence := 0.5 + 0.45*overlap
	if confidence > maxTextConfidence {
		confidence = maxTextConfidence
	}
	var why string
	if antonyms {
		why = fmt.Sprintf("opposite claims (%q vs %q)", x, y)
	} else {
		why = "one statement negates the other"
	}
	return &Verdict{
		Type:       types.ConflictContradictory,
		Confidence: confidence,
		Explanation: fmt.Sprintf("%s about the same subject (%.0f%% overlap): %q / %q",
			why, overlap*100, truncate(a.Text, 80), truncate(b.Text, 80)),
	}
}

func (r *compiledRules) content(tokens map[string]bool) map[string]bool {
	out := make(map[string]bool, len(tokens))
	for t := range tokens {
		if r.stopwords[t] || r.negations[t] || len(r.opposites[t]) > 0 {
			continue
		}
		out[t] = true
	}
	return out
}

func (r *compiledRules) negated(tokens map[string]bool) bool {
	for t := range tokens {
		if r.negations[t] {
			return true
		}
	}
	return false
}

// antonymHit finds a word of a whose opposite appears in b and not in a.
// Words are tried in sorted order so the explanation is stable.
func (r *compiledRules) antonymHit(a, b map[string]bool) (string, string, bool) {
	words := make([]string, 0, len(a))
	for w := range a {
		if len(r.opposites[w]) > 0 {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	for _, w := range words {
		for _, o := range r.opposites[w] {
			if b[o] && !a[o] && !b[w] {
				return w, o, true
			}
		}
	}
	return "", "", false
}

func tokenize(s string) map[string]bool {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out[f] = true
		}
	}
	return out
}

func normalizeWord(w string) string {
	return strings.Trim(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(w)), "’", "'"), "'")
}

func jaccard(a, b map[string]bool) float64 {
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
