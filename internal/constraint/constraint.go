// Package constraint decides whether a decision violates the organization's
// constraints.
//
// Constraints themselves are free text records (internal/types.Constraint).
// What makes them checkable is a rules file mapping each constraint to a
// condition on decision parameters. A rule only applies while the constraint
// it names exists, so deleting a constraint switches its rule off.
package constraint

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/types"
)

// Evaluator reports whether a decision currently violates any constraint,
// with a human-readable reason per violated rule.
type Evaluator interface {
	Violates(ctx context.Context, d *types.Decision, constraints []*types.Constraint) (bool, []string, error)
}

// Noop never reports a violation.
type Noop struct{}

// Violates implements Evaluator.
func (Noop) Violates(context.Context, *types.Decision, []*types.Constraint) (bool, []string, error) {
	return false, nil, nil
}

// Rule is one checkable condition. Exactly one of Allowed, Forbidden or
// Required must be set.
type Rule struct {
	// Constraint is the ID or name of the constraint this rule enforces.
	// Empty means the rule is always active.
	Constraint string `toml:"constraint"`
	// Category limits the rule to decisions of one category.
	Category  string   `toml:"category"`
	Parameter string   `toml:"parameter"`
	Allowed   []string `toml:"allowed"`
	Forbidden []string `toml:"forbidden"`
	Required  bool     `toml:"required"`
}

// Validate checks the rule shape.
func (r Rule) Validate() error {
	if r.Parameter == "" {
		return fmt.Errorf("parameter is required")
	}
	set := 0
	if len(r.Allowed) > 0 {
		set++
	}
	if len(r.Forbidden) > 0 {
		set++
	}
	if r.Required {
		set++
	}
	if set != 1 {
		return fmt.Errorf("rule on %q needs exactly one of allowed, forbidden or required", r.Parameter)
	}
	return nil
}

type ruleFile struct {
	Rules []Rule `toml:"rule"`
}

// ParseRules decodes a TOML rules file body.
func ParseRules(data string) ([]Rule, error) {
	var f ruleFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parsing constraint rules: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing constraint rules: unknown key %q", undecoded[0].String())
	}
	for i, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule[%d]: %w", i, err)
		}
	}
	return f.Rules, nil
}

// LoadRules reads a TOML rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path from configuration
	if err != nil {
		return nil, fmt.Errorf("reading constraint rules: %w", err)
	}
	return ParseRules(string(data))
}

// RuleEvaluator checks decisions against parameter rules. Rules can be
// swapped while evaluations run.
type RuleEvaluator struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRuleEvaluator returns an evaluator using rules.
func NewRuleEvaluator(rules []Rule) (*RuleEvaluator, error) {
	e := &RuleEvaluator{}
	if err := e.SetRules(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// SetRules replaces the active rules after validating all of them.
func (e *RuleEvaluator) SetRules(rules []Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule[%d]: %w", i, err)
		}
	}
	e.mu.Lock()
	e.rules = slices.Clone(rules)
	e.mu.Unlock()
	return nil
}

// Rules returns a copy of the active rules.
func (e *RuleEvaluator) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// Watch reloads rules from path whenever the file changes, until ctx is done.
func (e *RuleEvaluator) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	return config.WatchFile(ctx, path, logger, func() error {
		rules, err := LoadRules(path)
		if err != nil {
			return err
		}
		return e.SetRules(rules)
	})
}

// Violates implements Evaluator. Retired decisions never violate.
func (e *RuleEvaluator) Violates(ctx context.Context, d *types.Decision, constraints []*types.Constraint) (bool, []string, error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}
	if d.IsRetired() {
		return false, nil, nil
	}

	var reasons []string
	for _, r := range e.Rules() {
		c, active := activeConstraint(r, constraints)
		if !active {
			continue
		}
		if r.Category != "" && !strings.EqualFold(r.Category, d.Category) {
			continue
		}
		if why := r.check(d); why != "" {
			if c != nil {
				why = c.Name + ": " + why
			}
			reasons = append(reasons, why)
		}
	}
	return len(reasons) > 0, reasons, nil
}

func activeConstraint(r Rule, constraints []*types.Constraint) (*types.Constraint, bool) {
	if r.Constraint == "" {
		return nil, true
	}
	for _, c := range constraints {
		if c.ID == r.Constraint || strings.EqualFold(c.Name, r.Constraint) {
			return c, true
		}
	}
	return nil, false
}

func (r Rule) check(d *types.Decision) string {
	value, present := d.Parameters[r.Parameter]
	switch {
	case r.Required:
		if !present || strings.TrimSpace(value) == "" {
			return fmt.Sprintf("parameter %s is required", r.Parameter)
		}
	case len(r.Allowed) > 0:
		if present && !containsFold(r.Allowed, value) {
			return fmt.Sprintf("%s=%q is not one of %s", r.Parameter, value, strings.Join(r.Allowed, ", "))
		}
	case len(r.Forbidden) > 0:
		if present && containsFold(r.Forbidden, value) {
			return fmt.Sprintf("%s=%q is forbidden", r.Parameter, value)
		}
	}
	return ""
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

// Open builds the evaluator for the configured rules file. Without one,
// nothing is ever in violation.
func Open(s config.ConstraintSettings) (Evaluator, error) {
	if s.RulesFile == "" {
		return Noop{}, nil
	}
	rules, err := LoadRules(s.RulesFile)
	if err != nil {
		return nil, err
	}
	return NewRuleEvaluator(rules)
}
