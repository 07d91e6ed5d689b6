package classify

import (
	"fmt"

	"github.com/steveyegge/tenet/internal/config"
)

// Open builds the classifier selected by the configuration. A rules
// classifier without a rules file uses DefaultRules.
func Open(s config.ClassifierSettings) (Classifier, error) {
	switch s.Provider {
	case "", config.ProviderRules:
		rules := DefaultRules()
		if s.RulesFile != "" {
			var err error
			if rules, err = LoadRules(s.RulesFile); err != nil {
				return nil, err
			}
		}
		return NewRuleClassifier(rules)
	case config.ProviderAnthropic:
		model := s.Model
		if model == "" {
			model = config.DefaultAIModel
		}
		return NewModelClassifier(s.APIKey, model)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q (want %s or %s)",
			s.Provider, config.ProviderRules, config.ProviderAnthropic)
	}
}
