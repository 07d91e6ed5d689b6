package classify

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Rules configure the rule-based classifier. They are read from a TOML file:
//
//	min_overlap = 0.3
//	negations   = ["not", "no", "never"]
//	exclusive_keys = ["database", "cloud_provider"]
//	resource_keys  = ["team", "budget_line"]
//
//	[[antonyms]]
//	words = ["increase", "decrease"]
type Rules struct {
	// MinOverlap is the Jaccard similarity of the two texts (ignoring
	// stopwords, negations and antonym words) needed before wording can
	// indicate a contradiction.
	MinOverlap float64 `toml:"min_overlap"`

	Negations []string      `toml:"negations"`
	Stopwords []string      `toml:"stopwords"`
	Antonyms  []AntonymPair `toml:"antonyms"`

	// ExclusiveKeys are decision parameters that only admit one value per
	// category: two decisions setting different values conflict.
	ExclusiveKeys []string `toml:"exclusive_keys"`

	// ResourceKeys are decision parameters naming a shared resource: two
	// decisions claiming the same value compete for it.
	ResourceKeys []string `toml:"resource_keys"`
}

// AntonymPair is two words with opposite meaning.
type AntonymPair struct {
	Words [2]string `toml:"words"`
}

// DefaultRules are used when no rules file is configured.
func DefaultRules() Rules {
	pairs := [][2]string{
		{"increase", "decrease"},
		{"increase", "reduce"},
		{"raise", "lower"},
		{"grow", "shrink"},
		{"expand", "reduce"},
		{"more", "less"},
		{"more", "fewer"},
		{"higher", "lower"},
		{"high", "low"},
		{"enable", "disable"},
		{"allow", "forbid"},
		{"allow", "prohibit"},
		{"accept", "reject"},
		{"add", "remove"},
		{"adopt", "abandon"},
		{"centralize", "decentralize"},
		{"centralized", "decentralized"},
		{"open", "closed"},
		{"public", "private"},
		{"stable", "volatile"},
		{"available", "unavailable"},
		{"sufficient", "insufficient"},
		{"required", "optional"},
		{"mandatory", "optional"},
		{"cloud", "onprem"},
		{"buy", "build"},
		{"hire", "layoff"},
	}
	r := Rules{
		MinOverlap: 0.3,
		Negations: []string{
			"not", "no", "never", "without", "none", "cannot", "can't", "won't",
			"don't", "doesn't", "isn't", "aren't", "wasn't", "shouldn't", "mustn't",
		},
		Stopwords: []string{
			"a", "an", "the", "and", "or", "of", "to", "in", "on", "for", "is", "are",
			"be", "will", "we", "our", "with", "by", "at", "as", "that", "this", "it",
			"from", "its", "has", "have", "should", "must", "can", "would", "all",
		},
		ExclusiveKeys: []string{"database", "cloud_provider", "language", "vendor"},
		ResourceKeys:  []string{"team", "budget_line", "cluster"},
	}
	for _, p := range pairs {
		r.Antonyms = append(r.Antonyms, AntonymPair{Words: p})
	}
	return r
}

// LoadRules reads a TOML rules file. Fields the file leaves out keep their
// DefaultRules values.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path from configuration
	if err != nil {
		return Rules{}, fmt.Errorf("reading classifier rules: %w", err)
	}
	return ParseRules(string(data))
}

// ParseRules decodes TOML rules over the defaults.
func ParseRules(data string) (Rules, error) {
	r := DefaultRules()
	md, err := toml.Decode(data, &r)
	if err != nil {
		return Rules{}, fmt.Errorf("parsing classifier rules: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Rules{}, fmt.Errorf("parsing classifier rules: unknown key %q", undecoded[0].String())
	}
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Validate checks rule values.
func (r Rules) Validate() error {
	if r.MinOverlap < 0 || r.MinOverlap > 1 {
		return fmt.Errorf("min_overlap must be between 0 and 1 (got %v)", r.MinOverlap)
	}
	for i, p := range r.Antonyms {
		if p.Words[0] == "" || p.Words[1] == "" {
			return fmt.Errorf("antonyms[%d]: both words are required", i)
		}
		if p.Words[0] == p.Words[1] {
			return fmt.Errorf("antonyms[%d]: %q cannot be its own antonym", i, p.Words[0])
		}
	}
	return nil
}
