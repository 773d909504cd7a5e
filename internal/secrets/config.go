package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures the scrubber.
type Config struct {
	Enabled   bool     `koanf:"enabled"`
	Rules     []Rule   `koanf:"rules"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`
}

// Rule defines a secret detection rule. When Keywords is non-empty the
// pattern only runs if one of them occurs in the content (case-insensitive).
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"`
	Severity    string   `koanf:"severity"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns a configuration with the built-in rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Redaction: DefaultRedaction,
		Rules:     DefaultRules(),
	}
}

// compile validates the configuration and compiles its patterns.
func (c *Config) compile() ([]*compiledRule, []*regexp.Regexp, error) {
	rules := make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		cr := &compiledRule{Rule: rule, pattern: re}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		allow = append(allow, re)
	}

	return rules, allow, nil
}
