package tasktype

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// Classifier assigns a task type to a prompt by evaluating an ordered rule
// table. It is safe for concurrent use.
type Classifier struct {
	rules    []*compiledRule
	fallback Type
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFallback sets the type returned when no rule matches.
func WithFallback(t Type) Option {
	return func(c *Classifier) {
		c.fallback = t
	}
}

// New compiles rules into a Classifier. Rules are evaluated in order.
func New(rules []Rule, opts ...Option) (*Classifier, error) {
	c := &Classifier{
		rules:    make([]*compiledRule, 0, len(rules)),
		fallback: Implementation,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.fallback.IsValid() {
		return nil, fmt.Errorf("invalid fallback type %q", c.fallback)
	}

	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = true

		compiled, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, compiled)
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(rules []Rule, opts ...Option) *Classifier {
	c, err := New(rules, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the task type for prompt.
func (c *Classifier) Classify(prompt string) Type {
	t, _ := c.Explain(prompt)
	return t
}

// Explain returns the task type for prompt and the name of the rule that
// produced it (RuleDefault when nothing matched).
func (c *Classifier) Explain(prompt string) (Type, string) {
	normalized := Normalize(prompt)
	for _, r := range c.rules {
		if r.matches(normalized) {
			return r.Type, r.Name
		}
	}
	return c.fallback, RuleDefault
}

// Rules returns the names of the configured rules in precedence order.
func (c *Classifier) Rules() []string {
	names := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		names = append(names, r.Name)
	}
	return names
}

// Normalize folds full-width ASCII to half-width (and half-width katakana to
// full-width) and applies Unicode case folding.
func Normalize(s string) string {
	// cases.Caser is stateful, so a fresh one is built per call.
	return cases.Fold().String(width.Fold.String(s))
}

var defaultClassifier = MustNew(DefaultRules())

// Default returns the classifier built from DefaultRules.
func Default() *Classifier {
	return defaultClassifier
}

// Classify classifies prompt with the default rule table.
func Classify(prompt string) Type {
	return defaultClassifier.Classify(prompt)
}
