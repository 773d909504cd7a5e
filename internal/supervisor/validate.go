package supervisor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Severity indicates how serious a violation is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Violation is one failed output check.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationResult is the outcome of Validate. Valid is false when any
// violation is major or critical; minor violations are reported only.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// OutputRule is a single structural check on agent output.
type OutputRule interface {
	Name() string
	Check(output string) []Violation
}

// Validate runs rules against output. With no rules it runs DefaultRules.
// It never fails: every input, including "", yields a result.
func Validate(output string, rules ...OutputRule) ValidationResult {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	res := ValidationResult{Valid: true, Violations: []Violation{}}
	for _, r := range rules {
		for _, v := range r.Check(output) {
			if v.Rule == "" {
				v.Rule = r.Name()
			}
			if v.Severity != SeverityMinor {
				res.Valid = false
			}
			res.Violations = append(res.Violations, v)
		}
	}
	return res
}

// DefaultRules are applied when no rules are configured.
func DefaultRules() []OutputRule {
	return []OutputRule{NonEmptyRule{}, UnresolvedPlaceholderRule{}}
}

// NonEmptyRule rejects blank output.
type NonEmptyRule struct{}

func (NonEmptyRule) Name() string { return "non_empty" }

func (NonEmptyRule) Check(output string) []Violation {
	if strings.TrimSpace(output) != "" {
		return nil
	}
	return []Violation{{Severity: SeverityCritical, Message: "output is empty"}}
}

// RequiredSectionsRule requires a heading line for each section. A line
// matches when, after stripping markdown heading marks and a trailing
// colon, it equals the section name ignoring case.
type RequiredSectionsRule struct {
	Sections []string
}

func (RequiredSectionsRule) Name() string { return "required_sections" }

func (r RequiredSectionsRule) Check(output string) []Violation {
	if len(r.Sections) == 0 {
		return nil
	}

	fold := cases.Fold()
	present := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		h := strings.Trim(line, "#* \t\r")
		h = strings.Trim(strings.TrimSuffix(h, ":"), "* ")
		if h != "" {
			present[fold.String(h)] = true
		}
	}

	var out []Violation
	for _, s := range r.Sections {
		if !present[fold.String(strings.TrimSpace(s))] {
			out = append(out, Violation{
				Severity: SeverityMajor,
				Message:  fmt.Sprintf("missing required section %q", s),
			})
		}
	}
	return out
}

// ForbiddenPatternsRule rejects output matching any pattern.
type ForbiddenPatternsRule struct {
	patterns []*regexp.Regexp
}

// NewForbiddenPatternsRule compiles patterns.
func NewForbiddenPatternsRule(patterns []string) (*ForbiddenPatternsRule, error) {
	r := &ForbiddenPatternsRule{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid forbidden pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (*ForbiddenPatternsRule) Name() string { return "forbidden_patterns" }

func (r *ForbiddenPatternsRule) Check(output string) []Violation {
	var out []Violation
	for _, re := range r.patterns {
		if re.MatchString(output) {
			out = append(out, Violation{
				Severity: SeverityMajor,
				Message:  fmt.Sprintf("output matches forbidden pattern %q", re.String()),
			})
		}
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\{\{[A-Z_]+\}\}`)

// UnresolvedPlaceholderRule flags template placeholders left in output.
type UnresolvedPlaceholderRule struct{}

func (UnresolvedPlaceholderRule) Name() string { return "unresolved_placeholder" }

func (UnresolvedPlaceholderRule) Check(output string) []Violation {
	found := placeholderPattern.FindAllString(output, -1)
	if len(found) == 0 {
		return nil
	}
	return []Violation{{
		Severity: SeverityMinor,
		Message:  fmt.Sprintf("unresolved placeholders: %s", strings.Join(found, ", ")),
	}}
}

// MaxLengthRule limits output length in characters. Zero disables it.
type MaxLengthRule struct {
	Max int
}

func (MaxLengthRule) Name() string { return "max_length" }

func (r MaxLengthRule) Check(output string) []Violation {
	if r.Max <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(output); n > r.Max {
		return []Violation{{
			Severity: SeverityMinor,
			Message:  fmt.Sprintf("output is %d characters, limit is %d", n, r.Max),
		}}
	}
	return nil
}
