package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Empty(t *testing.T) {
	for _, out := range []string{"", "   ", "\n\t"} {
		res := Validate(out)
		assert.False(t, res.Valid)
		require.Len(t, res.Violations, 1)
		assert.Equal(t, SeverityCritical, res.Violations[0].Severity)
		assert.Equal(t, "non_empty", res.Violations[0].Rule)
	}
}

func TestValidate_DefaultRulesPass(t *testing.T) {
	res := Validate("All tests pass.")
	assert.True(t, res.Valid)
	assert.Empty(t, res.Violations)
	assert.NotNil(t, res.Violations)
}

func TestValidate_MinorDoesNotInvalidate(t *testing.T) {
	res := Validate("Report: {{SUMMARY}}")
	assert.True(t, res.Valid)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, SeverityMinor, res.Violations[0].Severity)
	assert.Equal(t, "unresolved_placeholder", res.Violations[0].Rule)
}

func TestRequiredSectionsRule(t *testing.T) {
	rule := RequiredSectionsRule{Sections: []string{"Summary", "Changes"}}

	out := "## Summary\nFixed it.\n\n**changes:**\n- a.go\n"
	assert.Empty(t, rule.Check(out))

	vs := rule.Check("## Summary\nonly this")
	require.Len(t, vs, 1)
	assert.Equal(t, SeverityMajor, vs[0].Severity)
	assert.Contains(t, vs[0].Message, "Changes")

	res := Validate("## Summary\nonly this", rule)
	assert.False(t, res.Valid)
}

func TestForbiddenPatternsRule(t *testing.T) {
	_, err := NewForbiddenPatternsRule([]string{"("})
	require.Error(t, err)

	rule, err := NewForbiddenPatternsRule([]string{`(?i)as an ai`, `TODO`})
	require.NoError(t, err)

	assert.Empty(t, rule.Check("clean output"))
	vs := rule.Check("As an AI I cannot. TODO")
	assert.Len(t, vs, 2)
}

func TestMaxLengthRule(t *testing.T) {
	assert.Empty(t, MaxLengthRule{}.Check("anything"))
	assert.Empty(t, MaxLengthRule{Max: 3}.Check("日本語"))
	vs := MaxLengthRule{Max: 3}.Check("日本語です")
	require.Len(t, vs, 1)
	assert.Equal(t, SeverityMinor, vs[0].Severity)
}

type countingRule struct{ calls *int }

func (countingRule) Name() string { return "counting" }

func (r countingRule) Check(string) []Violation {
	*r.calls++
	return []Violation{{Severity: SeverityMajor, Message: "always"}}
}

func TestValidate_CustomRuleNameFilled(t *testing.T) {
	calls := 0
	res := Validate("x", countingRule{calls: &calls})
	assert.Equal(t, 1, calls)
	assert.False(t, res.Valid)
	assert.Equal(t, "counting", res.Violations[0].Rule)
}
