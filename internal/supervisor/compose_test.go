package supervisor

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePrompt_Order(t *testing.T) {
	g, p, u := "GLOBAL RULES", "PROJECT RULES", "do the thing"
	got := MergePrompt(g, p, u)

	assert.Equal(t, u, got.UserPrompt)
	assert.Equal(t, "GLOBAL RULES\n\nPROJECT RULES\n\ndo the thing", got.Composed)

	gi := strings.Index(got.Composed, g)
	pi := strings.Index(got.Composed, p)
	ui := strings.Index(got.Composed, u)
	assert.True(t, gi >= 0 && gi < pi && pi < ui)
}

func TestMergePrompt_EmptyParts(t *testing.T) {
	tests := []struct {
		name    string
		g, p, u string
		want    string
	}{
		{"no templates", "", "", "user", "user"},
		{"only global", "G", "", "user", "G\n\nuser"},
		{"only project", "", "P", "user", "P\n\nuser"},
		{"whitespace global is kept", "\t", "P", "user", "\t\n\nP\n\nuser"},
		{"empty user", "G", "P", "", "G\n\nP"},
		{"all empty", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergePrompt(tt.g, tt.p, tt.u)
			assert.Equal(t, tt.want, got.Composed)
			assert.Contains(t, got.Composed, tt.u)
			assert.Contains(t, got.Composed, tt.g)
			assert.Contains(t, got.Composed, tt.p)
		})
	}
}

func TestMarkers_RoundTrip(t *testing.T) {
	inputs := []Components{
		{"global", "project", "user"},
		{"", "", ""},
		{"", "project", ""},
		{"multi\nline\n", "\n", "  padded  "},
		{"日本語のルール", "プロジェクト", "矛盾検知テスト"},
		{"A:{{OUTPUT}}", "<!-- not a marker -->", "ends with newline\n"},
	}

	for _, in := range inputs {
		composed := MergePromptWithMarkers(in.GlobalTemplate, in.ProjectTemplate, in.UserPrompt)
		got, err := ExtractComponents(composed.Composed)
		require.NoError(t, err)
		if diff := cmp.Diff(in, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestMergePromptWithMarkers_Order(t *testing.T) {
	got := MergePromptWithMarkers("G", "P", "U").Composed
	order := []string{MarkerGlobalStart, "G", MarkerGlobalEnd, MarkerProjectStart, "P", MarkerProjectEnd, MarkerUserStart, "U", MarkerUserEnd}

	last := -1
	for _, s := range order {
		i := strings.Index(got[last+1:], s)
		require.GreaterOrEqual(t, i, 0, s)
		last += 1 + i
	}
}

func TestExtractComponents_FailsClosed(t *testing.T) {
	valid := MergePromptWithMarkers("g", "p", "u").Composed

	tests := []struct {
		name  string
		input string
	}{
		{"no markers", "just a prompt"},
		{"empty", ""},
		{"missing user end", strings.Replace(valid, MarkerUserEnd, "", 1)},
		{"swapped sections", strings.Replace(strings.Replace(valid, MarkerGlobalStart, "@@", 1), MarkerProjectStart, MarkerGlobalStart, 1)},
		{"duplicated marker", valid + "\n" + MarkerUserEnd},
		{"text between sections", strings.Replace(valid, MarkerGlobalEnd+"\n\n", MarkerGlobalEnd+"\nstray\n", 1)},
		{"not newline framed", strings.Replace(valid, MarkerGlobalStart+"\n", MarkerGlobalStart, 1)},
		{"content contains marker", MergePromptWithMarkers(MarkerUserStart, "p", "u").Composed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractComponents(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMarkers))
			assert.Equal(t, Components{}, got)
		})
	}
}

func TestApplyOutputTemplate(t *testing.T) {
	t.Run("empty template is identity", func(t *testing.T) {
		for _, out := range []string{"", "msg", "multi\nline", "{{OUTPUT}}"} {
			assert.Equal(t, FormattedOutput{Raw: out, Formatted: out, TemplateApplied: false}, ApplyOutputTemplate(out, ""))
		}
	})

	t.Run("whitespace template is applied", func(t *testing.T) {
		got := ApplyOutputTemplate("msg", "\n")
		assert.True(t, got.TemplateApplied)
		assert.Contains(t, got.Formatted, "msg")
	})

	t.Run("every placeholder substituted", func(t *testing.T) {
		got := ApplyOutputTemplate("msg", "A:{{OUTPUT}}|B:{{OUTPUT}}")
		assert.Equal(t, "A:msg|B:msg", got.Formatted)
		assert.True(t, got.TemplateApplied)
		assert.Equal(t, "msg", got.Raw)
	})

	t.Run("no placeholder appends", func(t *testing.T) {
		got := ApplyOutputTemplate("result text", "## Summary\n")
		assert.Equal(t, "## Summary\n\nresult text", got.Formatted)
		assert.True(t, got.TemplateApplied)
		assert.True(t, strings.Index(got.Formatted, "## Summary") < strings.Index(got.Formatted, "result text"))
	})
}

func TestApplyOutputTemplateWithMarkers(t *testing.T) {
	got := ApplyOutputTemplateWithMarkers("line one\nline two", "Result:\n{{OUTPUT}}\nEnd")
	assert.True(t, got.TemplateApplied)
	assert.Equal(t, "Result:\n"+MarkerOutputStart+"\nline one\nline two\n"+MarkerOutputEnd+"\nEnd", got.Formatted)

	raw, err := ExtractOutput(got.Formatted)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", raw)

	twice := ApplyOutputTemplateWithMarkers("x", "{{OUTPUT}} and {{OUTPUT}}")
	raw, err = ExtractOutput(twice.Formatted)
	require.NoError(t, err)
	assert.Equal(t, "x", raw)

	noTemplate := ApplyOutputTemplateWithMarkers("x", "")
	assert.False(t, noTemplate.TemplateApplied)
	assert.Equal(t, "x", noTemplate.Formatted)

	_, err = ExtractOutput("no markers")
	assert.True(t, errors.Is(err, ErrMalformedMarkers))
	_, err = ExtractOutput(MarkerOutputEnd + "\nx\n" + MarkerOutputStart)
	assert.True(t, errors.Is(err, ErrMalformedMarkers))
}
