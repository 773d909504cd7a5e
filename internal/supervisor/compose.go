package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Section sentinels used by MergePromptWithMarkers. Each section is written
// as start marker, newline, content, newline, end marker.
const (
	MarkerGlobalStart  = "<!-- AGENTQ:GLOBAL:START -->"
	MarkerGlobalEnd    = "<!-- AGENTQ:GLOBAL:END -->"
	MarkerProjectStart = "<!-- AGENTQ:PROJECT:START -->"
	MarkerProjectEnd   = "<!-- AGENTQ:PROJECT:END -->"
	MarkerUserStart    = "<!-- AGENTQ:USER:START -->"
	MarkerUserEnd      = "<!-- AGENTQ:USER:END -->"
)

// sectionSeparator joins composed sections.
const sectionSeparator = "\n\n"

// ErrMalformedMarkers is returned when a marker-wrapped string cannot be
// parsed back into its sections.
var ErrMalformedMarkers = errors.New("malformed supervisor markers")

// ComposedPrompt is the result of prompt composition. UserPrompt is always
// the caller's prompt, unchanged.
type ComposedPrompt struct {
	GlobalTemplate  string `json:"globalTemplate"`
	ProjectTemplate string `json:"projectTemplate"`
	UserPrompt      string `json:"userPrompt"`
	Composed        string `json:"composed"`
}

// Components are the sections recovered by ExtractComponents.
type Components struct {
	GlobalTemplate  string `json:"globalTemplate"`
	ProjectTemplate string `json:"projectTemplate"`
	UserPrompt      string `json:"userPrompt"`
}

// MergePrompt composes GLOBAL, PROJECT and USER in that order. Empty
// templates contribute nothing; the user prompt is included verbatim.
func MergePrompt(globalTemplate, projectTemplate, userPrompt string) ComposedPrompt {
	parts := make([]string, 0, 3)
	if globalTemplate != "" {
		parts = append(parts, globalTemplate)
	}
	if projectTemplate != "" {
		parts = append(parts, projectTemplate)
	}
	if userPrompt != "" {
		parts = append(parts, userPrompt)
	}

	return ComposedPrompt{
		GlobalTemplate:  globalTemplate,
		ProjectTemplate: projectTemplate,
		UserPrompt:      userPrompt,
		Composed:        strings.Join(parts, sectionSeparator),
	}
}

// MergePromptWithMarkers composes like MergePrompt but always emits all
// three sections, each wrapped in its start and end markers, so that
// ExtractComponents can recover them exactly.
func MergePromptWithMarkers(globalTemplate, projectTemplate, userPrompt string) ComposedPrompt {
	var b strings.Builder
	writeSection(&b, MarkerGlobalStart, globalTemplate, MarkerGlobalEnd)
	b.WriteString(sectionSeparator)
	writeSection(&b, MarkerProjectStart, projectTemplate, MarkerProjectEnd)
	b.WriteString(sectionSeparator)
	writeSection(&b, MarkerUserStart, userPrompt, MarkerUserEnd)

	return ComposedPrompt{
		GlobalTemplate:  globalTemplate,
		ProjectTemplate: projectTemplate,
		UserPrompt:      userPrompt,
		Composed:        b.String(),
	}
}

func writeSection(b *strings.Builder, start, content, end string) {
	b.WriteString(start)
	b.WriteByte('\n')
	b.WriteString(content)
	b.WriteByte('\n')
	b.WriteString(end)
}

// token is one marker occurrence in a composed string.
type token struct {
	marker string
	start  int // offset of the marker
	end    int // offset just past the marker
}

// tokenize returns every occurrence of markers in s, in order.
func tokenize(s string, markers []string) []token {
	var toks []token
	pos := 0
	for pos < len(s) {
		best, bestMarker := -1, ""
		for _, m := range markers {
			if i := strings.Index(s[pos:], m); i >= 0 && (best < 0 || i < best) {
				best, bestMarker = i, m
			}
		}
		if best < 0 {
			break
		}
		at := pos + best
		toks = append(toks, token{marker: bestMarker, start: at, end: at + len(bestMarker)})
		pos = at + len(bestMarker)
	}
	return toks
}

var promptMarkers = []string{
	MarkerGlobalStart, MarkerGlobalEnd,
	MarkerProjectStart, MarkerProjectEnd,
	MarkerUserStart, MarkerUserEnd,
}

// ExtractComponents parses a string produced by MergePromptWithMarkers.
//
// The six markers must appear exactly once each, in order, with only
// whitespace between sections. Anything else fails with ErrMalformedMarkers
// and empty Components. Content that itself contains a marker string does
// not round-trip.
func ExtractComponents(composed string) (Components, error) {
	toks := tokenize(composed, promptMarkers)
	if len(toks) != len(promptMarkers) {
		return Components{}, fmt.Errorf("%w: found %d markers, want %d", ErrMalformedMarkers, len(toks), len(promptMarkers))
	}
	for i, tok := range toks {
		if tok.marker != promptMarkers[i] {
			return Components{}, fmt.Errorf("%w: marker %d is %q, want %q", ErrMalformedMarkers, i, tok.marker, promptMarkers[i])
		}
	}

	// Text outside the sections may only be whitespace.
	gaps := []string{
		composed[:toks[0].start],
		composed[toks[1].end:toks[2].start],
		composed[toks[3].end:toks[4].start],
		composed[toks[5].end:],
	}
	for _, g := range gaps {
		if strings.TrimSpace(g) != "" {
			return Components{}, fmt.Errorf("%w: text outside marked sections", ErrMalformedMarkers)
		}
	}

	var sections [3]string
	for i := range sections {
		content, err := sectionContent(composed, toks[2*i], toks[2*i+1])
		if err != nil {
			return Components{}, err
		}
		sections[i] = content
	}

	return Components{
		GlobalTemplate:  sections[0],
		ProjectTemplate: sections[1],
		UserPrompt:      sections[2],
	}, nil
}

// sectionContent returns the text between start and end, which must be
// framed by exactly one newline on each side.
func sectionContent(s string, start, end token) (string, error) {
	inner := s[start.end:end.start]
	if len(inner) < 2 || inner[0] != '\n' || inner[len(inner)-1] != '\n' {
		return "", fmt.Errorf("%w: section %s is not newline framed", ErrMalformedMarkers, start.marker)
	}
	return inner[1 : len(inner)-1], nil
}
