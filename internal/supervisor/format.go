package supervisor

import (
	"fmt"
	"strings"
)

// OutputPlaceholder marks where raw output goes in an output template.
const OutputPlaceholder = "{{OUTPUT}}"

// Output sentinels used by ApplyOutputTemplateWithMarkers.
const (
	MarkerOutputStart = "<!-- AGENTQ:OUTPUT:START -->"
	MarkerOutputEnd   = "<!-- AGENTQ:OUTPUT:END -->"
)

// FormattedOutput is the result of applying an output template. Raw is the
// agent output, unchanged.
type FormattedOutput struct {
	Raw             string `json:"raw"`
	Formatted       string `json:"formatted"`
	TemplateApplied bool   `json:"templateApplied"`
}

// ApplyOutputTemplate renders raw through template.
//
// An empty template leaves raw untouched. Otherwise every OutputPlaceholder
// is replaced by raw; a template without a placeholder is followed by raw.
func ApplyOutputTemplate(raw, template string) FormattedOutput {
	return applyTemplate(raw, raw, template)
}

// ApplyOutputTemplateWithMarkers is ApplyOutputTemplate with the
// substituted output wrapped in output markers. ExtractOutput recovers it.
func ApplyOutputTemplateWithMarkers(raw, template string) FormattedOutput {
	wrapped := MarkerOutputStart + "\n" + raw + "\n" + MarkerOutputEnd
	return applyTemplate(raw, wrapped, template)
}

func applyTemplate(raw, substitute, template string) FormattedOutput {
	if template == "" {
		return FormattedOutput{Raw: raw, Formatted: raw}
	}

	var formatted string
	if strings.Contains(template, OutputPlaceholder) {
		formatted = strings.ReplaceAll(template, OutputPlaceholder, substitute)
	} else {
		formatted = strings.TrimRight(template, "\n") + sectionSeparator + substitute
	}
	return FormattedOutput{Raw: raw, Formatted: formatted, TemplateApplied: true}
}

var outputMarkers = []string{MarkerOutputStart, MarkerOutputEnd}

// ExtractOutput returns the raw output from the first marked block in a
// string produced by ApplyOutputTemplateWithMarkers.
func ExtractOutput(formatted string) (string, error) {
	toks := tokenize(formatted, outputMarkers)
	if len(toks) < 2 || len(toks)%2 != 0 {
		return "", fmt.Errorf("%w: found %d output markers", ErrMalformedMarkers, len(toks))
	}
	for i := 0; i < len(toks); i += 2 {
		if toks[i].marker != MarkerOutputStart || toks[i+1].marker != MarkerOutputEnd {
			return "", fmt.Errorf("%w: unpaired output markers", ErrMalformedMarkers)
		}
	}
	return sectionContent(formatted, toks[0], toks[1])
}
