// Package secrets detects and redacts credentials in agent output before it
// is persisted or returned to clients. Findings carry rule ids and positions
// but never the matched text.
package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// Finding is one detected secret.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	Line        int    `json:"line"`
}

// Result is the outcome of a scrub.
type Result struct {
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// HasFindings returns true if any secrets were found.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the matched rule ids in sorted order.
func (r Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Scrubber detects and redacts secrets. It is immutable after New and safe
// for concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []*compiledRule
	allow     []*regexp.Regexp
}

// New creates a Scrubber. A nil cfg selects DefaultConfig().
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	if !cfg.Enabled {
		return s, nil
	}

	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	s.rules, s.allow = rules, allow
	return s, nil
}

// Enabled reports whether scrubbing is active. A nil Scrubber is disabled.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub redacts secrets from content.
func (s *Scrubber) Scrub(content string) Result {
	res := s.Check(content)
	if !res.HasFindings() {
		return res
	}

	spans := make([][2]int, 0, len(res.Findings))
	for _, f := range res.Findings {
		spans = append(spans, [2]int{f.StartIndex, f.EndIndex})
	}
	spans = mergeSpans(spans)

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, sp := range spans {
		b.WriteString(content[last:sp[0]])
		b.WriteString(s.redaction)
		last = sp[1]
	}
	b.WriteString(content[last:])
	res.Scrubbed = b.String()
	return res
}

// Check detects secrets without redacting; Scrubbed is content unchanged.
func (s *Scrubber) Check(content string) Result {
	res := Result{Scrubbed: content}
	if !s.Enabled() {
		return res
	}

	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				StartIndex:  m[0],
				EndIndex:    m[1],
				Line:        strings.Count(content[:m[0]], "\n") + 1,
			})
			if res.ByRule == nil {
				res.ByRule = make(map[string]int)
			}
			res.ByRule[rule.ID]++
		}
	}

	sort.SliceStable(res.Findings, func(i, j int) bool {
		return res.Findings[i].StartIndex < res.Findings[j].StartIndex
	})
	return res
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeSpans sorts spans by start and merges overlapping or adjacent ones.
func mergeSpans(spans [][2]int) [][2]int {
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp[0] <= last[1] {
			if sp[1] > last[1] {
				last[1] = sp[1]
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}
