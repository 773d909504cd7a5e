package supervisor

import (
	"fmt"
	"sort"
	"time"
)

// Hard defaults used when neither the global nor the project config sets a
// value.
const (
	DefaultEnabled    = true
	DefaultTimeoutMS  = int64(600000)
	DefaultMaxRetries = 3
)

// Timeout profiles selectable per project.
var TimeoutProfiles = map[string]int64{
	"short":    120000,
	"standard": 600000,
	"long":     1800000,
	"extended": 3600000,
}

// GlobalRules are the global supervisor_rules. Nil fields are unset.
type GlobalRules struct {
	Enabled           *bool    `koanf:"enabled" toml:"enabled"`
	TimeoutDefaultMS  *int64   `koanf:"timeout_default_ms" toml:"timeout_default_ms"`
	MaxRetries        *int     `koanf:"max_retries" toml:"max_retries"`
	RequiredSections  []string `koanf:"required_sections" toml:"required_sections"`
	ForbiddenPatterns []string `koanf:"forbidden_patterns" toml:"forbidden_patterns"`
	MaxOutputChars    *int     `koanf:"max_output_chars" toml:"max_output_chars"`
}

// GlobalConfig applies to every project under a root.
type GlobalConfig struct {
	InputTemplate   string      `koanf:"input_template" toml:"input_template"`
	OutputTemplate  string      `koanf:"output_template" toml:"output_template"`
	SupervisorRules GlobalRules `koanf:"supervisor_rules" toml:"supervisor_rules"`
}

// ProjectRules are a project's supervisor_rules. Nil fields fall back to
// the global config.
type ProjectRules struct {
	Enabled          *bool    `koanf:"enabled" toml:"enabled"`
	TimeoutProfile   string   `koanf:"timeout_profile" toml:"timeout_profile"`
	TimeoutMS        *int64   `koanf:"timeout_ms" toml:"timeout_ms"`
	MaxRetries       *int     `koanf:"max_retries" toml:"max_retries"`
	RequiredSections []string `koanf:"required_sections" toml:"required_sections"`
}

// ProjectConfig overrides the global config for one project.
//
// InputTemplate is composed after the global input template rather than
// replacing it. OutputTemplate, when set, replaces the global one.
type ProjectConfig struct {
	InputTemplate   string       `koanf:"input_template" toml:"input_template"`
	OutputTemplate  *string      `koanf:"output_template" toml:"output_template"`
	SupervisorRules ProjectRules `koanf:"supervisor_rules" toml:"supervisor_rules"`
}

// DefaultGlobalConfig returns the global config used when no file exists.
func DefaultGlobalConfig() GlobalConfig {
	enabled := DefaultEnabled
	timeout := DefaultTimeoutMS
	retries := DefaultMaxRetries
	return GlobalConfig{
		SupervisorRules: GlobalRules{
			Enabled:          &enabled,
			TimeoutDefaultMS: &timeout,
			MaxRetries:       &retries,
		},
	}
}

// DefaultProjectConfig returns the project config used when no file exists.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{}
}

// Validate checks value ranges and that forbidden patterns compile.
func (c GlobalConfig) Validate() error {
	r := c.SupervisorRules
	if r.TimeoutDefaultMS != nil && *r.TimeoutDefaultMS <= 0 {
		return fmt.Errorf("supervisor_rules.timeout_default_ms must be positive, got %d", *r.TimeoutDefaultMS)
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return fmt.Errorf("supervisor_rules.max_retries must not be negative, got %d", *r.MaxRetries)
	}
	if r.MaxOutputChars != nil && *r.MaxOutputChars < 0 {
		return fmt.Errorf("supervisor_rules.max_output_chars must not be negative, got %d", *r.MaxOutputChars)
	}
	if _, err := NewForbiddenPatternsRule(r.ForbiddenPatterns); err != nil {
		return fmt.Errorf("supervisor_rules.forbidden_patterns: %w", err)
	}
	return nil
}

// Validate checks value ranges and the timeout profile name.
func (c ProjectConfig) Validate() error {
	r := c.SupervisorRules
	if r.TimeoutProfile != "" {
		if _, ok := TimeoutProfiles[r.TimeoutProfile]; !ok {
			return fmt.Errorf("supervisor_rules.timeout_profile %q is not one of %v", r.TimeoutProfile, profileNames())
		}
	}
	if r.TimeoutMS != nil && *r.TimeoutMS <= 0 {
		return fmt.Errorf("supervisor_rules.timeout_ms must be positive, got %d", *r.TimeoutMS)
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return fmt.Errorf("supervisor_rules.max_retries must not be negative, got %d", *r.MaxRetries)
	}
	return nil
}

func profileNames() []string {
	names := make([]string, 0, len(TimeoutProfiles))
	for n := range TimeoutProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EffectiveConfig is the merged configuration for one project.
type EffectiveConfig struct {
	ProjectID         string   `json:"projectId"`
	SupervisorEnabled bool     `json:"supervisorEnabled"`
	TimeoutMS         int64    `json:"timeoutMs"`
	MaxRetries        int      `json:"maxRetries"`
	TimeoutProfile    string   `json:"timeoutProfile,omitempty"`
	GlobalTemplate    string   `json:"globalTemplate"`
	ProjectTemplate   string   `json:"projectTemplate"`
	OutputTemplate    string   `json:"outputTemplate"`
	RequiredSections  []string `json:"requiredSections,omitempty"`
	ForbiddenPatterns []string `json:"forbiddenPatterns,omitempty"`
	MaxOutputChars    int      `json:"maxOutputChars,omitempty"`
}

// Timeout returns TimeoutMS as a duration.
func (e EffectiveConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// OutputRules builds the validation rules for this config.
func (e EffectiveConfig) OutputRules() ([]OutputRule, error) {
	rules := DefaultRules()
	if len(e.RequiredSections) > 0 {
		rules = append(rules, RequiredSectionsRule{Sections: e.RequiredSections})
	}
	if len(e.ForbiddenPatterns) > 0 {
		fp, err := NewForbiddenPatternsRule(e.ForbiddenPatterns)
		if err != nil {
			return nil, err
		}
		rules = append(rules, fp)
	}
	if e.MaxOutputChars > 0 {
		rules = append(rules, MaxLengthRule{Max: e.MaxOutputChars})
	}
	return rules, nil
}

// Merge resolves project over global over the hard defaults.
//
// The timeout is taken from, in order: the project's timeout_ms, its
// timeout_profile, the global timeout_default_ms, DefaultTimeoutMS.
// Required sections from both layers apply.
func Merge(projectID string, global GlobalConfig, project ProjectConfig) EffectiveConfig {
	gr, pr := global.SupervisorRules, project.SupervisorRules

	eff := EffectiveConfig{
		ProjectID:         projectID,
		SupervisorEnabled: DefaultEnabled,
		TimeoutMS:         DefaultTimeoutMS,
		MaxRetries:        DefaultMaxRetries,
		GlobalTemplate:    global.InputTemplate,
		ProjectTemplate:   project.InputTemplate,
		OutputTemplate:    global.OutputTemplate,
		ForbiddenPatterns: append([]string(nil), gr.ForbiddenPatterns...),
	}

	if gr.Enabled != nil {
		eff.SupervisorEnabled = *gr.Enabled
	}
	if pr.Enabled != nil {
		eff.SupervisorEnabled = *pr.Enabled
	}

	if gr.TimeoutDefaultMS != nil {
		eff.TimeoutMS = *gr.TimeoutDefaultMS
	}
	if ms, ok := TimeoutProfiles[pr.TimeoutProfile]; ok {
		eff.TimeoutMS = ms
		eff.TimeoutProfile = pr.TimeoutProfile
	}
	if pr.TimeoutMS != nil {
		eff.TimeoutMS = *pr.TimeoutMS
	}

	if gr.MaxRetries != nil {
		eff.MaxRetries = *gr.MaxRetries
	}
	if pr.MaxRetries != nil {
		eff.MaxRetries = *pr.MaxRetries
	}

	if project.OutputTemplate != nil {
		eff.OutputTemplate = *project.OutputTemplate
	}
	if gr.MaxOutputChars != nil {
		eff.MaxOutputChars = *gr.MaxOutputChars
	}

	eff.RequiredSections = mergeSections(gr.RequiredSections, pr.RequiredSections)
	return eff
}

func mergeSections(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
