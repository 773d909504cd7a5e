// Package tasktype classifies natural-language task prompts into the task
// categories that decide how ambiguous or blocked agent results are handled.
package tasktype

import "fmt"

// Type is the category assigned to a task at creation time.
type Type string

const (
	// Implementation tasks may modify files. Ambiguous prompts default here.
	Implementation Type = "IMPLEMENTATION"

	// ReadInfo tasks inspect, verify or analyze without modifying files.
	ReadInfo Type = "READ_INFO"

	// Report tasks generate summaries or reports.
	Report Type = "REPORT"
)

// All returns every task type.
func All() []Type {
	return []Type{Implementation, ReadInfo, Report}
}

// IsValid reports whether t is a known task type.
func (t Type) IsValid() bool {
	switch t {
	case Implementation, ReadInfo, Report:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// Parse converts s into a Type.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown task type %q", s)
	}
	return t, nil
}
