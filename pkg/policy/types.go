package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError rejects the configuration.
	SeverityError Severity = "error"

	// SeverityCritical rejects the configuration.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of severity s reject a configuration.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a named Rego module. Its deny rule yields the violations.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" validate:"required"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the policy module source.
	Rego string `json:"rego" validate:"required"`

	// Severity is the default severity of violations.
	Severity Severity `json:"severity" validate:"omitempty,oneof=info warning error critical"`

	// Enabled indicates if the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was read from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one finding of a policy.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Path is the dotted path of the offending declaration, if any.
	Path string `json:"path,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Line is the source line of the offending declaration, if known.
	Line int `json:"line,omitempty"`
}

// Result is the outcome of evaluating all enabled policies against one
// configuration.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of evaluated policies.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Findings returns violations followed by warnings.
func (r *Result) Findings() []Violation {
	out := make([]Violation, 0, len(r.Violations)+len(r.Warnings))
	out = append(out, r.Violations...)
	return append(out, r.Warnings...)
}

// Declaration is the flattened view of one configuration entry handed to
// policies as input.declarations.
type Declaration struct {
	Path       string      `json:"path"`
	Identifier string      `json:"identifier"`
	Type       string      `json:"type"`
	BaseType   string      `json:"base_type"`
	Kind       string      `json:"kind"`
	Value      interface{} `json:"value,omitempty"`
	Line       int         `json:"line"`
}

// Input is the document policies are evaluated against.
type Input struct {
	// File is the configuration file, empty for string loads.
	File string `json:"file"`

	// Config is the configuration tree as plain data.
	Config map[string]interface{} `json:"config"`

	// Declarations lists every declaration of the tree, depth first.
	Declarations []Declaration `json:"declarations"`
}
