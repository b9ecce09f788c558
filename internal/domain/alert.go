package domain

import "time"

// AlertRule is an operator-defined predicate over branch performance
// metrics, written as a boolean CEL expression.
type AlertRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over branch metric variables,
	// e.g. `score < 40.0 && loans_processed > 10`.
	Expression string `json:"expression"`

	// Severity: "info", "warning", or "critical"
	Severity string `json:"severity"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertEvent records one rule firing for one branch.
type AlertEvent struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"ruleId"`
	RuleName  string    `json:"ruleName"`
	Branch    string    `json:"branch"`
	Severity  string    `json:"severity"`
	Score     float64   `json:"score"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
