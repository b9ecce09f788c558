package domain

import "encoding/json"

// Loan statuses as reported by the core-banking API.
const (
	LoanStatusActive    = "active"
	LoanStatusDisbursed = "disbursed"
	LoanStatusCompleted = "completed"
	LoanStatusDefaulted = "defaulted"
	LoanStatusOverdue   = "overdue"
)

// Loan is a loan record as returned by the backend. Amount may arrive as
// a number or a currency-formatted string ("₦100,000.00"), so it is kept
// raw and parsed where summed.
type Loan struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Amount     json.RawMessage `json:"amount"`
	Status     string          `json:"status"`
	Branch     string          `json:"branch,omitempty"`
	OfficerID  string          `json:"officerId,omitempty"`
	CreatedAt  string          `json:"createdAt,omitempty"`
}

// IsActive reports whether the loan counts toward active-loan KPIs.
func (l Loan) IsActive() bool {
	return l.Status == LoanStatusActive || l.Status == LoanStatusDisbursed
}

// IsMissed reports whether the loan counts toward missed/defaulted KPIs.
func (l Loan) IsMissed() bool {
	return l.Status == LoanStatusDefaulted || l.Status == LoanStatusOverdue
}
