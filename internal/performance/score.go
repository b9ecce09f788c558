// Package performance joins loan, collection, and user data by branch
// and ranks branches by a weighted performance score.
package performance

import (
	"github.com/openmfb/kestrel/internal/domain"
)

// Score weights. Disbursement volume dominates, repayment second,
// default rate subtracts through its complement.
const (
	weightDisbursement = 0.30
	weightActiveLoans  = 0.20
	weightRepayment    = 0.25
	weightProductivity = 0.15
	weightDefaults     = 0.10
)

// Normalization targets: a branch at or above these is at full score
// for that component.
const (
	targetDisbursed       = 10_000_000 // total amount disbursed
	targetActiveLoans     = 200
	targetLoansPerOfficer = 50
)

// Score computes the 0-100 weighted performance score for a branch.
// Branches with no disbursement, no active loans, and no processed
// loans score exactly 0: the default-penalty complement alone must not
// produce a non-zero score. NaN results are coerced to 0.
func Score(m domain.BranchPerformanceMetrics) float64 {
	if m.TotalAmountDisbursed == 0 && m.ActiveLoans == 0 && m.TotalLoansProcessed == 0 {
		return 0
	}

	disbursementScore := min(m.TotalAmountDisbursed/targetDisbursed*100, 100)
	activeLoanScore := min(float64(m.ActiveLoans)/targetActiveLoans*100, 100)
	repaymentScore := m.RepaymentRate

	var defaultPenalty float64
	if m.TotalLoansProcessed > 0 {
		defaultPenalty = min(float64(m.DefaultedLoans)/float64(m.TotalLoansProcessed)*100, 100)
	}

	var productivityScore float64
	if m.TotalCreditOfficers > 0 {
		productivityScore = min(float64(m.TotalLoansProcessed)/float64(m.TotalCreditOfficers)/targetLoansPerOfficer*100, 100)
	}

	score := disbursementScore*weightDisbursement +
		activeLoanScore*weightActiveLoans +
		repaymentScore*weightRepayment +
		productivityScore*weightProductivity +
		(100-defaultPenalty)*weightDefaults

	return domain.Round2(score)
}
