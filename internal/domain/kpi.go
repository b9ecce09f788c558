package domain

import (
	"fmt"
	"math"
)

// Metric names tracked by the dashboard. Growth is computed per metric.
const (
	MetricBranches       = "branches"
	MetricCreditOfficers = "creditOfficers"
	MetricCustomers      = "customers"
	MetricLoansProcessed = "loansProcessed"
	MetricLoanAmounts    = "loanAmounts"
	MetricActiveLoans    = "activeLoans"
	MetricMissedPayments = "missedPayments"
)

// Metrics lists all tracked metric names in display order.
var Metrics = []string{
	MetricBranches,
	MetricCreditOfficers,
	MetricCustomers,
	MetricLoansProcessed,
	MetricLoanAmounts,
	MetricActiveLoans,
	MetricMissedPayments,
}

// StatisticValue is one dashboard KPI: a value plus its period-over-period
// change. Derived, never persisted directly.
type StatisticValue struct {
	Value       float64 `json:"value"`
	Change      float64 `json:"change"` // percent
	ChangeLabel string  `json:"changeLabel"`
	IsCurrency  bool    `json:"isCurrency"`
}

// NewStatisticValue builds a StatisticValue with its change label.
func NewStatisticValue(value, change float64, isCurrency bool) StatisticValue {
	return StatisticValue{
		Value:       value,
		Change:      change,
		ChangeLabel: changeLabel(change),
		IsCurrency:  isCurrency,
	}
}

// changeLabel formats the period-over-period change. The sign is inherent
// in the number for negative changes.
func changeLabel(change float64) string {
	switch {
	case change > 0:
		return fmt.Sprintf("+%.2f%% this month", change)
	case change < 0:
		return fmt.Sprintf("%.2f%% this month", change)
	default:
		return "+0% this month"
	}
}

// DashboardKPIs is the consistent KPI snapshot returned to the UI.
type DashboardKPIs struct {
	Branches       StatisticValue `json:"branches"`
	CreditOfficers StatisticValue `json:"creditOfficers"`
	Customers      StatisticValue `json:"customers"`
	LoansProcessed StatisticValue `json:"loansProcessed"`
	LoanAmounts    StatisticValue `json:"loanAmounts"`
	ActiveLoans    StatisticValue `json:"activeLoans"`
	MissedPayments StatisticValue `json:"missedPayments"`

	BestPerformingBranches  []BranchPerformanceMetrics `json:"bestPerformingBranches"`
	WorstPerformingBranches []BranchPerformanceMetrics `json:"worstPerformingBranches"`

	ComputedAt string `json:"computedAt"`
}

// KPIResponse is the raw payload of the backend's /dashboard/kpi endpoint.
// The backend may supply precomputed growth for any metric; values it
// omits fall back to locally calculated growth.
type KPIResponse struct {
	TotalBranches        float64 `json:"totalBranches"`
	TotalCreditOfficers  float64 `json:"totalCreditOfficers"`
	TotalCustomers       float64 `json:"totalCustomers"`
	TotalLoansProcessed  float64 `json:"totalLoansProcessed"`
	TotalLoanAmounts     float64 `json:"totalLoanAmounts"`
	TotalActiveLoans     float64 `json:"totalActiveLoans"`
	TotalMissedPayments  float64 `json:"totalMissedPayments"`
	BranchesGrowth       *float64 `json:"branchesGrowth,omitempty"`
	CreditOfficersGrowth *float64 `json:"creditOfficersGrowth,omitempty"`
	CustomersGrowth      *float64 `json:"customersGrowth,omitempty"`
	LoansProcessedGrowth *float64 `json:"loansProcessedGrowth,omitempty"`
	LoanAmountsGrowth    *float64 `json:"loanAmountsGrowth,omitempty"`
	ActiveLoansGrowth    *float64 `json:"activeLoansGrowth,omitempty"`
	MissedPaymentsGrowth *float64 `json:"missedPaymentsGrowth,omitempty"`
}

// Round2 rounds to 2 decimal places, coercing NaN/Inf to 0.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
