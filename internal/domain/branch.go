package domain

// BranchPerformanceMetrics is a per-branch aggregate computed fresh on
// each call from raw loan and user lists.
type BranchPerformanceMetrics struct {
	BranchName           string  `json:"branchName"`
	TotalLoansProcessed  int     `json:"totalLoansProcessed"`
	TotalAmountDisbursed float64 `json:"totalAmountDisbursed"`
	ActiveLoans          int     `json:"activeLoans"`
	CompletedLoans       int     `json:"completedLoans"`
	DefaultedLoans       int     `json:"defaultedLoans"`
	TotalCustomers       int     `json:"totalCustomers"`
	TotalCreditOfficers  int     `json:"totalCreditOfficers"`
	RepaymentRate        float64 `json:"repaymentRate"`
	PerformanceScore     float64 `json:"performanceScore"`
}

// BranchPerformance holds the ranked branch result set.
type BranchPerformance struct {
	BestPerformingBranches  []BranchPerformanceMetrics `json:"bestPerformingBranches"`
	WorstPerformingBranches []BranchPerformanceMetrics `json:"worstPerformingBranches"`
	AllBranchMetrics        []BranchPerformanceMetrics `json:"allBranchMetrics"`
}
