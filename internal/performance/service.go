package performance

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/openmfb/kestrel/internal/backend"
	"github.com/openmfb/kestrel/internal/directory"
	"github.com/openmfb/kestrel/internal/domain"
)

// loanFetchLimit caps each loan list fetch. Branch ranking reads deeper
// into history than the dashboard aggregate does.
const loanFetchLimit = 2000

// rankSize is how many branches appear in each of the best and worst
// lists.
const rankSize = 3

// DataSource supplies the raw lists the ranking is computed from.
// *backend.Client satisfies it.
type DataSource interface {
	Loans(ctx context.Context, endpoint backend.LoanEndpoint, params domain.DashboardParams, page, limit int) ([]domain.Loan, error)
	Branches(ctx context.Context) ([]string, error)
	Staff(ctx context.Context) ([]domain.User, error)
}

// Service computes per-branch metrics and ranks branches by score.
type Service struct {
	source DataSource
}

// NewService creates a branch performance service.
func NewService(source DataSource) *Service {
	return &Service{source: source}
}

// branchData is the result of the parallel source fetch. Every field is
// present even when its fetch failed; failed sources degrade to empty.
type branchData struct {
	branches      []string
	staff         []domain.User
	allLoans      []domain.Loan
	disbursed     []domain.Loan
	recollections []domain.Loan
	missed        []domain.Loan
}

// Calculate computes metrics for every branch and ranks them. It never
// returns an error: an unavailable source contributes empty data and the
// affected metrics read as zero.
func (s *Service) Calculate(ctx context.Context, params domain.DashboardParams) *domain.BranchPerformance {
	data := s.fetch(ctx, params)

	byCustomer := customerBranches(data.staff)

	metrics := make([]domain.BranchPerformanceMetrics, 0, len(data.branches))
	for _, branch := range data.branches {
		metrics = append(metrics, s.branchMetrics(branch, data, byCustomer))
	}

	return Rank(metrics)
}

// fetch pulls all six sources concurrently. Individual failures are
// logged and replaced with empty slices so one outage degrades, rather
// than removes, the ranking.
func (s *Service) fetch(ctx context.Context, params domain.DashboardParams) *branchData {
	data := &branchData{}

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				slog.Warn("branch performance source unavailable", "source", name, "error", err)
			}
		}()
	}

	run("branches", func() error {
		branches, err := s.source.Branches(ctx)
		data.branches = branches
		return err
	})
	run("staff", func() error {
		staff, err := s.source.Staff(ctx)
		data.staff = staff
		return err
	})

	loans := func(name string, endpoint backend.LoanEndpoint, dst *[]domain.Loan) {
		run(name, func() error {
			list, err := s.source.Loans(ctx, endpoint, params, 0, loanFetchLimit)
			*dst = list
			return err
		})
	}
	loans("loans_all", backend.LoansAll, &data.allLoans)
	loans("loans_disbursed", backend.LoansDisbursed, &data.disbursed)
	loans("loans_recollections", backend.LoansRecollections, &data.recollections)
	loans("loans_missed", backend.LoansMissed, &data.missed)

	wg.Wait()
	return data
}

// branchMetrics aggregates one branch's slice of every source list.
func (s *Service) branchMetrics(branch string, data *branchData, byCustomer map[string]string) domain.BranchPerformanceMetrics {
	m := domain.BranchPerformanceMetrics{BranchName: branch}

	for _, loan := range data.allLoans {
		if !loanInBranch(loan, branch, byCustomer) {
			continue
		}
		m.TotalLoansProcessed++
		if loan.IsActive() {
			m.ActiveLoans++
		}
		if loan.Status == domain.LoanStatusCompleted {
			m.CompletedLoans++
		}
	}

	for _, loan := range data.disbursed {
		if !loanInBranch(loan, branch, byCustomer) {
			continue
		}
		amount, err := backend.ParseAmount(loan.Amount)
		if err != nil {
			slog.Warn("skipping unparseable loan amount", "loan_id", loan.ID, "branch", branch, "error", err)
			continue
		}
		m.TotalAmountDisbursed += amount
	}

	var recollections int
	for _, loan := range data.recollections {
		if loanInBranch(loan, branch, byCustomer) {
			recollections++
		}
	}
	for _, loan := range data.missed {
		if loanInBranch(loan, branch, byCustomer) {
			m.DefaultedLoans++
		}
	}

	for _, user := range data.staff {
		if !strings.EqualFold(user.Branch, branch) {
			continue
		}
		switch {
		case directory.MatchRole(directory.RoleCreditOfficer, user.Role):
			m.TotalCreditOfficers++
		case directory.MatchRole(directory.RoleCustomer, user.Role):
			m.TotalCustomers++
		}
	}

	m.RepaymentRate = repaymentRate(m.CompletedLoans, recollections, m.ActiveLoans, m.DefaultedLoans)
	m.PerformanceScore = Score(m)
	return m
}

// repaymentRate is repaid loans over the loans that could have been
// repaid, as a percentage. An empty denominator yields 0.
func repaymentRate(completed, recollections, active, defaulted int) float64 {
	denominator := active + completed + defaulted
	if denominator == 0 {
		return 0
	}
	return domain.Round2(float64(completed+recollections) / float64(denominator) * 100)
}

// loanInBranch attributes a loan to a branch, preferring the loan's own
// branch field and falling back to its customer's branch. Comparison is
// case-insensitive.
func loanInBranch(loan domain.Loan, branch string, byCustomer map[string]string) bool {
	if loan.Branch != "" {
		return strings.EqualFold(loan.Branch, branch)
	}
	if owner, ok := byCustomer[loan.CustomerID]; ok {
		return strings.EqualFold(owner, branch)
	}
	return false
}

// customerBranches builds the customerID to branch lookup used for
// loans that carry no branch of their own.
func customerBranches(users []domain.User) map[string]string {
	lookup := make(map[string]string, len(users))
	for _, u := range users {
		if u.ID != "" && u.Branch != "" {
			lookup[u.ID] = u.Branch
		}
	}
	return lookup
}

// Rank sorts branches by score descending and slices out the top and
// bottom performers. The sort is stable so equal scores keep source
// order. Worst is ordered worst-first.
func Rank(metrics []domain.BranchPerformanceMetrics) *domain.BranchPerformance {
	ranked := make([]domain.BranchPerformanceMetrics, len(metrics))
	copy(ranked, metrics)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PerformanceScore > ranked[j].PerformanceScore
	})

	n := min(rankSize, len(ranked))
	best := make([]domain.BranchPerformanceMetrics, n)
	copy(best, ranked[:n])

	worst := make([]domain.BranchPerformanceMetrics, 0, n)
	for i := len(ranked) - 1; i >= len(ranked)-n; i-- {
		worst = append(worst, ranked[i])
	}

	return &domain.BranchPerformance{
		BestPerformingBranches:  best,
		WorstPerformingBranches: worst,
		AllBranchMetrics:        ranked,
	}
}
