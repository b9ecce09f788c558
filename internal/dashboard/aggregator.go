// Package dashboard aggregates backend data into consistent KPI
// snapshots. Counts are derived from the raw lists the dashboard also
// renders, so the headline numbers and the detail views always agree.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openmfb/kestrel/internal/backend"
	"github.com/openmfb/kestrel/internal/cache"
	"github.com/openmfb/kestrel/internal/directory"
	"github.com/openmfb/kestrel/internal/domain"
	"github.com/openmfb/kestrel/internal/growth"
	"github.com/openmfb/kestrel/internal/performance"
)

// loanFetchLimit caps loan list fetches on the hot dashboard path. The
// performance service reads deeper; this path favors latency.
const loanFetchLimit = 500

const snapshotKeyPrefix = "dashboard:kpis:"

var tracer = otel.Tracer("kestrel-dashboard")

// API is the slice of the backend client the aggregator needs.
type API interface {
	KPI(ctx context.Context, params domain.DashboardParams) (*domain.KPIResponse, error)
	Staff(ctx context.Context) ([]domain.User, error)
	Branches(ctx context.Context) ([]string, error)
	Loans(ctx context.Context, endpoint backend.LoanEndpoint, params domain.DashboardParams, page, limit int) ([]domain.Loan, error)
}

// Aggregator computes dashboard KPI snapshots. Every snapshot is cached
// whole under the request's cache key, and each backend source is
// additionally cached under its own sub-key so overlapping requests
// share fetches.
type Aggregator struct {
	api         API
	loader      *cache.Loader
	growth      *growth.Service
	performance *performance.Service
	bus         domain.EventBus
	now         func() time.Time
}

// NewAggregator wires the aggregator. bus may be nil, in which case
// snapshot events are not published.
func NewAggregator(api API, loader *cache.Loader, perf *performance.Service, bus domain.EventBus) *Aggregator {
	a := &Aggregator{
		api:         api,
		loader:      loader,
		performance: perf,
		bus:         bus,
		now:         time.Now,
	}
	// The aggregator is its own historical source: growth re-queries the
	// same endpoints for the prior window, under prior-window cache keys.
	a.growth = growth.NewService(a)
	return a
}

// GetAccurateKPIs returns the KPI snapshot for the given filter, served
// from cache when fresh. Concurrent requests for the same filter share
// one computation.
func (a *Aggregator) GetAccurateKPIs(ctx context.Context, params domain.DashboardParams) (*domain.DashboardKPIs, error) {
	kpis, err := cache.Through(ctx, a.loader, snapshotKeyPrefix+params.CacheKey(), 0,
		func(ctx context.Context) (domain.DashboardKPIs, error) {
			return a.compute(ctx, params)
		})
	if err != nil {
		return nil, err
	}
	return &kpis, nil
}

// GetBranchPerformance returns the ranked branch metrics for the filter.
func (a *Aggregator) GetBranchPerformance(ctx context.Context, params domain.DashboardParams) (*domain.BranchPerformance, error) {
	perf, err := cache.Through(ctx, a.loader, "performance:"+params.CacheKey(), 0,
		func(ctx context.Context) (domain.BranchPerformance, error) {
			return *a.performance.Calculate(ctx, params), nil
		})
	if err != nil {
		return nil, err
	}
	return &perf, nil
}

// ClearCache wipes all cached dashboard data and announces the
// invalidation.
func (a *Aggregator) ClearCache(ctx context.Context) error {
	if err := a.loader.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear dashboard cache: %w", err)
	}
	a.publish(ctx, domain.TopicCacheInvalidated, []byte(`{"scope":"all"}`))
	return nil
}

// sources is one consistent read of every backend list the snapshot is
// built from. A failed sub-fetch leaves its field empty so the snapshot
// degrades per metric instead of aborting.
type sources struct {
	kpi      *domain.KPIResponse
	users    []domain.User
	branches []string
	loans    []domain.Loan
}

// compute builds a snapshot from scratch: parallel source fetches,
// list-derived counts with KPI fallback, growth merge, branch ranking.
// Even with every source down it returns an all-zero snapshot rather
// than an error; the UI renders a reduced view.
func (a *Aggregator) compute(ctx context.Context, params domain.DashboardParams) (domain.DashboardKPIs, error) {
	ctx, span := tracer.Start(ctx, "dashboard.compute")
	span.SetAttributes(attribute.String("cache.key", params.CacheKey()))
	defer span.End()

	src := a.fetchSources(ctx, params)

	current := a.currentValues(src)
	growthByMetric := a.mergeGrowth(ctx, src.kpi, current, params)

	stat := func(metric string, isCurrency bool) domain.StatisticValue {
		return domain.NewStatisticValue(current[metric], growthByMetric[metric], isCurrency)
	}

	kpis := domain.DashboardKPIs{
		Branches:       stat(domain.MetricBranches, false),
		CreditOfficers: stat(domain.MetricCreditOfficers, false),
		Customers:      stat(domain.MetricCustomers, false),
		LoansProcessed: stat(domain.MetricLoansProcessed, false),
		LoanAmounts:    stat(domain.MetricLoanAmounts, true),
		ActiveLoans:    stat(domain.MetricActiveLoans, false),
		MissedPayments: stat(domain.MetricMissedPayments, false),
		ComputedAt:     a.now().UTC().Format(time.RFC3339),
	}

	if perf, err := a.GetBranchPerformance(ctx, params); err == nil {
		kpis.BestPerformingBranches = perf.BestPerformingBranches
		kpis.WorstPerformingBranches = perf.WorstPerformingBranches
	} else {
		slog.Warn("branch performance unavailable for snapshot", "error", err)
	}

	a.publishSnapshot(ctx, params, kpis)
	return kpis, nil
}

// fetchSources pulls the KPI payload and every list concurrently, each
// through its own cache sub-key.
func (a *Aggregator) fetchSources(ctx context.Context, params domain.DashboardParams) *sources {
	src := &sources{}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		kpi, err := a.cachedKPI(ctx, params)
		if err != nil {
			slog.Warn("kpi endpoint unavailable", "error", err)
			kpi = &domain.KPIResponse{}
		}
		src.kpi = kpi
	}()
	go func() {
		defer wg.Done()
		users, err := cache.Through(ctx, a.loader, "users:all", 0, a.api.Staff)
		if err != nil {
			slog.Warn("staff list unavailable", "error", err)
		}
		src.users = users
	}()
	go func() {
		defer wg.Done()
		branches, err := cache.Through(ctx, a.loader, "branches", 0, a.api.Branches)
		if err != nil {
			slog.Warn("branch list unavailable", "error", err)
		}
		src.branches = branches
	}()
	go func() {
		defer wg.Done()
		loans, err := a.cachedLoans(ctx, backend.LoansAll, params)
		if err != nil {
			slog.Warn("loan list unavailable", "error", err)
		}
		src.loans = loans
	}()

	wg.Wait()
	return src
}

// currentValues derives each metric from its raw list, falling back to
// the backend's own KPI number when the list is empty or unavailable.
func (a *Aggregator) currentValues(src *sources) map[string]float64 {
	kpi := src.kpi

	values := map[string]float64{
		domain.MetricBranches:       kpi.TotalBranches,
		domain.MetricCreditOfficers: kpi.TotalCreditOfficers,
		domain.MetricCustomers:      kpi.TotalCustomers,
		domain.MetricLoansProcessed: kpi.TotalLoansProcessed,
		domain.MetricLoanAmounts:    kpi.TotalLoanAmounts,
		domain.MetricActiveLoans:    kpi.TotalActiveLoans,
		domain.MetricMissedPayments: kpi.TotalMissedPayments,
	}

	if len(src.branches) > 0 {
		values[domain.MetricBranches] = float64(len(src.branches))
	}

	if len(src.users) > 0 {
		var officers, customers int
		for _, u := range src.users {
			switch {
			case directory.MatchRole(directory.RoleCreditOfficer, u.Role):
				officers++
			case directory.MatchRole(directory.RoleCustomer, u.Role):
				customers++
			}
		}
		values[domain.MetricCreditOfficers] = float64(officers)
		values[domain.MetricCustomers] = float64(customers)
	}

	if len(src.loans) > 0 {
		var active, missed int
		for _, loan := range src.loans {
			if loan.IsActive() {
				active++
			}
			if loan.IsMissed() {
				missed++
			}
		}
		values[domain.MetricLoansProcessed] = float64(len(src.loans))
		values[domain.MetricActiveLoans] = float64(active)
		values[domain.MetricMissedPayments] = float64(missed)
		values[domain.MetricLoanAmounts] = sumAmounts(src.loans)
	}

	return values
}

// mergeGrowth prefers growth figures the backend precomputed; every
// metric the backend omits gets locally calculated growth.
func (a *Aggregator) mergeGrowth(ctx context.Context, kpi *domain.KPIResponse, current map[string]float64, params domain.DashboardParams) map[string]float64 {
	local := a.growth.GrowthForAllMetrics(ctx, current, params)

	pick := func(metric string, precomputed *float64) float64 {
		if precomputed != nil {
			return domain.Round2(*precomputed)
		}
		return local[metric+"Growth"]
	}

	return map[string]float64{
		domain.MetricBranches:       pick(domain.MetricBranches, kpi.BranchesGrowth),
		domain.MetricCreditOfficers: pick(domain.MetricCreditOfficers, kpi.CreditOfficersGrowth),
		domain.MetricCustomers:      pick(domain.MetricCustomers, kpi.CustomersGrowth),
		domain.MetricLoansProcessed: pick(domain.MetricLoansProcessed, kpi.LoansProcessedGrowth),
		domain.MetricLoanAmounts:    pick(domain.MetricLoanAmounts, kpi.LoanAmountsGrowth),
		domain.MetricActiveLoans:    pick(domain.MetricActiveLoans, kpi.ActiveLoansGrowth),
		domain.MetricMissedPayments: pick(domain.MetricMissedPayments, kpi.MissedPaymentsGrowth),
	}
}

// MetricValue re-queries the backend for a metric's value over a
// historical window, caching by the window's own parameter key. This
// makes the aggregator its own growth source.
func (a *Aggregator) MetricValue(ctx context.Context, metric string, rng domain.DateRange, params domain.DashboardParams) (float64, error) {
	prev := rng.Params(params.Branch)

	switch metric {
	case domain.MetricBranches, domain.MetricCreditOfficers, domain.MetricCustomers:
		kpi, err := a.cachedKPI(ctx, prev)
		if err != nil {
			return 0, err
		}
		switch metric {
		case domain.MetricBranches:
			return kpi.TotalBranches, nil
		case domain.MetricCreditOfficers:
			return kpi.TotalCreditOfficers, nil
		default:
			return kpi.TotalCustomers, nil
		}

	case domain.MetricLoansProcessed, domain.MetricActiveLoans,
		domain.MetricLoanAmounts, domain.MetricMissedPayments:
		loans, err := a.cachedLoans(ctx, backend.LoansAll, prev)
		if err != nil {
			return 0, err
		}
		switch metric {
		case domain.MetricLoansProcessed:
			return float64(len(loans)), nil
		case domain.MetricActiveLoans:
			var active int
			for _, loan := range loans {
				if loan.IsActive() {
					active++
				}
			}
			return float64(active), nil
		case domain.MetricLoanAmounts:
			return sumAmounts(loans), nil
		default:
			var missed int
			for _, loan := range loans {
				if loan.IsMissed() {
					missed++
				}
			}
			return float64(missed), nil
		}

	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}

func (a *Aggregator) cachedKPI(ctx context.Context, params domain.DashboardParams) (*domain.KPIResponse, error) {
	kpi, err := cache.Through(ctx, a.loader, "kpi:"+params.CacheKey(), 0,
		func(ctx context.Context) (domain.KPIResponse, error) {
			resp, err := a.api.KPI(ctx, params)
			if err != nil {
				return domain.KPIResponse{}, err
			}
			return *resp, nil
		})
	if err != nil {
		return nil, err
	}
	return &kpi, nil
}

func (a *Aggregator) cachedLoans(ctx context.Context, endpoint backend.LoanEndpoint, params domain.DashboardParams) ([]domain.Loan, error) {
	key := fmt.Sprintf("loans:%s:%d:%s", endpoint, loanFetchLimit, params.CacheKey())
	return cache.Through(ctx, a.loader, key, 0,
		func(ctx context.Context) ([]domain.Loan, error) {
			return a.api.Loans(ctx, endpoint, params, 0, loanFetchLimit)
		})
}

// sumAmounts totals loan amounts, skipping records whose amount cannot
// be parsed in either numeric or currency-string form.
func sumAmounts(loans []domain.Loan) float64 {
	var total float64
	for _, loan := range loans {
		amount, err := backend.ParseAmount(loan.Amount)
		if err != nil {
			slog.Warn("skipping unparseable loan amount", "loan_id", loan.ID, "error", err)
			continue
		}
		total += amount
	}
	return total
}

func (a *Aggregator) publishSnapshot(ctx context.Context, params domain.DashboardParams, kpis domain.DashboardKPIs) {
	computedAt, _ := time.Parse(time.RFC3339, kpis.ComputedAt)
	snap := domain.Snapshot{
		ID:         uuid.NewString(),
		CacheKey:   params.CacheKey(),
		Params:     params,
		KPIs:       kpis,
		ComputedAt: computedAt,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("failed to encode snapshot event", "error", err)
		return
	}
	a.publish(ctx, domain.TopicSnapshotComputed, payload)
}

func (a *Aggregator) publish(ctx context.Context, topic string, payload []byte) {
	if a.bus == nil {
		return
	}
	if err := a.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("event publish failed", "topic", topic, "error", err)
	}
}
