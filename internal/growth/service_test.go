package growth

import (
	"context"
	"errors"
	"testing"

	"github.com/openmfb/kestrel/internal/domain"
)

type fakeSource struct {
	values map[string]float64
	err    error
}

func (f *fakeSource) MetricValue(ctx context.Context, metric string, rng domain.DateRange, params domain.DashboardParams) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.values[metric], nil
}

func TestGrowth(t *testing.T) {
	ctx := context.Background()

	t.Run("PositiveGrowth", func(t *testing.T) {
		svc := NewService(&fakeSource{values: map[string]float64{domain.MetricCustomers: 80}})
		got := svc.Growth(ctx, domain.MetricCustomers, 100, domain.DashboardParams{})
		if got != 25 {
			t.Errorf("expected 25, got %v", got)
		}
	})

	t.Run("NegativeGrowthRoundsToTwoPlaces", func(t *testing.T) {
		svc := NewService(&fakeSource{values: map[string]float64{domain.MetricActiveLoans: 3}})
		got := svc.Growth(ctx, domain.MetricActiveLoans, 2, domain.DashboardParams{})
		if got != -33.33 {
			t.Errorf("expected -33.33, got %v", got)
		}
	})

	t.Run("ZeroPreviousNeverDividesByZero", func(t *testing.T) {
		svc := NewService(&fakeSource{values: map[string]float64{}})
		for _, current := range []float64{0, 1, 1000} {
			got := svc.Growth(ctx, domain.MetricBranches, current, domain.DashboardParams{})
			if got != 0 {
				t.Errorf("current=%v: expected 0, got %v", current, got)
			}
		}
	})

	t.Run("FetchFailureYieldsZero", func(t *testing.T) {
		svc := NewService(&fakeSource{err: errors.New("history unavailable")})
		if got := svc.Growth(ctx, domain.MetricLoanAmounts, 500, domain.DashboardParams{}); got != 0 {
			t.Errorf("expected 0 on failure, got %v", got)
		}
	})

	t.Run("AllMetricsComputedInBulk", func(t *testing.T) {
		svc := NewService(&fakeSource{values: map[string]float64{
			domain.MetricCustomers:      50,
			domain.MetricLoansProcessed: 200,
		}})

		result := svc.GrowthForAllMetrics(ctx, map[string]float64{
			domain.MetricCustomers:      75,
			domain.MetricLoansProcessed: 100,
		}, domain.DashboardParams{})

		if len(result) != len(domain.Metrics) {
			t.Fatalf("expected %d growth entries, got %d", len(domain.Metrics), len(result))
		}
		if result["customersGrowth"] != 50 {
			t.Errorf("customersGrowth = %v, want 50", result["customersGrowth"])
		}
		if result["loansProcessedGrowth"] != -50 {
			t.Errorf("loansProcessedGrowth = %v, want -50", result["loansProcessedGrowth"])
		}
		// Metrics with zero previous values default to 0.
		if result["branchesGrowth"] != 0 {
			t.Errorf("branchesGrowth = %v, want 0", result["branchesGrowth"])
		}
	})

	t.Run("BulkFailureReturnsAllZeros", func(t *testing.T) {
		svc := NewService(&fakeSource{err: errors.New("total outage")})

		result := svc.GrowthForAllMetrics(ctx, map[string]float64{domain.MetricCustomers: 10}, domain.DashboardParams{})
		if len(result) != len(domain.Metrics) {
			t.Fatalf("expected %d entries, got %d", len(domain.Metrics), len(result))
		}
		for key, val := range result {
			if val != 0 {
				t.Errorf("%s = %v, want 0", key, val)
			}
		}
	})
}
