package performance

import (
	"math"
	"testing"

	"github.com/openmfb/kestrel/internal/domain"
)

func TestScore(t *testing.T) {
	t.Run("KnownComposite", func(t *testing.T) {
		// 15 (disbursement) + 10 (active) + 20 (repayment) +
		// 15 (productivity) + 9 (default complement) = 69.
		got := Score(domain.BranchPerformanceMetrics{
			TotalAmountDisbursed: 5_000_000,
			ActiveLoans:          100,
			RepaymentRate:        80,
			TotalLoansProcessed:  100,
			TotalCreditOfficers:  2,
			DefaultedLoans:       10,
		})
		if got != 69 {
			t.Errorf("score = %v, want 69", got)
		}
	})

	t.Run("IdleBranchScoresZero", func(t *testing.T) {
		// With no activity the default-penalty complement alone must
		// not award 10 points.
		got := Score(domain.BranchPerformanceMetrics{RepaymentRate: 100})
		if got != 0 {
			t.Errorf("score = %v, want 0", got)
		}
	})

	t.Run("ComponentsCapAt100", func(t *testing.T) {
		got := Score(domain.BranchPerformanceMetrics{
			TotalAmountDisbursed: 900_000_000,
			ActiveLoans:          5000,
			RepaymentRate:        100,
			TotalLoansProcessed:  10000,
			TotalCreditOfficers:  1,
		})
		if got != 100 {
			t.Errorf("score = %v, want 100", got)
		}
	})

	t.Run("AlwaysWithinBounds", func(t *testing.T) {
		cases := []domain.BranchPerformanceMetrics{
			{TotalLoansProcessed: 1, DefaultedLoans: 1},
			{TotalAmountDisbursed: 0.01},
			{ActiveLoans: 1, TotalLoansProcessed: 500, DefaultedLoans: 500},
			{TotalAmountDisbursed: math.MaxFloat64, ActiveLoans: math.MaxInt32, TotalLoansProcessed: math.MaxInt32, RepaymentRate: 100},
		}
		for i, m := range cases {
			got := Score(m)
			if math.IsNaN(got) || got < 0 || got > 100 {
				t.Errorf("case %d: score %v out of [0, 100]", i, got)
			}
		}
	})

	t.Run("MoreDefaultsNeverScoreHigher", func(t *testing.T) {
		base := domain.BranchPerformanceMetrics{
			TotalAmountDisbursed: 2_000_000,
			ActiveLoans:          50,
			RepaymentRate:        60,
			TotalLoansProcessed:  100,
			TotalCreditOfficers:  4,
		}
		prev := Score(base)
		for defaults := 1; defaults <= 100; defaults += 9 {
			m := base
			m.DefaultedLoans = defaults
			got := Score(m)
			if got > prev {
				t.Errorf("defaults=%d: score rose from %v to %v", defaults, prev, got)
			}
			prev = got
		}
	})
}

func TestRank(t *testing.T) {
	branch := func(name string, score float64) domain.BranchPerformanceMetrics {
		return domain.BranchPerformanceMetrics{BranchName: name, PerformanceScore: score}
	}

	t.Run("BestAndWorstOfFive", func(t *testing.T) {
		result := Rank([]domain.BranchPerformanceMetrics{
			branch("Ikeja", 40),
			branch("Surulere", 90),
			branch("Yaba", 10),
			branch("Lekki", 75),
			branch("Apapa", 55),
		})

		wantBest := []string{"Surulere", "Lekki", "Apapa"}
		for i, want := range wantBest {
			if result.BestPerformingBranches[i].BranchName != want {
				t.Errorf("best[%d] = %s, want %s", i, result.BestPerformingBranches[i].BranchName, want)
			}
		}

		wantWorst := []string{"Yaba", "Ikeja", "Apapa"}
		for i, want := range wantWorst {
			if result.WorstPerformingBranches[i].BranchName != want {
				t.Errorf("worst[%d] = %s, want %s", i, result.WorstPerformingBranches[i].BranchName, want)
			}
		}

		if len(result.AllBranchMetrics) != 5 {
			t.Errorf("all = %d entries, want 5", len(result.AllBranchMetrics))
		}
		if result.AllBranchMetrics[0].BranchName != "Surulere" {
			t.Errorf("all[0] = %s, want Surulere", result.AllBranchMetrics[0].BranchName)
		}
	})

	t.Run("TiesKeepSourceOrder", func(t *testing.T) {
		result := Rank([]domain.BranchPerformanceMetrics{
			branch("First", 50),
			branch("Second", 50),
			branch("Third", 50),
		})
		want := []string{"First", "Second", "Third"}
		for i, name := range want {
			if result.AllBranchMetrics[i].BranchName != name {
				t.Errorf("all[%d] = %s, want %s", i, result.AllBranchMetrics[i].BranchName, name)
			}
		}
	})

	t.Run("FewerBranchesThanRankSize", func(t *testing.T) {
		result := Rank([]domain.BranchPerformanceMetrics{branch("Only", 30)})
		if len(result.BestPerformingBranches) != 1 || len(result.WorstPerformingBranches) != 1 {
			t.Errorf("expected single-entry lists, got best=%d worst=%d",
				len(result.BestPerformingBranches), len(result.WorstPerformingBranches))
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		result := Rank(nil)
		if len(result.BestPerformingBranches) != 0 || len(result.WorstPerformingBranches) != 0 || len(result.AllBranchMetrics) != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})
}
