package growth

import (
	"testing"
	"time"

	"github.com/openmfb/kestrel/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPreviousPeriod(t *testing.T) {
	// Mid-month reference day, afternoon, to verify day truncation.
	now := time.Date(2026, time.August, 15, 14, 30, 0, 0, time.UTC)

	t.Run("DefaultIsPreviousCalendarMonth", func(t *testing.T) {
		for _, params := range []domain.DashboardParams{
			{},
			{TimeFilter: domain.FilterLast12Mths},
			{TimeFilter: "weird_filter"},
		} {
			rng := PreviousPeriod(params, now)
			if !rng.Start.Equal(date(2026, time.July, 1)) {
				t.Errorf("%v: start = %v, want 2026-07-01", params.TimeFilter, rng.Start)
			}
			if !rng.End.Equal(date(2026, time.July, 31)) {
				t.Errorf("%v: end = %v, want 2026-07-31", params.TimeFilter, rng.End)
			}
		}
	})

	t.Run("Last24HoursIsDayBeforeYesterday", func(t *testing.T) {
		rng := PreviousPeriod(domain.DashboardParams{TimeFilter: domain.FilterLast24Hours}, now)
		want := date(2026, time.August, 13)
		if !rng.Start.Equal(want) || !rng.End.Equal(want) {
			t.Errorf("expected one-day window on %v, got %v..%v", want, rng.Start, rng.End)
		}
	})

	t.Run("Last7DaysUsesLiteralOffsets", func(t *testing.T) {
		rng := PreviousPeriod(domain.DashboardParams{TimeFilter: domain.FilterLast7Days}, now)
		if !rng.Start.Equal(date(2026, time.July, 25)) {
			t.Errorf("start = %v, want 2026-07-25 (today-21d)", rng.Start)
		}
		if !rng.End.Equal(date(2026, time.August, 1)) {
			t.Errorf("end = %v, want 2026-08-01 (today-14d)", rng.End)
		}
	})

	t.Run("Last30DaysUsesLiteralOffsets", func(t *testing.T) {
		rng := PreviousPeriod(domain.DashboardParams{TimeFilter: domain.FilterLast30Days}, now)
		if !rng.Start.Equal(date(2026, time.May, 17)) {
			t.Errorf("start = %v, want 2026-05-17 (today-90d)", rng.Start)
		}
		if !rng.End.Equal(date(2026, time.June, 29)) {
			t.Errorf("end = %v, want 2026-06-29 (today-60d)", rng.End)
		}
	})

	t.Run("CustomRangePrecedesWithEqualLength", func(t *testing.T) {
		rng := PreviousPeriod(domain.DashboardParams{
			TimeFilter: domain.FilterCustom,
			StartDate:  "2026-08-10",
			EndDate:    "2026-08-14",
		}, now)
		if !rng.End.Equal(date(2026, time.August, 9)) {
			t.Errorf("end = %v, want 2026-08-09 (start - 1 day)", rng.End)
		}
		if !rng.Start.Equal(date(2026, time.August, 5)) {
			t.Errorf("start = %v, want 2026-08-05 (equal 4-day span)", rng.Start)
		}
	})

	t.Run("MalformedCustomFallsBackToCalendarMonth", func(t *testing.T) {
		rng := PreviousPeriod(domain.DashboardParams{
			TimeFilter: domain.FilterCustom,
			StartDate:  "not-a-date",
			EndDate:    "2026-08-14",
		}, now)
		if !rng.Start.Equal(date(2026, time.July, 1)) || !rng.End.Equal(date(2026, time.July, 31)) {
			t.Errorf("expected previous calendar month fallback, got %v..%v", rng.Start, rng.End)
		}
	})
}
