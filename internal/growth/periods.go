// Package growth derives prior-period date ranges and computes
// period-over-period growth percentages per dashboard metric.
package growth

import (
	"time"

	"github.com/openmfb/kestrel/internal/domain"
)

// PreviousPeriod derives the comparison window for the given filter.
//
// The offsets for last_7_days (14/21 days back) and last_30_days (60/90
// days back) are intentional: they match the established dashboard
// behavior and are kept literal rather than recomputed as the
// calendar-exact preceding window.
func PreviousPeriod(params domain.DashboardParams, now time.Time) domain.DateRange {
	today := truncateDay(now)

	switch params.TimeFilter {
	case domain.FilterLast24Hours:
		day := today.AddDate(0, 0, -2)
		return domain.DateRange{Start: day, End: day}

	case domain.FilterLast7Days:
		return domain.DateRange{
			Start: today.AddDate(0, 0, -21),
			End:   today.AddDate(0, 0, -14),
		}

	case domain.FilterLast30Days:
		return domain.DateRange{
			Start: today.AddDate(0, 0, -90),
			End:   today.AddDate(0, 0, -60),
		}

	case domain.FilterCustom:
		if r, ok := previousCustomPeriod(params); ok {
			return r
		}
		return previousCalendarMonth(today)

	default:
		return previousCalendarMonth(today)
	}
}

// previousCustomPeriod builds a window of identical length immediately
// preceding the custom range: end = start - 1 day, start = end - length.
func previousCustomPeriod(params domain.DashboardParams) (domain.DateRange, bool) {
	start, err := time.Parse(domain.DateLayout, params.StartDate)
	if err != nil {
		return domain.DateRange{}, false
	}
	end, err := time.Parse(domain.DateLayout, params.EndDate)
	if err != nil {
		return domain.DateRange{}, false
	}
	if end.Before(start) {
		return domain.DateRange{}, false
	}

	lengthDays := int(end.Sub(start).Hours() / 24)
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -lengthDays)
	return domain.DateRange{Start: prevStart, End: prevEnd}, true
}

// previousCalendarMonth is the fallback window: first to last day of the
// month before the current one.
func previousCalendarMonth(today time.Time) domain.DateRange {
	firstOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	firstOfPrevMonth := firstOfThisMonth.AddDate(0, -1, 0)
	lastOfPrevMonth := firstOfThisMonth.AddDate(0, 0, -1)
	return domain.DateRange{Start: firstOfPrevMonth, End: lastOfPrevMonth}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
