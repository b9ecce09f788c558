// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// TimeFilter selects the reporting window for dashboard queries.
type TimeFilter string

const (
	FilterLast24Hours TimeFilter = "last_24_hours"
	FilterLast7Days   TimeFilter = "last_7_days"
	FilterLast30Days  TimeFilter = "last_30_days"
	FilterLast12Mths  TimeFilter = "last_12_months"
	FilterCustom      TimeFilter = "custom"
)

// DateLayout is the wire format for start/end dates.
const DateLayout = "2006-01-02"

// DashboardParams is the immutable filter the UI passes with every
// dashboard request. It drives both cache keys and downstream queries.
type DashboardParams struct {
	TimeFilter TimeFilter `json:"timeFilter,omitempty"`
	StartDate  string     `json:"startDate,omitempty"`
	EndDate    string     `json:"endDate,omitempty"`
	Branch     string     `json:"branch,omitempty"`
}

// IsZero reports whether no filter fields are set.
func (p DashboardParams) IsZero() bool {
	return p.TimeFilter == "" && p.StartDate == "" && p.EndDate == "" && p.Branch == ""
}

// CacheKey returns a deterministic, order-independent key built from the
// sorted key=value pairs of the set fields.
func (p DashboardParams) CacheKey() string {
	pairs := make([]string, 0, 4)
	if p.TimeFilter != "" {
		pairs = append(pairs, "timeFilter="+string(p.TimeFilter))
	}
	if p.StartDate != "" {
		pairs = append(pairs, "startDate="+p.StartDate)
	}
	if p.EndDate != "" {
		pairs = append(pairs, "endDate="+p.EndDate)
	}
	if p.Branch != "" {
		pairs = append(pairs, "branch="+p.Branch)
	}
	if len(pairs) == 0 {
		return "default"
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// Query returns the params as backend query parameters.
func (p DashboardParams) Query() url.Values {
	q := url.Values{}
	if p.TimeFilter != "" {
		q.Set("timeFilter", string(p.TimeFilter))
	}
	if p.StartDate != "" {
		q.Set("startDate", p.StartDate)
	}
	if p.EndDate != "" {
		q.Set("endDate", p.EndDate)
	}
	if p.Branch != "" {
		q.Set("branch", p.Branch)
	}
	return q
}

// DateRange is an inclusive day range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Params converts the range into dashboard params with a custom filter,
// used when re-querying historical data.
func (r DateRange) Params(branch string) DashboardParams {
	return DashboardParams{
		TimeFilter: FilterCustom,
		StartDate:  r.Start.Format(DateLayout),
		EndDate:    r.End.Format(DateLayout),
		Branch:     branch,
	}
}
