package growth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openmfb/kestrel/internal/domain"
)

// MetricSource provides a metric's value over a historical date range.
type MetricSource interface {
	MetricValue(ctx context.Context, metric string, rng domain.DateRange, params domain.DashboardParams) (float64, error)
}

// Service computes period-over-period growth per metric. Growth failures
/// never block dashboard rendering: every failure path degrades to 0.
type Service struct {
	source     MetricSource
	maxWorkers int
	now        func() time.Time
}

// NewService creates a growth service over the given historical source.
func NewService(source MetricSource) *Service {
	return &Service{
		source:     source,
		maxWorkers: 7,
		now:        time.Now,
	}
}

// Growth computes the growth percentage for one metric against its
// previous-period value, rounded to 2 decimal places. A previous value
// of 0, or any fetch failure, yields 0 rather than Inf/NaN.
func (s *Service) Growth(ctx context.Context, metric string, current float64, params domain.DashboardParams) float64 {
	rng := PreviousPeriod(params, s.now())

	previous, err := s.source.MetricValue(ctx, metric, rng, params)
	if err != nil {
		slog.Warn("growth lookup failed, defaulting to 0",
			"metric", metric,
			"range_start", rng.Start.Format(domain.DateLayout),
			"range_end", rng.End.Format(domain.DateLayout),
			"error", err,
		)
		return 0
	}
	if previous == 0 {
		return 0
	}

	return domain.Round2((current - previous) / previous * 100)
}

// GrowthForAllMetrics computes growth for every tracked metric in
// parallel, keyed as "<metric>Growth". Missing metrics in current are
// treated as 0. The result always contains all seven keys.
func (s *Service) GrowthForAllMetrics(ctx context.Context, current map[string]float64, params domain.DashboardParams) map[string]float64 {
	result := make(map[string]float64, len(domain.Metrics))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxWorkers)

	for _, metric := range domain.Metrics {
		wg.Add(1)
		go func(metric string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			growth := s.Growth(ctx, metric, current[metric], params)

			mu.Lock()
			result[metric+"Growth"] = growth
			mu.Unlock()
		}(metric)
	}

	wg.Wait()
	return result
}
