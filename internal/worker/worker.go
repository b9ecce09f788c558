// Package worker provides async snapshot persistence, alert
// evaluation, and periodic cache warmup.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/openmfb/kestrel/internal/alerts"
	"github.com/openmfb/kestrel/internal/domain"
)

// Dashboard is the slice of the aggregator the worker drives: cache
// warmup recomputes snapshots, alert evaluation reads branch metrics.
type Dashboard interface {
	GetAccurateKPIs(ctx context.Context, params domain.DashboardParams) (*domain.DashboardKPIs, error)
	GetBranchPerformance(ctx context.Context, params domain.DashboardParams) (*domain.BranchPerformance, error)
}

// Worker consumes snapshot events from the EventBus, persists them,
// and runs alert rules against the branches behind each snapshot.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	engine    *alerts.Engine
	dashboard Dashboard

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WarmupInterval between background snapshot recomputations.
	// Zero disables warmup.
	WarmupInterval time.Duration

	// WarmupParams are the filters to keep warm. Empty means the
	// default (unfiltered) dashboard view.
	WarmupParams []domain.DashboardParams
}

// NewWorker creates a new async worker. repo and engine may be nil,
// disabling persistence and alerting respectively.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *alerts.Engine, dashboard Dashboard) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		engine:    engine,
		dashboard: dashboard,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the snapshot topic and, when configured, begins
// the periodic warmup loop.
func (w *Worker) Start(cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicSnapshotComputed, w.handleSnapshot)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	if cfg.WarmupInterval > 0 {
		params := cfg.WarmupParams
		if len(params) == 0 {
			params = []domain.DashboardParams{{}}
		}
		w.wg.Add(1)
		go w.warmupLoop(cfg.WarmupInterval, params)
	}

	slog.Info("worker started",
		"topic", domain.TopicSnapshotComputed,
		"warmup_interval", cfg.WarmupInterval,
	)

	return nil
}

// handleSnapshot persists one snapshot event and evaluates alert
// rules against the branches behind it.
func (w *Worker) handleSnapshot(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var snap domain.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		slog.Error("failed to parse snapshot message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("processing snapshot",
		"snapshot_id", snap.ID,
		"cache_key", snap.CacheKey,
	)

	if w.repo != nil {
		if err := w.repo.SaveSnapshot(ctx, &snap); err != nil {
			slog.Error("failed to save snapshot",
				"snapshot_id", snap.ID,
				"error", err,
			)
		}
	}

	events := w.evaluateAlerts(ctx, snap.Params)

	slog.Info("snapshot processed",
		"snapshot_id", snap.ID,
		"cache_key", snap.CacheKey,
		"alerts_fired", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// evaluateAlerts runs all loaded rules against current branch metrics
// for the snapshot's filter, persisting and publishing each fired
// event.
func (w *Worker) evaluateAlerts(ctx context.Context, params domain.DashboardParams) []domain.AlertEvent {
	if w.engine == nil || w.engine.RulesCount() == 0 || w.dashboard == nil {
		return nil
	}

	perf, err := w.dashboard.GetBranchPerformance(ctx, params)
	if err != nil {
		slog.Error("failed to load branch metrics for alerting", "error", err)
		return nil
	}

	events := w.engine.EvaluateBranches(ctx, perf.AllBranchMetrics)

	for _, event := range events {
		if w.repo != nil {
			if err := w.repo.SaveAlertEvent(ctx, &event); err != nil {
				slog.Error("failed to save alert event",
					"event_id", event.ID,
					"rule_id", event.RuleID,
					"error", err,
				)
			}
		}

		payload, _ := json.Marshal(event)
		if err := w.bus.Publish(ctx, domain.TopicBranchAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"event_id", event.ID,
				"error", err,
			)
		}

		slog.Warn("branch alert fired",
			"rule", event.RuleName,
			"branch", event.Branch,
			"severity", event.Severity,
			"score", event.Score,
		)
	}

	return events
}

// warmupLoop recomputes the configured dashboard views on a fixed
// interval so cached snapshots stay fresh between user requests.
func (w *Worker) warmupLoop(interval time.Duration, params []domain.DashboardParams) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			for _, p := range params {
				if _, err := w.dashboard.GetAccurateKPIs(w.ctx, p); err != nil {
					slog.Warn("cache warmup failed",
						"cache_key", p.CacheKey(),
						"error", err,
					)
				}
			}
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	RulesLoaded       int      `json:"rulesLoaded"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	stats := Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
	if w.engine != nil {
		stats.RulesLoaded = w.engine.RulesCount()
	}
	return stats
}
