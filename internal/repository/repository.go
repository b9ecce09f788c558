// Package repository provides snapshot and alert persistence.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openmfb/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const defaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot stores a computed KPI snapshot.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("%w: snapshot with ID is required", ErrInvalidInput)
	}

	params, _ := json.Marshal(snap.Params)
	kpis, err := json.Marshal(snap.KPIs)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot KPIs: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, cache_key, params, kpis, computed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		snap.ID, snap.CacheKey, string(params), string(kpis), snap.ComputedAt,
	)
	return err
}

// GetSnapshot retrieves a snapshot by ID.
func (r *SQLRepository) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, cache_key, params, kpis, computed_at
		FROM snapshots
		WHERE id = ?
	`

	var snap domain.Snapshot
	var params, kpis string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&snap.ID, &snap.CacheKey, &params, &kpis, &snap.ComputedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(params), &snap.Params)
	if err := json.Unmarshal([]byte(kpis), &snap.KPIs); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot KPIs: %w", err)
	}

	return &snap, nil
}

// ListSnapshots retrieves recent snapshots, newest first. An empty
// cacheKey lists across all filters.
func (r *SQLRepository) ListSnapshots(ctx context.Context, cacheKey string, limit int) ([]*domain.Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, cache_key, params, kpis, computed_at
		FROM snapshots
	`
	args := []any{}
	if cacheKey != "" {
		query += ` WHERE cache_key = ?`
		args = append(args, cacheKey)
	}
	query += ` ORDER BY computed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		var params, kpis string

		if err := rows.Scan(&snap.ID, &snap.CacheKey, &params, &kpis, &snap.ComputedAt); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(params), &snap.Params)
		if err := json.Unmarshal([]byte(kpis), &snap.KPIs); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot KPIs for %s: %w", snap.ID, err)
		}
		snapshots = append(snapshots, &snap)
	}

	return snapshots, rows.Err()
}

// SaveAlertRule stores or updates an alert rule.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, rule *domain.AlertRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: alert rule with ID is required", ErrInvalidInput)
	}
	if rule.Expression == "" {
		return fmt.Errorf("%w: expression is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO alert_rules (
			id, name, description, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Expression, rule.Severity, enabled,
		createdAt, now,
	)
	return err
}

// GetAlertRule retrieves an alert rule by ID.
func (r *SQLRepository) GetAlertRule(ctx context.Context, ruleID string) (*domain.AlertRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, severity, enabled, created_at, updated_at
		FROM alert_rules
		WHERE id = ?
	`

	var rule domain.AlertRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description,
		&rule.Expression, &rule.Severity, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListAlertRules retrieves all alert rules, enabled and disabled.
func (r *SQLRepository) ListAlertRules(ctx context.Context) ([]*domain.AlertRule, error) {
	query := `
		SELECT id, name, description, expression, severity, enabled, created_at, updated_at
		FROM alert_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Severity, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteAlertRule removes an alert rule.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, ruleID string) error {
	if ruleID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM alert_rules WHERE id = ?`), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveAlertEvent stores one fired alert.
func (r *SQLRepository) SaveAlertEvent(ctx context.Context, event *domain.AlertEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: alert event with ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alert_events (
			id, rule_id, rule_name, branch, severity, score, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, event.RuleID, event.RuleName, event.Branch,
		event.Severity, event.Score, event.Message, event.CreatedAt,
	)
	return err
}

// ListAlertEvents retrieves recent alert events, newest first. An empty
// branch lists across all branches.
func (r *SQLRepository) ListAlertEvents(ctx context.Context, branch string, limit int) ([]*domain.AlertEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, rule_id, rule_name, branch, severity, score, message, created_at
		FROM alert_events
	`
	args := []any{}
	if branch != "" {
		query += ` WHERE branch = ?`
		args = append(args, branch)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AlertEvent
	for rows.Next() {
		var event domain.AlertEvent

		if err := rows.Scan(
			&event.ID, &event.RuleID, &event.RuleName, &event.Branch,
			&event.Severity, &event.Score, &event.Message, &event.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
