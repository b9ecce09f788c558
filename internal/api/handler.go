package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openmfb/kestrel/internal/alerts"
	"github.com/openmfb/kestrel/internal/domain"
	"github.com/openmfb/kestrel/internal/repository"
)

// Dashboard is the slice of the aggregator the API exposes.
type Dashboard interface {
	GetAccurateKPIs(ctx context.Context, params domain.DashboardParams) (*domain.DashboardKPIs, error)
	GetBranchPerformance(ctx context.Context, params domain.DashboardParams) (*domain.BranchPerformance, error)
	ClearCache(ctx context.Context) error
}

// Directory is the slice of the user directory the API exposes.
type Directory interface {
	GetUsers(ctx context.Context, filter domain.UserFilter) (*domain.PaginatedUsers, error)
	GetAllUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, user *domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	dashboard Dashboard
	directory Directory
	repo      domain.Repository
	store     domain.Store
	engine    *alerts.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(dashboard Dashboard, directory Directory, repo domain.Repository, store domain.Store, engine *alerts.Engine, version string) *Handler {
	return &Handler{
		dashboard: dashboard,
		directory: directory,
		repo:      repo,
		store:     store,
		engine:    engine,
		version:   version,
	}
}

// validFilters enumerates the accepted timeFilter query values.
var validFilters = map[domain.TimeFilter]bool{
	domain.FilterLast24Hours: true,
	domain.FilterLast7Days:   true,
	domain.FilterLast30Days:  true,
	domain.FilterLast12Mths:  true,
	domain.FilterCustom:      true,
}

// parseDashboardParams reads the dashboard filter from query parameters.
func parseDashboardParams(r *http.Request) (domain.DashboardParams, error) {
	q := r.URL.Query()
	params := domain.DashboardParams{
		TimeFilter: domain.TimeFilter(q.Get("timeFilter")),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
		Branch:     q.Get("branch"),
	}

	if params.TimeFilter != "" && !validFilters[params.TimeFilter] {
		return params, errors.New("unknown timeFilter: " + string(params.TimeFilter))
	}
	if params.TimeFilter == domain.FilterCustom {
		if params.StartDate == "" || params.EndDate == "" {
			return params, errors.New("custom timeFilter requires startDate and endDate")
		}
	}
	for _, date := range []string{params.StartDate, params.EndDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return params, errors.New("dates must use YYYY-MM-DD format")
		}
	}

	return params, nil
}

// parseUserFilter reads the user directory filter from query parameters.
func parseUserFilter(r *http.Request) domain.UserFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return domain.UserFilter{
		Role:   q.Get("role"),
		Branch: q.Get("branch"),
		State:  q.Get("state"),
		Page:   page,
		Limit:  limit,
	}
}

// GetDashboardKPIs handles GET /dashboard/kpis.
func (h *Handler) GetDashboardKPIs(w http.ResponseWriter, r *http.Request) {
	params, err := parseDashboardParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	kpis, err := h.dashboard.GetAccurateKPIs(r.Context(), params)
	if err != nil {
		slog.Error("failed to compute dashboard KPIs",
			"cache_key", params.CacheKey(),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute dashboard KPIs",
		})
		return
	}

	writeJSON(w, http.StatusOK, kpis)
}

// GetBranchPerformance handles GET /dashboard/branch-performance.
func (h *Handler) GetBranchPerformance(w http.ResponseWriter, r *http.Request) {
	params, err := parseDashboardParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	perf, err := h.dashboard.GetBranchPerformance(r.Context(), params)
	if err != nil {
		slog.Error("failed to compute branch performance",
			"cache_key", params.CacheKey(),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute branch performance",
		})
		return
	}

	writeJSON(w, http.StatusOK, perf)
}

// ClearCache handles DELETE /cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.ClearCache(r.Context()); err != nil {
		slog.Error("failed to clear cache", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to clear cache",
		})
		return
	}

	slog.Info("cache cleared", "trace_id", GetTraceID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "cache cleared",
	})
}

// ListUsers handles GET /users with pagination.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.directory.GetUsers(r.Context(), parseUserFilter(r))
	if err != nil {
		slog.Error("failed to fetch users", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to fetch users",
		})
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// ListAllUsers handles GET /users/all without pagination.
func (h *Handler) ListAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.GetAllUsers(r.Context(), parseUserFilter(r))
	if err != nil {
		slog.Error("failed to fetch users", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to fetch users",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if user.FirstName == "" || user.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "firstName and role are required",
		})
		return
	}

	created, err := h.directory.CreateUser(r.Context(), &user)
	if err != nil {
		slog.Error("failed to create user", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to create user",
		})
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateUser handles PUT /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id is required",
		})
		return
	}

	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	updated, err := h.directory.UpdateUser(r.Context(), userID, &user)
	if err != nil {
		slog.Error("failed to update user", "id", userID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to update user",
		})
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteUser handles DELETE /users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id is required",
		})
		return
	}

	if err := h.directory.DeleteUser(r.Context(), userID); err != nil {
		slog.Error("failed to delete user", "id", userID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to delete user",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "user deleted",
	})
}

// ListSnapshots handles GET /snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := h.repo.ListSnapshots(r.Context(), r.URL.Query().Get("cacheKey"), limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list snapshots",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// GetSnapshot handles GET /snapshots/{id}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapID := chi.URLParam(r, "id")
	if snapID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "snapshot id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	snap, err := h.repo.GetSnapshot(r.Context(), snapID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "snapshot not found",
			})
			return
		}
		slog.Error("failed to get snapshot", "id", snapID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get snapshot",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// AlertRuleRequest is the request body for creating or updating a rule.
type AlertRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// ListAlertRules returns all rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /alert-rules/reload.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "alert engine not available",
		})
		return
	}

	loaded := h.engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetAlertRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.engine != nil {
		for _, rule := range h.engine.GetLoadedRules() {
			if rule.ID == ruleID {
				writeJSON(w, http.StatusOK, rule)
				return
			}
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateAlertRule creates a new rule, loads it into the engine, and
// persists it.
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	h.saveAlertRule(w, r, "")
}

// UpdateAlertRule updates an existing rule in place.
func (h *Handler) UpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}
	h.saveAlertRule(w, r, ruleID)
}

func (h *Handler) saveAlertRule(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()

	var req AlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if ruleID != "" {
		req.ID = ruleID
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityWarning
	}

	rule := &domain.AlertRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    req.Severity,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression before persisting anything.
	if h.engine != nil {
		if err := h.engine.ValidateRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertRule(ctx, rule); err != nil {
			slog.Error("failed to save alert rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	// Hot-load enabled rules; drop a rule that was just disabled.
	if h.engine != nil {
		if rule.Enabled {
			if err := h.engine.LoadRule(rule); err != nil {
				slog.Error("failed to load alert rule", "id", rule.ID, "error", err)
			}
		} else {
			h.engine.RemoveRule(rule.ID)
		}
	}

	status := http.StatusOK
	if ruleID == "" {
		status = http.StatusCreated
	}

	slog.Info("alert rule saved", "id", rule.ID, "name", rule.Name)
	writeJSON(w, status, rule)
}

// DeleteAlertRule handles DELETE /alert-rules/{id}.
func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteAlertRule(r.Context(), ruleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "rule not found",
				})
				return
			}
			slog.Error("failed to delete alert rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to delete rule",
			})
			return
		}
	}

	if h.engine != nil {
		h.engine.RemoveRule(ruleID)
	}

	slog.Info("alert rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// ReloadAlertRules reloads all rules from the database into the engine.
func (h *Handler) ReloadAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository or alert engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListAlertRules(ctx)
	if err != nil {
		slog.Error("failed to list alert rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload alert rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("alert rules reloaded from database", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// ListAlertEvents handles GET /alert-events.
func (h *Handler) ListAlertEvents(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.repo.ListAlertEvents(r.Context(), r.URL.Query().Get("branch"), limit)
	if err != nil {
		slog.Error("failed to list alert events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alert events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
