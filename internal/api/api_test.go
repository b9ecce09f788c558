package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openmfb/kestrel/internal/alerts"
	"github.com/openmfb/kestrel/internal/domain"
	"github.com/openmfb/kestrel/internal/repository"
)

type fakeDashboard struct {
	kpis    *domain.DashboardKPIs
	perf    *domain.BranchPerformance
	cleared bool
}

func (f *fakeDashboard) GetAccurateKPIs(ctx context.Context, params domain.DashboardParams) (*domain.DashboardKPIs, error) {
	if f.kpis != nil {
		return f.kpis, nil
	}
	return &domain.DashboardKPIs{}, nil
}

func (f *fakeDashboard) GetBranchPerformance(ctx context.Context, params domain.DashboardParams) (*domain.BranchPerformance, error) {
	if f.perf != nil {
		return f.perf, nil
	}
	return &domain.BranchPerformance{}, nil
}

func (f *fakeDashboard) ClearCache(ctx context.Context) error {
	f.cleared = true
	return nil
}

type fakeDirectory struct {
	users []domain.User
}

func (f *fakeDirectory) GetUsers(ctx context.Context, filter domain.UserFilter) (*domain.PaginatedUsers, error) {
	return &domain.PaginatedUsers{
		Users:      f.users,
		Total:      len(f.users),
		Page:       1,
		Limit:      10,
		TotalPages: 1,
	}, nil
}

func (f *fakeDirectory) GetAllUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	return f.users, nil
}

func (f *fakeDirectory) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	created := *user
	created.ID = "user-new"
	return &created, nil
}

func (f *fakeDirectory) UpdateUser(ctx context.Context, id string, user *domain.User) (*domain.User, error) {
	updated := *user
	updated.ID = id
	return &updated, nil
}

func (f *fakeDirectory) DeleteUser(ctx context.Context, id string) error {
	return nil
}

type memoryRepo struct {
	domain.Repository

	rules     map[string]*domain.AlertRule
	snapshots map[string]*domain.Snapshot
	events    []*domain.AlertEvent
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		rules:     make(map[string]*domain.AlertRule),
		snapshots: make(map[string]*domain.Snapshot),
	}
}

func (r *memoryRepo) Ping(ctx context.Context) error { return nil }

func (r *memoryRepo) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	r.snapshots[snap.ID] = snap
	return nil
}

func (r *memoryRepo) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	snap, ok := r.snapshots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return snap, nil
}

func (r *memoryRepo) ListSnapshots(ctx context.Context, cacheKey string, limit int) ([]*domain.Snapshot, error) {
	out := make([]*domain.Snapshot, 0, len(r.snapshots))
	for _, snap := range r.snapshots {
		if cacheKey == "" || snap.CacheKey == cacheKey {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (r *memoryRepo) SaveAlertRule(ctx context.Context, rule *domain.AlertRule) error {
	r.rules[rule.ID] = rule
	return nil
}

func (r *memoryRepo) ListAlertRules(ctx context.Context) ([]*domain.AlertRule, error) {
	out := make([]*domain.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (r *memoryRepo) DeleteAlertRule(ctx context.Context, ruleID string) error {
	if _, ok := r.rules[ruleID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rules, ruleID)
	return nil
}

func (r *memoryRepo) ListAlertEvents(ctx context.Context, branch string, limit int) ([]*domain.AlertEvent, error) {
	return r.events, nil
}

func createTestServer(t *testing.T) (*Server, *fakeDashboard, *memoryRepo) {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	engine, err := alerts.NewEngine(2)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	dashboard := &fakeDashboard{
		kpis: &domain.DashboardKPIs{
			Customers:  domain.NewStatisticValue(120, 8.5, false),
			ComputedAt: "2026-08-15T10:00:00Z",
		},
		perf: &domain.BranchPerformance{
			AllBranchMetrics: []domain.BranchPerformanceMetrics{
				{BranchName: "Ikeja", PerformanceScore: 72},
			},
		},
	}
	directory := &fakeDirectory{
		users: []domain.User{
			{ID: "u1", FirstName: "Amina", Role: "credit officer", Branch: "Ikeja"},
			{ID: "u2", FirstName: "Tunde", Role: "customer", Branch: "Surulere"},
		},
	}
	repo := newMemoryRepo()

	return NewServer(cfg, dashboard, directory, repo, nil, engine, "test-v1"), dashboard, repo
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestDashboardEndpoints(t *testing.T) {
	server, dashboard, _ := createTestServer(t)

	t.Run("GetKPIs", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/dashboard/kpis?timeFilter=last_7_days", nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var kpis domain.DashboardKPIs
		if err := json.Unmarshal(rr.Body.Bytes(), &kpis); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if kpis.Customers.Value != 120 {
			t.Errorf("expected customers 120, got %v", kpis.Customers.Value)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
	})

	t.Run("RejectsUnknownTimeFilter", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/dashboard/kpis?timeFilter=yesterday", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CustomFilterRequiresDates", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/dashboard/kpis?timeFilter=custom&startDate=2026-08-01", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsBadDateFormat", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/dashboard/kpis?timeFilter=custom&startDate=01/08/2026&endDate=2026-08-31", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetBranchPerformance", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/dashboard/branch-performance", nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var perf domain.BranchPerformance
		if err := json.Unmarshal(rr.Body.Bytes(), &perf); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(perf.AllBranchMetrics) != 1 || perf.AllBranchMetrics[0].BranchName != "Ikeja" {
			t.Errorf("unexpected metrics: %+v", perf.AllBranchMetrics)
		}
	})

	t.Run("ClearCache", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/cache", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !dashboard.cleared {
			t.Error("expected ClearCache to reach the aggregator")
		}
	})
}

func TestUserEndpoints(t *testing.T) {
	server, _, _ := createTestServer(t)

	t.Run("ListUsersPaginated", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/users?role=credit_officer&page=1&limit=10", nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var page domain.PaginatedUsers
		if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if page.Total != 2 {
			t.Errorf("expected total 2, got %d", page.Total)
		}
	})

	t.Run("ListAllUsers", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/users/all", nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 2 {
			t.Errorf("expected count 2, got %d", resp.Count)
		}
	})

	t.Run("CreateUser", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/users", domain.User{
			FirstName: "Bisi",
			Role:      "loan officer",
			Branch:    "Yaba",
		})

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var created domain.User
		if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if created.ID == "" {
			t.Error("expected created user to have an ID")
		}
	})

	t.Run("CreateUserRequiresFields", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/users", domain.User{Branch: "Yaba"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("DeleteUser", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/users/u1", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestAlertRuleEndpoints(t *testing.T) {
	server, _, repo := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/alert-rules", AlertRuleRequest{
			ID:         "low-score",
			Name:       "low score",
			Expression: `score < 40.0`,
			Severity:   domain.SeverityWarning,
			Enabled:    true,
		})

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if _, ok := repo.rules["low-score"]; !ok {
			t.Error("expected rule persisted to repository")
		}
	})

	t.Run("RuleLoadedIntoEngine", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/alert-rules/low-score", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var rule domain.AlertRule
		if err := json.Unmarshal(rr.Body.Bytes(), &rule); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if rule.Expression != `score < 40.0` {
			t.Errorf("unexpected expression %q", rule.Expression)
		}
	})

	t.Run("RejectsNonBooleanExpression", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/alert-rules", AlertRuleRequest{
			ID:         "bad-rule",
			Name:       "bad rule",
			Expression: `score * 2.0`,
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsMissingFields", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/alert-rules", AlertRuleRequest{ID: "incomplete"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ReloadFromRepository", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/alert-rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 rule after reload, got %d", resp.Count)
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/alert-rules/low-score", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodGet, "/alert-rules/low-score", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", rr.Code)
		}
	})

	t.Run("DeleteMissingRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/alert-rules/never-existed", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestSnapshotEndpoints(t *testing.T) {
	server, _, repo := createTestServer(t)

	repo.snapshots["snap-001"] = &domain.Snapshot{
		ID:       "snap-001",
		CacheKey: "default",
	}

	t.Run("GetSnapshot", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/snapshots/snap-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("GetSnapshotNotFound", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/snapshots/missing", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListSnapshots", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/snapshots?cacheKey=default", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 snapshot, got %d", resp.Count)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/health", nil)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
