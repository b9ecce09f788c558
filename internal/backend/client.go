// Package backend implements the HTTP client for the core-banking REST
// API that Kestrel aggregates.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openmfb/kestrel/internal/domain"
)

// LoanEndpoint selects one of the backend loan list endpoints.
type LoanEndpoint string

const (
	LoansAll           LoanEndpoint = "all"
	LoansDisbursed     LoanEndpoint = "disbursed"
	LoansRecollections LoanEndpoint = "recollections"
	LoansMissed        LoanEndpoint = "missed"
)

// Client talks to the core-banking API. It does not cache or retry;
// callers layer caching on top.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the configured backend.
func NewClient(cfg domain.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// KPI fetches the raw dashboard KPI payload.
func (c *Client) KPI(ctx context.Context, params domain.DashboardParams) (*domain.KPIResponse, error) {
	body, err := c.get(ctx, "/dashboard/kpi", params.Query())
	if err != nil {
		return nil, err
	}

	var kpi domain.KPIResponse
	if err := decodeObject(body, &kpi); err != nil {
		return nil, fmt.Errorf("failed to decode KPI response: %w", err)
	}
	return &kpi, nil
}

// Staff fetches the full staff list. This is the primary role-bearing
// source; the endpoint does not support a role query parameter.
func (c *Client) Staff(ctx context.Context) ([]domain.User, error) {
	body, err := c.get(ctx, "/admin/staff/my-staff", nil)
	if err != nil {
		return nil, err
	}
	return DecodeList[domain.User](body)
}

// Users fetches from the secondary users endpoint, which supports
// branch/state/pagination parameters server-side but not role.
func (c *Client) Users(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	q := url.Values{}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Branch != "" {
		q.Set("branch", filter.Branch)
	}
	if filter.State != "" {
		q.Set("state", filter.State)
	}

	body, err := c.get(ctx, "/admin/users", q)
	if err != nil {
		return nil, err
	}
	return DecodeList[domain.User](body)
}

// Branches fetches the branch name list.
func (c *Client) Branches(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/users/branches", nil)
	if err != nil {
		return nil, err
	}
	return DecodeList[string](body)
}

// Loans fetches one of the loan list endpoints, capped at limit records.
func (c *Client) Loans(ctx context.Context, endpoint LoanEndpoint, params domain.DashboardParams, page, limit int) ([]domain.Loan, error) {
	q := params.Query()
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/loans/"+string(endpoint), q)
	if err != nil {
		return nil, err
	}
	return DecodeList[domain.Loan](body)
}

// CreateUser creates a user record.
func (c *Client) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	body, err := c.send(ctx, http.MethodPost, "/admin/users", user)
	if err != nil {
		return nil, err
	}
	var created domain.User
	if err := decodeObject(body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created user: %w", err)
	}
	return &created, nil
}

// UpdateUser updates a user record.
func (c *Client) UpdateUser(ctx context.Context, id string, user *domain.User) (*domain.User, error) {
	body, err := c.send(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), user)
	if err != nil {
		return nil, err
	}
	var updated domain.User
	if err := decodeObject(body, &updated); err != nil {
		return nil, fmt.Errorf("failed to decode updated user: %w", err)
	}
	return &updated, nil
}

// DeleteUser deletes a user record.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	c.setHeaders(req)

	return c.do(req, path)
}

func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request for %s: %w", path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, path)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return body, nil
}

// decodeObject decodes a single-object payload that may be wrapped in a
// {"data": {...}} envelope.
func decodeObject(raw []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, v); err == nil {
			return nil
		}
	}
	return json.Unmarshal(raw, v)
}
