package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmfb/kestrel/internal/cache"
	"github.com/openmfb/kestrel/internal/domain"
)

const (
	// staffCacheKey holds the full staff pull shared by every filter.
	staffCacheKey = "directory:staff"

	// defaultPageLimit applies when a filter omits the page size.
	defaultPageLimit = 10
)

// API is the subset of the backend client the directory uses.
type API interface {
	Staff(ctx context.Context) ([]domain.User, error)
	Users(ctx context.Context, filter domain.UserFilter) ([]domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, user *domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Service is the user directory: it fetches the staff list once per TTL
// window and applies role/branch/state filtering and pagination client
// side, because the primary endpoint supports none of them.
type Service struct {
	api    API
	loader *cache.Loader
}

// NewService creates a directory service with its own cache loader.
func NewService(api API, loader *cache.Loader) *Service {
	return &Service{api: api, loader: loader}
}

// GetAllUsers returns every user matching the filter, unpaginated.
// Fetch failures propagate: callers must be able to distinguish "no
// users" from "fetch failed".
func (s *Service) GetAllUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	users, err := cache.Through(ctx, s.loader, staffCacheKey, 0, func(ctx context.Context) ([]domain.User, error) {
		return s.api.Staff(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch staff list: %w", err)
	}
	return filterUsers(users, filter), nil
}

// GetUsers returns one page of the filtered user list.
func (s *Service) GetUsers(ctx context.Context, filter domain.UserFilter) (*domain.PaginatedUsers, error) {
	filtered, err := s.GetAllUsers(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}

	total := len(filtered)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &domain.PaginatedUsers{
		Users:      filtered[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// CreateUser creates a user and invalidates the entire directory cache:
// filtered/paginated views are derived and cannot be patched safely.
func (s *Service) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	created, err := s.api.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	_ = s.loader.Clear(ctx)
	return created, nil
}

// UpdateUser updates a user and invalidates the entire directory cache.
func (s *Service) UpdateUser(ctx context.Context, id string, user *domain.User) (*domain.User, error) {
	updated, err := s.api.UpdateUser(ctx, id, user)
	if err != nil {
		return nil, err
	}
	_ = s.loader.Clear(ctx)
	return updated, nil
}

// DeleteUser deletes a user and invalidates the entire directory cache.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.api.DeleteUser(ctx, id); err != nil {
		return err
	}
	_ = s.loader.Clear(ctx)
	return nil
}

// ClearCache wipes the directory cache.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.loader.Clear(ctx)
}

// filterUsers applies role, branch, and state filters client side. Role
// uses the synonym heuristic; branch and state are case-insensitive
// substring matches.
func filterUsers(users []domain.User, filter domain.UserFilter) []domain.User {
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if filter.Role != "" && !MatchRole(filter.Role, u.Role) {
			continue
		}
		if filter.Branch != "" && !containsFold(u.Branch, filter.Branch) {
			continue
		}
		if filter.State != "" && !containsFold(u.State, filter.State) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
