package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmfb/kestrel/internal/cache"
	"github.com/openmfb/kestrel/internal/domain"
)

type fakeAPI struct {
	staff      []domain.User
	staffErr   error
	staffCalls int
}

func (f *fakeAPI) Staff(ctx context.Context) ([]domain.User, error) {
	f.staffCalls++
	if f.staffErr != nil {
		return nil, f.staffErr
	}
	return f.staff, nil
}

func (f *fakeAPI) Users(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	return f.staff, nil
}

func (f *fakeAPI) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	f.staff = append(f.staff, *user)
	return user, nil
}

func (f *fakeAPI) UpdateUser(ctx context.Context, id string, user *domain.User) (*domain.User, error) {
	return user, nil
}

func (f *fakeAPI) DeleteUser(ctx context.Context, id string) error {
	return nil
}

func newTestService(api *fakeAPI) *Service {
	loader := cache.NewLoader(cache.NewLRUStore(100), time.Minute)
	return NewService(api, loader)
}

func sampleStaff() []domain.User {
	return []domain.User{
		{ID: "u1", Role: "credit_officer", Branch: "Lagos", State: "Lagos"},
		{ID: "u2", Role: "creditofficer", Branch: "Abuja", State: "FCT"},
		{ID: "u3", Role: "CO", Branch: "Lagos", State: "Lagos"},
		{ID: "u4", Role: "branch manager", Branch: "Lagos", State: "Lagos"},
		{ID: "u5", Role: "customer", Branch: "Abuja", State: "FCT"},
		{ID: "u6", Role: "customer", Branch: "Lagos", State: "Lagos"},
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()

	t.Run("RoleSynonymFiltering", func(t *testing.T) {
		svc := newTestService(&fakeAPI{staff: sampleStaff()})

		// Every spelling of the requested role selects the same set.
		for _, role := range []string{"credit_officer", "creditofficer", "credit officer", "credit-officer"} {
			users, err := svc.GetAllUsers(ctx, domain.UserFilter{Role: role})
			if err != nil {
				t.Fatalf("GetAllUsers(%q) failed: %v", role, err)
			}
			if len(users) != 3 {
				t.Errorf("GetAllUsers(%q) = %d users, want 3", role, len(users))
			}
		}
	})

	t.Run("CustomerFilterIsExact", func(t *testing.T) {
		svc := newTestService(&fakeAPI{staff: sampleStaff()})

		users, err := svc.GetAllUsers(ctx, domain.UserFilter{Role: "customer"})
		if err != nil {
			t.Fatalf("GetAllUsers failed: %v", err)
		}
		if len(users) != 2 {
			t.Errorf("expected 2 customers, got %d", len(users))
		}
	})

	t.Run("BranchFilterIsSubstringCaseInsensitive", func(t *testing.T) {
		svc := newTestService(&fakeAPI{staff: sampleStaff()})

		users, err := svc.GetAllUsers(ctx, domain.UserFilter{Branch: "lag"})
		if err != nil {
			t.Fatalf("GetAllUsers failed: %v", err)
		}
		if len(users) != 4 {
			t.Errorf("expected 4 Lagos users, got %d", len(users))
		}
	})

	t.Run("ClientSidePagination", func(t *testing.T) {
		svc := newTestService(&fakeAPI{staff: sampleStaff()})

		page1, err := svc.GetUsers(ctx, domain.UserFilter{Page: 1, Limit: 4})
		if err != nil {
			t.Fatalf("GetUsers failed: %v", err)
		}
		if len(page1.Users) != 4 || page1.Total != 6 || page1.TotalPages != 2 {
			t.Errorf("unexpected page1: %+v", page1)
		}

		page2, err := svc.GetUsers(ctx, domain.UserFilter{Page: 2, Limit: 4})
		if err != nil {
			t.Fatalf("GetUsers failed: %v", err)
		}
		if len(page2.Users) != 2 || page2.Page != 2 {
			t.Errorf("unexpected page2: %+v", page2)
		}

		beyond, err := svc.GetUsers(ctx, domain.UserFilter{Page: 5, Limit: 4})
		if err != nil {
			t.Fatalf("GetUsers failed: %v", err)
		}
		if len(beyond.Users) != 0 {
			t.Errorf("expected empty page beyond range, got %d users", len(beyond.Users))
		}
	})

	t.Run("StaffListIsCachedAcrossFilters", func(t *testing.T) {
		api := &fakeAPI{staff: sampleStaff()}
		svc := newTestService(api)

		_, _ = svc.GetAllUsers(ctx, domain.UserFilter{Role: "customer"})
		_, _ = svc.GetAllUsers(ctx, domain.UserFilter{Role: "credit_officer"})
		_, _ = svc.GetUsers(ctx, domain.UserFilter{Branch: "Lagos"})

		if api.staffCalls != 1 {
			t.Errorf("expected one staff fetch, got %d", api.staffCalls)
		}
	})

	t.Run("FetchFailurePropagates", func(t *testing.T) {
		api := &fakeAPI{staffErr: errors.New("backend unavailable")}
		svc := newTestService(api)

		if _, err := svc.GetAllUsers(ctx, domain.UserFilter{}); err == nil {
			t.Error("expected fetch failure to propagate, not be swallowed")
		}
	})

	t.Run("MutationsInvalidateWholeCache", func(t *testing.T) {
		api := &fakeAPI{staff: sampleStaff()}
		svc := newTestService(api)

		_, _ = svc.GetAllUsers(ctx, domain.UserFilter{})
		if api.staffCalls != 1 {
			t.Fatalf("expected one fetch, got %d", api.staffCalls)
		}

		if _, err := svc.UpdateUser(ctx, "u1", &domain.User{ID: "u1", Role: "bm"}); err != nil {
			t.Fatalf("UpdateUser failed: %v", err)
		}

		_, _ = svc.GetAllUsers(ctx, domain.UserFilter{})
		if api.staffCalls != 2 {
			t.Errorf("expected refetch after mutation, got %d calls", api.staffCalls)
		}
	})
}
