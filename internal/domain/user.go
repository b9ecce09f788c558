package domain

// User is a normalized staff or customer record. The backend's role field
// is free text; the directory service normalizes it before filtering.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Branch    string `json:"branch"`
	State     string `json:"state"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// UserFilter selects users by role, branch, and state, with client-side
// pagination over the filtered result.
type UserFilter struct {
	Role   string `json:"role,omitempty"`
	Branch string `json:"branch,omitempty"`
	State  string `json:"state,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// PaginatedUsers is a page of filtered users.
type PaginatedUsers struct {
	Users      []User `json:"users"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}
