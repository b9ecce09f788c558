// Package directory fetches and normalizes staff and customer records,
// reconciling the backend's inconsistent role naming.
package directory

import "strings"

// Canonical role names used throughout Kestrel.
const (
	RoleCreditOfficer = "credit_officer"
	RoleBranchManager = "branch_manager"
	RoleHQManager     = "hq_manager"
	RoleSystemAdmin   = "system_admin"
	RoleCustomer      = "customer"
)

// roleSynonyms maps each canonical role to the raw spellings the backend
// has been observed to emit. The customer role is deliberately absent:
// it matches exactly or not at all, so that staff roles containing
// "customer" (e.g. "customer_support") are never misclassified.
var roleSynonyms = map[string]map[string]bool{
	RoleCreditOfficer: {
		"credit_officer": true,
		"creditofficer":  true,
		"credit officer": true,
		"credit-officer": true,
		"co":             true,
	},
	RoleBranchManager: {
		"branch_manager": true,
		"branchmanager":  true,
		"branch manager": true,
		"branch-manager": true,
		"bm":             true,
	},
	RoleHQManager: {
		"hq_manager": true,
		"hqmanager":  true,
		"hq manager": true,
		"hq-manager": true,
		"hq":         true,
	},
	RoleSystemAdmin: {
		"system_admin": true,
		"systemadmin":  true,
		"system admin": true,
		"system-admin": true,
		"admin":        true,
		"sa":           true,
	},
}

// roleKeywords decides which synonym set a requested role falls into:
// a requested role containing every keyword (case-insensitive) accepts
// any spelling in the corresponding set.
var roleKeywords = []struct {
	canonical string
	keywords  []string
}{
	{RoleCreditOfficer, []string{"credit", "officer"}},
	{RoleBranchManager, []string{"branch", "manager"}},
	{RoleHQManager, []string{"hq"}},
	{RoleSystemAdmin, []string{"admin"}},
}

// MatchRole reports whether a raw backend role satisfies the requested
// role. Exact match wins first; otherwise the keyword heuristic selects
// a synonym set. Customer is exact-match-only.
func MatchRole(requested, raw string) bool {
	req := strings.ToLower(strings.TrimSpace(requested))
	got := strings.ToLower(strings.TrimSpace(raw))

	if req == "" {
		return true
	}
	if req == got {
		return true
	}
	if req == RoleCustomer {
		return false
	}

	for _, rk := range roleKeywords {
		if containsAll(req, rk.keywords) {
			return roleSynonyms[rk.canonical][got]
		}
	}
	return false
}

func containsAll(s string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(s, kw) {
			return false
		}
	}
	return true
}
