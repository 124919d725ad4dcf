package auth

import (
	"fmt"
	"sort"

	"onboardline/internal/config"
)

const (
	RoleHRAdmin   = "hr_admin"
	RoleHR        = "hr"
	RoleCandidate = "candidate"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	CaseID     string
}

func (e ForbiddenError) Error() string {
	if e.CaseID != "" {
		return fmt.Sprintf("permission %s required for case %s", e.Permission, e.CaseID)
	}
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is the authenticated caller. Candidates are scoped to one case.
type Principal struct {
	ActorID string
	Role    string
	CaseID  string
}

func (p Principal) IsCandidate() bool {
	return p.Role == RoleCandidate
}

// Service provides RBAC helpers backed by the configured role table.
type Service struct {
	roles map[string]map[string]bool
}

func New(cfg *config.Config) Service {
	s := Service{roles: map[string]map[string]bool{}}
	if cfg == nil {
		return s
	}
	for id, role := range cfg.RBAC.Roles {
		perms := make(map[string]bool, len(role.Permissions))
		for _, p := range role.Permissions {
			perms[p] = true
		}
		s.roles[id] = perms
	}
	return s
}

func (s Service) KnownRole(role string) bool {
	_, ok := s.roles[role]
	return ok
}

// Permissions lists a role's permissions, sorted.
func (s Service) Permissions(role string) []string {
	out := make([]string, 0, len(s.roles[role]))
	for p := range s.roles[role] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Authorize checks perm for p. caseID scopes the check: a candidate only
// reaches its own case, either through perm itself or its ".own" variant.
func (s Service) Authorize(p Principal, perm, caseID string) error {
	perms := s.roles[p.Role]
	scoped := p.CaseID != ""
	if perms[perm] {
		if scoped && caseID != "" && p.CaseID != caseID {
			return ForbiddenError{Permission: perm, CaseID: caseID}
		}
		return nil
	}
	if caseID != "" && scoped && p.CaseID == caseID && perms[perm+".own"] {
		return nil
	}
	return ForbiddenError{Permission: perm, CaseID: caseID}
}
