package rbac

import (
	"context"
	"sort"
	"strings"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// actionOrder lists the common verbs from reads to writes to admin work.
// Unlisted actions sort after these, by name.
var actionOrder = map[string]int{
	"view":    1,
	"list":    2,
	"read":    3,
	"create":  4,
	"add":     5,
	"edit":    6,
	"update":  7,
	"modify":  8,
	"delete":  9,
	"remove":  10,
	"export":  11,
	"import":  12,
	"approve": 13,
	"audit":   14,
}

func actionRank(action string) int {
	if rank, ok := actionOrder[action]; ok {
		return rank
	}
	return len(actionOrder) + 1
}

func sortActions(actions []string) {
	sort.SliceStable(actions, func(i, j int) bool {
		ri, rj := actionRank(actions[i]), actionRank(actions[j])
		if ri != rj {
			return ri < rj
		}
		return actions[i] < actions[j]
	})
}

func normalizeSearch(q SearchQuery) (SearchQuery, error) {
	q.Keyword = strings.TrimSpace(q.Keyword)
	if q.Limit == 0 {
		q.Limit = DefaultSearchLimit
	}
	v := validation.NewValidator()
	v.Field("keyword", q.Keyword).Required()
	v.Field("limit", int64(q.Limit)).
		MinInt(1, errors.ErrCodeValidationFailed).
		MaxInt(MaxSearchLimit, errors.ErrCodeValidationFailed)
	v.Field("offset", int64(q.Offset)).
		MinInt(0, errors.ErrCodeValidationFailed)
	return q, validation.Err(v.Validate())
}

// SearchRoles pages roles whose name or code contains the keyword.
func (s *Service) SearchRoles(ctx context.Context, q SearchQuery) ([]*Role, error) {
	q, err := normalizeSearch(q)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.SearchRoles(ctx, q.Keyword, q.Limit, q.Offset)
	if err != nil {
		return nil, s.storeError(ctx, "failed to search roles", err)
	}
	return rolesFromDataModel(roles), nil
}

// SearchPermissions pages permissions whose name, code, resource or action
// contains the keyword.
func (s *Service) SearchPermissions(ctx context.Context, q SearchQuery) ([]*Permission, error) {
	q, err := normalizeSearch(q)
	if err != nil {
		return nil, err
	}
	perms, err := s.repo.SearchPermissions(ctx, q.Keyword, q.Limit, q.Offset)
	if err != nil {
		return nil, s.storeError(ctx, "failed to search permissions", err)
	}
	return permissionsFromDataModel(perms), nil
}

// ResourceTypes returns the distinct resource types in alphabetical order.
func (s *Service) ResourceTypes(ctx context.Context) ([]string, error) {
	types, err := s.repo.ResourceTypes(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list resource types", err)
	}
	sort.Strings(types)
	return types, nil
}

// ActionTypes returns the distinct action types, common verbs first.
func (s *Service) ActionTypes(ctx context.Context) ([]string, error) {
	types, err := s.repo.ActionTypes(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list action types", err)
	}
	sortActions(types)
	return types, nil
}

func (s *Service) RoleStatistics(ctx context.Context) (*RoleStatistics, error) {
	usage, err := s.repo.RoleUsage(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "failed to count role usage", err)
	}

	stats := &RoleStatistics{TotalRoles: len(usage), Roles: usage}
	if stats.Roles == nil {
		stats.Roles = []RoleUsage{}
	}
	for _, u := range usage {
		if RoleStatus(u.Status) == RoleEnabled {
			stats.EnabledRoles++
		} else {
			stats.DisabledRoles++
		}
	}
	return stats, nil
}

func (s *Service) PermissionStatistics(ctx context.Context) (*PermissionStatistics, error) {
	perms, err := s.ListPermissions(ctx, "")
	if err != nil {
		return nil, err
	}

	stats := &PermissionStatistics{
		TotalPermissions: len(perms),
		Resources:        make(map[string]ResourceUsage),
		Actions:          make(map[string]ActionUsage),
	}
	for _, p := range perms {
		r := stats.Resources[p.ResourceType]
		r.PermissionCount++
		r.Actions = appendUnique(r.Actions, p.ActionType)
		stats.Resources[p.ResourceType] = r

		a := stats.Actions[p.ActionType]
		a.PermissionCount++
		a.Resources = appendUnique(a.Resources, p.ResourceType)
		stats.Actions[p.ActionType] = a
	}
	for name, r := range stats.Resources {
		sortActions(r.Actions)
		stats.Resources[name] = r
	}
	for name, a := range stats.Actions {
		sort.Strings(a.Resources)
		stats.Actions[name] = a
	}
	stats.ResourceCount = len(stats.Resources)
	stats.ActionCount = len(stats.Actions)
	return stats, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
