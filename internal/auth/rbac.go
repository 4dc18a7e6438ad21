package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"authgrid.dev/internal/ids"
)

// RBACService owns the permission catalog, roles, and user assignments.
type RBACService struct {
	store Store
}

// NewRBACService constructs an RBACService.
func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("auth: rbac store is required")
	}
	return &RBACService{store: store}, nil
}

// CreatePermission adds a permission named "<resource>:<action>".
func (s *RBACService) CreatePermission(ctx context.Context, name, description, resource, action string) (Permission, error) {
	resource = strings.TrimSpace(strings.ToLower(resource))
	action = strings.TrimSpace(strings.ToLower(action))
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = resource + ":" + action
	}
	if name != resource+":"+action {
		return Permission{}, fmt.Errorf("%w: permission name must be %q", ErrInvalidInput, resource+":"+action)
	}
	perm := &Permission{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Resource:    resource,
		Action:      action,
	}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

// ListPermissions returns the full catalog ordered by name.
func (s *RBACService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// GroupPermissions maps resource -> permissions ordered by action. A blank
// resource groups under "other".
func GroupPermissions(perms []Permission) map[string][]Permission {
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		key := p.Resource
		if strings.TrimSpace(key) == "" {
			key = "other"
		}
		grouped[key] = append(grouped[key], p)
	}
	for key := range grouped {
		sort.Slice(grouped[key], func(i, j int) bool {
			return grouped[key][i].Action < grouped[key][j].Action
		})
	}
	return grouped
}

// CreateRole creates a role with its permission set. Every permission id is
// validated before anything is persisted; partial association sets are
// never written.
func (s *RBACService) CreateRole(ctx context.Context, name, description string, permissionIDs []string, isSystemRole bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		ID:           ids.New(),
		Name:         name,
		Description:  strings.TrimSpace(description),
		IsSystemRole: isSystemRole,
	}
	if err := s.store.Roles(ctx).Create(ctx, role, dedupeStrings(permissionIDs)); err != nil {
		return Role{}, err
	}
	return *role, nil
}

// ListRoles returns all roles ordered by name.
func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// GetRole returns one role with its permission set.
func (s *RBACService) GetRole(ctx context.Context, roleID string) (Role, []Permission, error) {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return Role{}, nil, err
	}
	perms, err := s.store.Permissions(ctx).ForRole(ctx, roleID)
	if err != nil {
		return Role{}, nil, err
	}
	return *role, perms, nil
}

// DeleteRole removes a role and its associations. System roles are
// protected and the deletion fails without touching anything.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRoleProtected
	}
	return s.store.Roles(ctx).Delete(ctx, roleID)
}

// AssignRole adds the user/role association; assigning twice is a no-op.
func (s *RBACService) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Assign(ctx, userID, roleID)
}

// UnassignRole removes the association; removing an absent one is a no-op.
func (s *RBACService) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Unassign(ctx, userID, roleID)
}

// EffectivePermissions recomputes the union of permissions across all of
// the user's roles, deduplicated by permission id.
func (s *RBACService) EffectivePermissions(ctx context.Context, userID string) ([]Permission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).ForUser(ctx, userID)
}

// EffectivePermissionSet is EffectivePermissions keyed by name for O(1)
// membership checks.
func (s *RBACService) EffectivePermissionSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p.Name] = struct{}{}
	}
	return set, nil
}

// EnsureSystemRole makes sure a system role with the given permissions
// exists; used at startup to seed the builtin admin role.
func (s *RBACService) EnsureSystemRole(ctx context.Context, name, description string, permissionNames []string) (Role, error) {
	roles := s.store.Roles(ctx)
	if existing, err := roles.FindByName(ctx, name); err == nil {
		return *existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	perms, err := s.store.Permissions(ctx).List(ctx)
	if err != nil {
		return Role{}, err
	}
	wanted := make(map[string]struct{}, len(permissionNames))
	for _, n := range permissionNames {
		wanted[n] = struct{}{}
	}
	var permIDs []string
	for _, p := range perms {
		if _, ok := wanted[p.Name]; ok {
			permIDs = append(permIDs, p.ID)
		}
	}
	return s.CreateRole(ctx, name, description, permIDs, true)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
