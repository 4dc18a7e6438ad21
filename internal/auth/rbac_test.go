package auth_test

import (
	"context"
	"errors"
	"testing"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/store/memory"
)

func newTestRBAC(t *testing.T) (*auth.RBACService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return rbac, store
}

func TestCreatePermission(t *testing.T) {
	rbac, _ := newTestRBAC(t)
	ctx := context.Background()

	perm, err := rbac.CreatePermission(ctx, "", "Read documents", "Documents", "Read")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if perm.Name != "documents:read" {
		t.Errorf("name = %q, want documents:read", perm.Name)
	}
	if perm.Resource != "documents" || perm.Action != "read" {
		t.Errorf("resource/action = %q/%q", perm.Resource, perm.Action)
	}

	if _, err := rbac.CreatePermission(ctx, "", "", "", "read"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("missing resource = %v, want ErrInvalidInput", err)
	}
	if _, err := rbac.CreatePermission(ctx, "wrong:name", "", "documents", "write"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("mismatched name = %v, want ErrInvalidInput", err)
	}
	if _, err := rbac.CreatePermission(ctx, "", "", "documents", "read"); !errors.Is(err, auth.ErrDuplicateName) {
		t.Fatalf("duplicate = %v, want ErrDuplicateName", err)
	}
}

func TestGroupPermissions(t *testing.T) {
	perms := []auth.Permission{
		{Name: "documents:write", Resource: "documents", Action: "write"},
		{Name: "documents:read", Resource: "documents", Action: "read"},
		{Name: "users:manage", Resource: "users", Action: "manage"},
		{Name: "legacy", Resource: "", Action: "legacy"},
	}
	grouped := auth.GroupPermissions(perms)
	if len(grouped["documents"]) != 2 {
		t.Fatalf("documents group = %d entries, want 2", len(grouped["documents"]))
	}
	if grouped["documents"][0].Action != "read" || grouped["documents"][1].Action != "write" {
		t.Error("documents group not ordered by action")
	}
	if len(grouped["other"]) != 1 {
		t.Error("blank resource did not group under other")
	}
}

func TestCreateRoleAtomic(t *testing.T) {
	rbac, _ := newTestRBAC(t)
	ctx := context.Background()

	read, err := rbac.CreatePermission(ctx, "", "", "documents", "read")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	// One unknown id fails the whole create; nothing is persisted.
	if _, err := rbac.CreateRole(ctx, "editor", "", []string{read.ID, "missing-id"}, false); !errors.Is(err, auth.ErrUnknownPermission) {
		t.Fatalf("CreateRole with unknown perm = %v, want ErrUnknownPermission", err)
	}
	roles, err := rbac.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("roles after failed create = %d, want 0", len(roles))
	}

	role, err := rbac.CreateRole(ctx, "editor", "Can read documents", []string{read.ID, read.ID}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	_, perms, err := rbac.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("role perms = %d, want 1 (duplicate ids collapse)", len(perms))
	}

	if _, err := rbac.CreateRole(ctx, "editor", "", nil, false); !errors.Is(err, auth.ErrDuplicateName) {
		t.Fatalf("duplicate role = %v, want ErrDuplicateName", err)
	}
	if _, err := rbac.CreateRole(ctx, "  ", "", nil, false); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("blank role name = %v, want ErrInvalidInput", err)
	}
}

func TestDeleteRoleProtectsSystemRoles(t *testing.T) {
	rbac, _ := newTestRBAC(t)
	ctx := context.Background()

	system, err := rbac.CreateRole(ctx, "admin", "", nil, true)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	normal, err := rbac.CreateRole(ctx, "viewer", "", nil, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := rbac.DeleteRole(ctx, system.ID); !errors.Is(err, auth.ErrSystemRoleProtected) {
		t.Fatalf("DeleteRole(system) = %v, want ErrSystemRoleProtected", err)
	}
	if err := rbac.DeleteRole(ctx, normal.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if err := rbac.DeleteRole(ctx, normal.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("DeleteRole(gone) = %v, want ErrNotFound", err)
	}
}

func TestEffectivePermissionsUnion(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	user := &auth.User{Email: "a@example.com", PasswordHash: "x", IsActive: true}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	read, _ := rbac.CreatePermission(ctx, "", "", "documents", "read")
	write, _ := rbac.CreatePermission(ctx, "", "", "documents", "write")

	viewer, err := rbac.CreateRole(ctx, "viewer", "", []string{read.ID}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	editor, err := rbac.CreateRole(ctx, "editor", "", []string{read.ID, write.ID}, false)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := rbac.AssignRole(ctx, user.ID, viewer.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := rbac.AssignRole(ctx, user.ID, editor.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	// Assigning twice is a no-op.
	if err := rbac.AssignRole(ctx, user.ID, viewer.ID); err != nil {
		t.Fatalf("repeat AssignRole: %v", err)
	}

	perms, err := rbac.EffectivePermissions(ctx, user.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("effective perms = %d, want 2 (deduplicated union)", len(perms))
	}

	set, err := rbac.EffectivePermissionSet(ctx, user.ID)
	if err != nil {
		t.Fatalf("EffectivePermissionSet: %v", err)
	}
	if _, ok := set["documents:read"]; !ok {
		t.Error("missing documents:read")
	}
	if _, ok := set["documents:write"]; !ok {
		t.Error("missing documents:write")
	}

	// Unassigning editor drops write but keeps read via viewer.
	if err := rbac.UnassignRole(ctx, user.ID, editor.ID); err != nil {
		t.Fatalf("UnassignRole: %v", err)
	}
	set, err = rbac.EffectivePermissionSet(ctx, user.ID)
	if err != nil {
		t.Fatalf("EffectivePermissionSet: %v", err)
	}
	if _, ok := set["documents:write"]; ok {
		t.Error("documents:write survived unassign")
	}
	if _, ok := set["documents:read"]; !ok {
		t.Error("documents:read lost on unrelated unassign")
	}
	// Unassigning an absent association is a no-op.
	if err := rbac.UnassignRole(ctx, user.ID, editor.ID); err != nil {
		t.Fatalf("repeat UnassignRole: %v", err)
	}
}

func TestEnsureSystemRole(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	if err := store.Permissions(ctx).Ensure(ctx, auth.BuiltinPermissions); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}
	role, err := rbac.EnsureSystemRole(ctx, "admin", "Full access", []string{auth.PermRolesManage, auth.PermUsersManage})
	if err != nil {
		t.Fatalf("EnsureSystemRole: %v", err)
	}
	if !role.IsSystemRole {
		t.Error("admin is not a system role")
	}
	again, err := rbac.EnsureSystemRole(ctx, "admin", "Full access", nil)
	if err != nil {
		t.Fatalf("repeat EnsureSystemRole: %v", err)
	}
	if again.ID != role.ID {
		t.Error("EnsureSystemRole created a second role")
	}
	_, perms, err := rbac.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("admin perms = %d, want 2", len(perms))
	}
}
