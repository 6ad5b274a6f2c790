package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
)

func TestHasPermissionDefaultsAndOverrides(t *testing.T) {
	engine := NewPermissionEngine(DefaultRoleTable())

	require.True(t, engine.HasPermission(domain.RoleUser, nil, PermSelfDelete))
	require.True(t, engine.HasPermission(domain.RoleUser, nil, PermRead))
	require.False(t, engine.HasPermission(domain.RoleUser, nil, PermAdminDelete))

	require.True(t, engine.HasPermission(domain.RoleUser, []string{string(PermAdminDelete)}, PermAdminDelete))

	require.True(t, engine.HasPermission(domain.RoleSuperAdmin, nil, PermAdminDelete))
	require.True(t, engine.HasPermission(domain.RoleSuperAdmin, nil, PermLogsView))
	require.True(t, engine.HasPermission(domain.RoleSuperAdmin, nil))

	require.False(t, engine.HasPermission(domain.RoleUser, nil))
	require.False(t, engine.HasPermission(domain.Role("ROBOT"), nil, PermRead))
}

func TestHasPermissionMatchesAny(t *testing.T) {
	engine := NewPermissionEngine(DefaultRoleTable())

	require.True(t, engine.HasPermission(domain.RoleGuest, nil, PermAdminManage, PermRead))
	require.False(t, engine.HasPermission(domain.RoleGuest, nil, PermAdminManage, PermCreate))
}

func TestOverrideWildcardGrantsEverything(t *testing.T) {
	engine := NewPermissionEngine(DefaultRoleTable())

	require.True(t, engine.HasPermission(domain.RoleGuest, []string{"*"}, PermUserBan))
}

func TestDefaultRoleTableIsNested(t *testing.T) {
	table := DefaultRoleTable()
	engine := NewPermissionEngine(table)

	for _, p := range table[domain.RoleGuest] {
		require.True(t, engine.HasPermission(domain.RoleUser, nil, p), "USER lacks %s", p)
	}
	for _, p := range table[domain.RoleUser] {
		require.True(t, engine.HasPermission(domain.RoleAdmin, nil, p), "ADMIN lacks %s", p)
	}
	require.Equal(t, []Permission{PermFullAccess}, table[domain.RoleSuperAdmin])
}

func TestEnforceDispatchesOnSelf(t *testing.T) {
	engine := NewPermissionEngine(DefaultRoleTable())
	user := Subject{ID: "u-1", Role: domain.RoleUser}

	require.NoError(t, engine.Enforce(user, "u-1", PermSelfDelete, PermUserDelete))

	err := engine.Enforce(user, "u-2", PermSelfDelete, PermUserDelete)
	require.ErrorIs(t, err, ErrForbidden)
	var denial *ForbiddenError
	require.True(t, errors.As(err, &denial))
	require.Equal(t, CodeNoOtherPermission, denial.Code)
	require.False(t, denial.Self)

	guest := Subject{ID: "g-1", Role: domain.RoleGuest}
	err = engine.Enforce(guest, "g-1", PermSelfDelete, PermUserDelete)
	require.True(t, errors.As(err, &denial))
	require.Equal(t, CodeNoSelfPermission, denial.Code)
	require.True(t, denial.Self)

	admin := Subject{ID: "a-1", Role: domain.RoleAdmin}
	require.NoError(t, engine.Enforce(admin, "u-1", PermSelfDelete, PermUserDelete))
}

func TestEnforceCustomDenials(t *testing.T) {
	engine := NewPermissionEngine(DefaultRoleTable())
	guest := Subject{ID: "g-1", Role: domain.RoleGuest}

	err := engine.Enforce(guest, "g-1", PermSelfDelete, PermUserDelete,
		WithSelfDenial("CANNOT_DELETE_SELF", "guests cannot delete themselves"))
	var denial *ForbiddenError
	require.True(t, errors.As(err, &denial))
	require.Equal(t, "CANNOT_DELETE_SELF", denial.Code)
	require.Equal(t, "guests cannot delete themselves", denial.Message)

	err = engine.Enforce(guest, "other", PermSelfDelete, PermUserDelete, WithOtherDenial("", "nope"))
	require.True(t, errors.As(err, &denial))
	require.Equal(t, CodeNoOtherPermission, denial.Code)
	require.Equal(t, "nope", denial.Message)
}

func TestEnforceEmptySubjectIsNeverSelf(t *testing.T) {
	engine := NewPermissionEngine(DefaultRoleTable())

	err := engine.Enforce(Subject{Role: domain.RoleUser}, "", PermSelfDelete, PermUserDelete)
	var denial *ForbiddenError
	require.True(t, errors.As(err, &denial))
	require.False(t, denial.Self)
}

func TestLoadRoleTableOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"guest": ["read", "self:read"], "USER": ["read"]}`), 0o600))

	table, err := LoadRoleTable(path)
	require.NoError(t, err)
	require.Equal(t, []Permission{PermRead, PermSelfRead}, table[domain.RoleGuest])
	require.Equal(t, []Permission{PermRead}, table[domain.RoleUser])
	require.Equal(t, DefaultRoleTable()[domain.RoleAdmin], table[domain.RoleAdmin])

	engine := NewPermissionEngine(table)
	require.False(t, engine.HasPermission(domain.RoleUser, nil, PermSelfDelete))
}

func TestLoadRoleTableRejectsUnknownEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ROBOT": ["read"], "USER": ["fly"]}`), 0o600))

	_, err := LoadRoleTable(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ROBOT")
	require.Contains(t, err.Error(), "fly")
}

func TestLoadRoleTableWithoutPathUsesDefaults(t *testing.T) {
	table, err := LoadRoleTable("")
	require.NoError(t, err)
	require.Equal(t, DefaultRoleTable(), table)
}
