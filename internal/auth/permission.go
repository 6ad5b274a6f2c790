package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spec-kit/auth-service/internal/domain"
)

// Permission is a single grantable capability.
type Permission string

const (
	PermRead   Permission = "read"
	PermCreate Permission = "create"
	PermUpdate Permission = "update"
	PermDelete Permission = "delete"

	PermSelfRead   Permission = "self:read"
	PermSelfUpdate Permission = "self:update"
	PermSelfDelete Permission = "self:delete"

	PermUserRead   Permission = "user:read"
	PermUserUpdate Permission = "user:update"
	PermUserDelete Permission = "user:delete"

	PermAdminRead   Permission = "admin:read"
	PermAdminDelete Permission = "admin:delete"
	PermAdminManage Permission = "admin:manage"

	PermUserBan   Permission = "user:ban"
	PermUserUnban Permission = "user:unban"

	PermLogsView Permission = "logs:view"

	// PermFullAccess satisfies every permission check.
	PermFullAccess Permission = "*"
)

// Catalogue lists every known permission.
var Catalogue = []Permission{
	PermRead, PermCreate, PermUpdate, PermDelete,
	PermSelfRead, PermSelfUpdate, PermSelfDelete,
	PermUserRead, PermUserUpdate, PermUserDelete,
	PermAdminRead, PermAdminDelete, PermAdminManage,
	PermUserBan, PermUserUnban,
	PermLogsView,
	PermFullAccess,
}

// ParsePermission reports whether s names a catalogued permission.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.TrimSpace(s))
	for _, known := range Catalogue {
		if known == p {
			return p, true
		}
	}
	return "", false
}

// RoleTable maps each role to its default permissions.
type RoleTable map[domain.Role][]Permission

// DefaultRoleTable returns the built-in table.
func DefaultRoleTable() RoleTable {
	guest := []Permission{PermRead}
	user := append(append([]Permission(nil), guest...),
		PermCreate, PermUpdate, PermDelete,
		PermSelfRead, PermSelfUpdate, PermSelfDelete,
	)
	admin := append(append([]Permission(nil), user...),
		PermAdminRead, PermAdminDelete, PermAdminManage,
		PermUserRead, PermUserUpdate, PermUserDelete,
		PermUserBan, PermUserUnban,
		PermLogsView,
	)
	return RoleTable{
		domain.RoleGuest:      guest,
		domain.RoleUser:       user,
		domain.RoleAdmin:      admin,
		domain.RoleSuperAdmin: {PermFullAccess},
	}
}

// LoadRoleTable reads a JSON object of role name to permission list from path
// and lays it over the defaults. Roles missing from the file keep their
// defaults; unknown roles or permissions are rejected.
func LoadRoleTable(path string) (RoleTable, error) {
	table := DefaultRoleTable()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role table: %w", err)
	}

	var doc map[string][]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode role table: %w", err)
	}

	var errs []error
	for name, perms := range doc {
		role, ok := domain.ParseRole(name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown role %q", name))
			continue
		}
		parsed := make([]Permission, 0, len(perms))
		for _, raw := range perms {
			p, ok := ParsePermission(raw)
			if !ok {
				errs = append(errs, fmt.Errorf("role %s: unknown permission %q", role, raw))
				continue
			}
			parsed = append(parsed, p)
		}
		table[role] = parsed
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid role table: %w", err)
	}
	return table, nil
}

// ErrForbidden matches every denial returned by Enforce.
var ErrForbidden = errors.New("auth: forbidden")

// ForbiddenError is a permission denial with a stable code.
type ForbiddenError struct {
	Code    string
	Message string
	// Self is true when the caller acted on its own resource.
	Self bool
}

func (e *ForbiddenError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrForbidden) hold.
func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

const (
	CodeNoSelfPermission  = "NO_SELF_PERMISSION"
	CodeNoOtherPermission = "NO_OTHER_PERMISSION"

	defaultSelfMessage  = "You do not have permission to access your own resource."
	defaultOtherMessage = "You do not have permission to access this resource."
)

type enforceOptions struct {
	selfCode, selfMessage   string
	otherCode, otherMessage string
}

// EnforceOption customises the denial Enforce returns.
type EnforceOption func(*enforceOptions)

// WithSelfDenial overrides the code and message used when the caller acts on itself.
func WithSelfDenial(code, message string) EnforceOption {
	return func(o *enforceOptions) {
		if code != "" {
			o.selfCode = code
		}
		if message != "" {
			o.selfMessage = message
		}
	}
}

// WithOtherDenial overrides the code and message used when the caller acts on someone else.
func WithOtherDenial(code, message string) EnforceOption {
	return func(o *enforceOptions) {
		if code != "" {
			o.otherCode = code
		}
		if message != "" {
			o.otherMessage = message
		}
	}
}

// PermissionEngine evaluates role defaults plus per-identity overrides.
// It is immutable once built and safe for concurrent use.
type PermissionEngine struct {
	roles map[domain.Role]map[Permission]struct{}
}

// NewPermissionEngine builds an engine from table.
func NewPermissionEngine(table RoleTable) *PermissionEngine {
	roles := make(map[domain.Role]map[Permission]struct{}, len(table))
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		roles[role] = set
	}
	return &PermissionEngine{roles: roles}
}

// HasPermission reports whether role plus overrides grants the wildcard or
// any of required.
func (e *PermissionEngine) HasPermission(role domain.Role, overrides []string, required ...Permission) bool {
	defaults := e.roles[role]
	has := func(p Permission) bool {
		if _, ok := defaults[p]; ok {
			return true
		}
		for _, o := range overrides {
			if Permission(o) == p {
				return true
			}
		}
		return false
	}

	if has(PermFullAccess) {
		return true
	}
	for _, p := range required {
		if has(p) {
			return true
		}
	}
	return false
}

// Allows is HasPermission for an authenticated subject.
func (e *PermissionEngine) Allows(subject Subject, required ...Permission) bool {
	return e.HasPermission(subject.Role, subject.Overrides, required...)
}

// Enforce checks selfPerm when subject acts on its own resource (targetID
// equals its id) and otherPerm otherwise. It returns nil or a *ForbiddenError.
func (e *PermissionEngine) Enforce(subject Subject, targetID string, selfPerm, otherPerm Permission, opts ...EnforceOption) error {
	o := enforceOptions{
		selfCode:     CodeNoSelfPermission,
		selfMessage:  defaultSelfMessage,
		otherCode:    CodeNoOtherPermission,
		otherMessage: defaultOtherMessage,
	}
	for _, opt := range opts {
		opt(&o)
	}

	self := subject.ID != "" && subject.ID == targetID
	if self {
		if e.Allows(subject, selfPerm) {
			return nil
		}
		return &ForbiddenError{Code: o.selfCode, Message: o.selfMessage, Self: true}
	}
	if e.Allows(subject, otherPerm) {
		return nil
	}
	return &ForbiddenError{Code: o.otherCode, Message: o.otherMessage}
}
