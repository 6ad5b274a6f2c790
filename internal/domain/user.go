package domain

import "time"

// Identity is the authenticable principal.
type Identity struct {
	ID       string
	FullName string
	Username string
	Email    string
	// PasswordHash is empty for accounts created through an identity provider.
	PasswordHash string
	GoogleID     string
	ProfileImage string

	Role                Role
	PermissionOverrides []string

	// SecretSeed holds the encrypted TOTP seed, never the plaintext.
	SecretSeed       string
	TwoFactorEnabled bool
	IsVerified       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the identity can sign in with a password.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.PermissionOverrides != nil {
		out.PermissionOverrides = append([]string(nil), i.PermissionOverrides...)
	}
	return &out
}
