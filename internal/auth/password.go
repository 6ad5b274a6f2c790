package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by ComparePassword for a wrong password.
var ErrPasswordMismatch = errors.New("auth: password mismatch")

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// PasswordChecker compares passwords and, when there is no identity to check
// against, burns the same bcrypt work against a throwaway hash.
type PasswordChecker struct {
	dummy string
}

// NewPasswordChecker precomputes the throwaway hash at cost.
func NewPasswordChecker(cost int) (*PasswordChecker, error) {
	dummy, err := HashPassword("not-a-real-password", cost)
	if err != nil {
		return nil, err
	}
	return &PasswordChecker{dummy: dummy}, nil
}

// Check returns nil only when hashed is non-empty and matches plain.
func (p *PasswordChecker) Check(hashed, plain string) error {
	if hashed == "" {
		_ = ComparePassword(p.dummy, plain)
		return ErrPasswordMismatch
	}
	return ComparePassword(hashed, plain)
}
