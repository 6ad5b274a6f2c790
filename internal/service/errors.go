package service

import (
	"errors"

	"github.com/spec-kit/auth-service/internal/oauth"
)

var (
	// ErrInvalidCredentials covers unknown email, provider-only accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("service: invalid email or password")
	// ErrInvalidOtp covers every second-factor failure without saying which step failed.
	ErrInvalidOtp = errors.New("service: invalid or expired verification code")
	// ErrChallengeExpired means the pending token is missing, expired or forged.
	ErrChallengeExpired = errors.New("service: verification session expired or missing")
	// ErrEmailTaken is returned by Register for a duplicate email.
	ErrEmailTaken = errors.New("service: email already registered")
	// ErrDeliveryFailed means a one-time code could not be sent.
	ErrDeliveryFailed = errors.New("service: could not deliver verification code")
	// ErrNoPassword is returned for password operations on provider-only accounts.
	ErrNoPassword = errors.New("service: account has no password")
	// ErrIdentityNotFound is returned when the target identity does not exist.
	ErrIdentityNotFound = errors.New("service: identity not found")
	// ErrUnknownPermission is returned when granting a permission outside the catalogue.
	ErrUnknownPermission = errors.New("service: unknown permission")
	// ErrUsernameTaken is returned when a profile update picks a used username.
	ErrUsernameTaken = errors.New("service: username already taken")

	ErrInvalidProviderToken = oauth.ErrInvalidProviderToken
)
