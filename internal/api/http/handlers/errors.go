package handlers

import (
	"errors"
	"net/http"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/session"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// mapError translates service and auth errors into transport errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var forbidden *auth.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		return apperrors.NewForbiddenCode(forbidden.Code, forbidden.Message)
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewUnauthorizedCode("INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, service.ErrInvalidOtp):
		return apperrors.NewUnauthorizedCode("INVALID_OTP", "Invalid or expired OTP")
	case errors.Is(err, service.ErrChallengeExpired):
		return apperrors.NewUnauthorizedCode("SESSION_EXPIRED", "Verification session expired. Please sign in again.")
	case errors.Is(err, service.ErrInvalidProviderToken):
		return apperrors.NewUnauthorizedCode("INVALID_PROVIDER_TOKEN", "Invalid Google token")
	case errors.Is(err, auth.ErrExpired):
		return apperrors.NewUnauthorizedCode("TOKEN_EXPIRED", "Token expired")
	case errors.Is(err, auth.ErrMalformed):
		return apperrors.NewUnauthorizedCode("TOKEN_INVALID", "Invalid token")
	case errors.Is(err, session.ErrReuseDetected):
		return apperrors.NewUnauthorizedCode("REFRESH_REUSE", "Session is no longer valid. All sessions have been signed out.")
	case errors.Is(err, service.ErrEmailTaken):
		return apperrors.NewConflict("User with email already exists", nil)
	case errors.Is(err, service.ErrUsernameTaken):
		return apperrors.NewConflict("Username already taken", nil)
	case errors.Is(err, service.ErrNoPassword):
		return apperrors.NewDomainError("NO_PASSWORD", "This action requires an account with a password.", http.StatusBadRequest, nil)
	case errors.Is(err, service.ErrIdentityNotFound):
		return apperrors.NewNotFound("user", nil)
	case errors.Is(err, service.ErrUnknownPermission):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, service.ErrDeliveryFailed):
		return apperrors.NewBadGateway("Could not deliver verification code", err)
	case errors.Is(err, session.ErrUnavailable):
		return &apperrors.DomainError{
			Code:       "SESSION_STORE_UNAVAILABLE",
			Message:    "session store unavailable",
			HTTPStatus: http.StatusServiceUnavailable,
			Err:        err,
		}
	}
	return apperrors.NewInternalError(err)
}
