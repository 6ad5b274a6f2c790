package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/service"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// UsersHandler exposes endpoints for the signed-in identity.
type UsersHandler struct {
	identities *service.IdentityService
	cookies    CookieConfig
}

// NewUsersHandler constructs handler.
func NewUsersHandler(identityService *service.IdentityService, cookies CookieConfig) *UsersHandler {
	return &UsersHandler{identities: identityService, cookies: cookies}
}

// Current handles GET /api/v1/user/current.
func (h *UsersHandler) Current(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	identity, err := h.identities.Profile(c.UserContext(), principal.IdentityID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": identityResponse(identity)}})
}

// ToggleTwoFactor handles POST /api/v1/user/toggle-2fa.
func (h *UsersHandler) ToggleTwoFactor(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	identity, err := h.identities.ToggleTwoFactor(c.UserContext(), principal.IdentityID)
	if err != nil {
		if errors.Is(err, service.ErrNoPassword) {
			return apperrors.NewDomainError("NO_PASSWORD", "2FA cannot be toggled for accounts without a password.", fiber.StatusBadRequest, nil)
		}
		return mapError(err)
	}

	message := "Two-factor authentication disabled"
	if identity.TwoFactorEnabled {
		message = "Two-factor authentication enabled"
	}
	return c.JSON(fiber.Map{
		"message": message,
		"data":    fiber.Map{"twoFactorEnabled": identity.TwoFactorEnabled},
	})
}

// ChangePassword handles PATCH /api/v1/user/change-password. Every session
// is revoked, so the caller must sign in again.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	err = h.identities.ChangePassword(c.UserContext(), principal.IdentityID, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewDomainError("INVALID_CREDENTIALS", "Incorrect old password", fiber.StatusBadRequest, nil)
	case errors.Is(err, service.ErrNoPassword):
		return apperrors.NewDomainError("NO_PASSWORD", "Password cannot be changed for accounts created with Google.", fiber.StatusBadRequest, nil)
	case err != nil:
		return mapError(err)
	}

	h.cookies.clearAll(c)
	return c.JSON(fiber.Map{"message": "Password changed successfully. Please sign in again."})
}

// Update handles PATCH /api/v1/user/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	identity, err := h.identities.UpdateProfile(c.UserContext(), principal.Principal(), c.Params("id"), service.ProfileUpdate{
		FullName: req.FullName,
		Username: req.Username,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"data":    fiber.Map{"user": identityResponse(identity)},
	})
}

// Delete handles DELETE /api/v1/user/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	targetID := c.Params("id")
	if err := h.identities.Delete(c.UserContext(), principal.Principal(), targetID); err != nil {
		return mapError(err)
	}
	if targetID == principal.IdentityID {
		h.cookies.clearAll(c)
	}
	return c.JSON(fiber.Map{"message": "Account deleted successfully"})
}

func principalOf(c *fiber.Ctx) (*auth.Claims, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}
