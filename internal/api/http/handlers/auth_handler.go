package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/service"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// AuthHandler exposes signup, signin, second-factor and session endpoints.
type AuthHandler struct {
	auth    *service.AuthService
	cookies CookieConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{auth: authService, cookies: cookies}
}

// Signup handles POST /api/v1/auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	res, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return mapError(err)
	}

	h.cookies.setPending(c, res.Challenge.PendingToken, res.Challenge.ExpiresAt)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully. Please verify your email.",
		"data":    challengeResponse(res.Challenge, false),
	})
}

// Signin handles POST /api/v1/auth/signin.
func (h *AuthHandler) Signin(c *fiber.Ctx) error {
	var req dto.SigninRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	res, err := h.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return mapError(err)
	}
	return h.respondLogin(c, res)
}

// Google handles POST /api/v1/auth/google.
func (h *AuthHandler) Google(c *fiber.Ctx) error {
	var req dto.GoogleSigninRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	res, err := h.auth.SignInWithProvider(c.UserContext(), req.IDToken)
	if err != nil {
		return mapError(err)
	}
	return h.respondLogin(c, res)
}

func (h *AuthHandler) respondLogin(c *fiber.Ctx, res *service.AuthResult) error {
	if res.Challenge != nil {
		h.cookies.setPending(c, res.Challenge.PendingToken, res.Challenge.ExpiresAt)
		return c.JSON(fiber.Map{
			"message": "OTP required for signin",
			"data":    challengeResponse(res.Challenge, true),
		})
	}

	h.cookies.setRefresh(c, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	return c.JSON(fiber.Map{
		"message": "Signed in successfully",
		"data":    authResponse(res),
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	token := c.Cookies(RefreshCookie)
	if token == "" {
		return apperrors.NewUnauthorizedCode("SESSION_EXPIRED", "Session expired")
	}

	res, err := h.auth.Refresh(c.UserContext(), token)
	if err != nil {
		mapped := mapError(err)
		if apperrors.ToDomainError(mapped).HTTPStatus == http.StatusUnauthorized {
			h.cookies.clear(c, RefreshCookie)
		}
		return mapped
	}

	h.cookies.setRefresh(c, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	return c.JSON(fiber.Map{
		"message": "Token refreshed",
		"data":    authResponse(res),
	})
}

// Logout handles POST /api/v1/auth/logout. It always succeeds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := c.Cookies(RefreshCookie)
	h.cookies.clearAll(c)
	_ = h.auth.Logout(c.UserContext(), token)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// LogoutAll handles POST /api/v1/auth/logout-all.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.auth.LogoutAll(c.UserContext(), principal.IdentityID); err != nil {
		return mapError(err)
	}
	h.cookies.clearAll(c)
	return c.JSON(fiber.Map{"message": "Signed out from all devices"})
}

// VerifyOTP handles POST /api/v1/verify-otp.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	pending := c.Cookies(PendingCookie)
	if pending == "" {
		return apperrors.NewUnauthorizedCode("NO_OTP_TOKEN", "Authentication required: No temporary session token found.")
	}

	var req dto.VerifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	res, err := h.auth.VerifyOTP(c.UserContext(), pending, string(req.Code))
	if err != nil {
		return mapError(err)
	}

	h.cookies.clear(c, PendingCookie)
	h.cookies.setRefresh(c, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	return c.JSON(fiber.Map{
		"message": "OTP verified successfully",
		"data":    authResponse(res),
	})
}

// ResendOTP handles GET /api/v1/resend-otp.
func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	pending := c.Cookies(PendingCookie)
	if pending == "" {
		return apperrors.NewUnauthorizedCode("NO_OTP_TOKEN", "Authentication required: No temporary session token found.")
	}

	challenge, err := h.auth.ResendOTP(c.UserContext(), pending)
	if err != nil {
		if errors.Is(err, service.ErrChallengeExpired) {
			h.cookies.clear(c, PendingCookie)
		}
		return mapError(err)
	}

	h.cookies.setPending(c, challenge.PendingToken, challenge.ExpiresAt)
	return c.JSON(fiber.Map{
		"message": "OTP resent successfully",
		"data":    challengeResponse(challenge, false),
	})
}
