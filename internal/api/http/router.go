package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Permissions    *auth.PermissionEngine
	RateLimits     config.RateLimitConfig
	// Metrics is served at /metrics when set.
	Metrics nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	window := cfg.RateLimits.Window()
	signupLimit := NewRateLimiter(cfg.RateLimits.Signup, window).Handler()
	signinLimit := NewRateLimiter(cfg.RateLimits.Signin, window).Handler()
	refreshLimit := NewRateLimiter(cfg.RateLimits.Refresh, window).Handler()
	resendLimit := NewRateLimiter(cfg.RateLimits.ResendOTP, window).Handler()

	v1 := app.Group("/api/v1")
	requireAuth := cfg.AuthMiddleware.Handle
	allow := func(perms ...auth.Permission) fiber.Handler {
		return auth.RequirePermission(cfg.Permissions, perms...)
	}

	authGroup := v1.Group("/auth")
	authGroup.Post("/signup", signupLimit, cfg.Auth.Signup)
	authGroup.Post("/signin", signinLimit, cfg.Auth.Signin)
	authGroup.Post("/google", signinLimit, cfg.Auth.Google)
	authGroup.Post("/refresh", refreshLimit, cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Post("/logout-all", requireAuth, cfg.Auth.LogoutAll)

	v1.Post("/verify-otp", signinLimit, cfg.Auth.VerifyOTP)
	v1.Get("/resend-otp", resendLimit, cfg.Auth.ResendOTP)

	users := v1.Group("/user", requireAuth)
	users.Get("/current", allow(auth.PermSelfRead), cfg.Users.Current)
	users.Post("/toggle-2fa", allow(auth.PermSelfUpdate), cfg.Users.ToggleTwoFactor)
	users.Patch("/change-password", allow(auth.PermSelfUpdate), cfg.Users.ChangePassword)
	users.Patch("/:id", allow(auth.PermSelfUpdate, auth.PermUserUpdate), cfg.Users.Update)
	users.Delete("/:id", allow(auth.PermSelfDelete, auth.PermUserDelete), cfg.Users.Delete)

	admin := v1.Group("/admin", requireAuth)
	admin.Get("/audit-logs", allow(auth.PermLogsView), cfg.Admin.AuditLogs)
	admin.Post("/users/:id/permissions", allow(auth.PermAdminManage), cfg.Admin.GrantPermissions)
	admin.Delete("/users/:id/permissions", allow(auth.PermAdminManage), cfg.Admin.RevokePermissions)
}
