package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// RefreshCookie carries the refresh token.
	RefreshCookie = "refresh_token"
	// PendingCookie carries the pending second-factor token.
	PendingCookie = "session"
)

// CookieConfig controls the session cookies.
type CookieConfig struct {
	Secure     bool
	RefreshTTL time.Duration
	PendingTTL time.Duration
}

func (cfg CookieConfig) set(c *fiber.Ctx, name, value string, ttl time.Duration, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   cfg.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (cfg CookieConfig) clear(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   cfg.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (cfg CookieConfig) setRefresh(c *fiber.Ctx, token string, expiresAt time.Time) {
	cfg.set(c, RefreshCookie, token, cfg.RefreshTTL, expiresAt)
}

func (cfg CookieConfig) setPending(c *fiber.Ctx, token string, expiresAt time.Time) {
	cfg.set(c, PendingCookie, token, cfg.PendingTTL, expiresAt)
}

func (cfg CookieConfig) clearAll(c *fiber.Ctx) {
	cfg.clear(c, RefreshCookie)
	cfg.clear(c, PendingCookie)
}
