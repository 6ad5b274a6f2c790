package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/notify"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/otp"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/secret"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/session"
)

type testServer struct {
	app        *fiber.App
	identities *repository.MemoryIdentityRepository
	tokens     *auth.TokenManager
}

func defaultLimits() config.RateLimitConfig {
	return config.RateLimitConfig{WindowMinutes: 15, Signup: 100, Signin: 100, Refresh: 100, ResendOTP: 100}
}

func newTestServer(t *testing.T, limits config.RateLimitConfig) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Access:  auth.ClassSpec{Secret: "access-secret", TTL: 15 * time.Minute},
		Refresh: auth.ClassSpec{Secret: "refresh-secret", TTL: 7 * 24 * time.Hour},
		Pending: auth.ClassSpec{Secret: "pending-secret", TTL: 5 * time.Minute},
	})
	require.NoError(t, err)
	cipher, err := secret.NewCipher("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	logger := zap.NewNop()
	identities := repository.NewMemoryIdentityRepository()
	sessions := session.NewRedisStore(client, "test")
	permissions := auth.NewPermissionEngine(auth.DefaultRoleTable())
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	auditService := service.NewAuditService(dispatcher, repository.NewMemoryAuditLogRepository(), metrics, logger)
	auditService.RegisterHandlers()

	authCfg := config.AuthConfig{BcryptCost: bcrypt.MinCost, ExposeOTP: true}
	authService, err := service.NewAuthService(authCfg, service.AuthDependencies{
		Identities: identities,
		Sessions:   sessions,
		Tokens:     tokens,
		Cipher:     cipher,
		OTP:        otp.NewEngine(otp.Config{Issuer: "test"}),
		Notifier:   notify.NewLogNotifier(logger),
		Events:     dispatcher,
		Logger:     logger,
	})
	require.NoError(t, err)
	identityService, err := service.NewIdentityService(authCfg.BcryptCost, service.IdentityDependencies{
		Identities:  identities,
		Sessions:    sessions,
		Permissions: permissions,
		Events:      dispatcher,
		Logger:      logger,
	})
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{
		RequestTimeout: 5 * time.Second,
		AllowedOrigins: []string{"https://app.example.com"},
	})

	cookies := handlers.CookieConfig{RefreshTTL: 7 * 24 * time.Hour, PendingTTL: 5 * time.Minute}
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("auth-service", "test", map[string]handlers.Pinger{"redis": sessions}),
		Auth:           handlers.NewAuthHandler(authService, cookies),
		Users:          handlers.NewUsersHandler(identityService, cookies),
		Admin:          handlers.NewAdminHandler(identityService, auditService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, nil),
		Permissions:    permissions,
		RateLimits:     limits,
		Metrics:        metrics.Handler(),
	})

	return &testServer{app: app, identities: identities, tokens: tokens}
}

type apiResponse struct {
	status  int
	header  nethttp.Header
	cookies map[string]*nethttp.Cookie
	body    map[string]any
}

func (r apiResponse) data(t *testing.T) map[string]any {
	t.Helper()
	data, ok := r.body["data"].(map[string]any)
	require.True(t, ok, "response has no data: %v", r.body)
	return data
}

func (r apiResponse) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

type requestOption func(*nethttp.Request)

func withBearer(token string) requestOption {
	return func(r *nethttp.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name, value string) requestOption {
	return func(r *nethttp.Request) { r.AddCookie(&nethttp.Cookie{Name: name, Value: value}) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode, header: resp.Header, cookies: map[string]*nethttp.Cookie{}}
	for _, c := range resp.Cookies() {
		out.cookies[c.Name] = c
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

// signupAndVerify registers email and completes the welcome code, returning
// the access token and the refresh cookie value.
func (s *testServer) signupAndVerify(t *testing.T, email, password string) (string, string) {
	t.Helper()
	signup := s.do(t, fiber.MethodPost, "/api/v1/auth/signup", map[string]any{
		"fullname": "Test Person",
		"email":    email,
		"password": password,
	})
	require.Equal(t, fiber.StatusCreated, signup.status, signup.body)
	pending := signup.cookies[handlers.PendingCookie]
	require.NotNil(t, pending)
	require.True(t, pending.HttpOnly)
	code, ok := signup.data(t)["otp"].(string)
	require.True(t, ok)

	verified := s.do(t, fiber.MethodPost, "/api/v1/verify-otp", map[string]any{"code": code},
		withCookie(handlers.PendingCookie, pending.Value))
	require.Equal(t, fiber.StatusOK, verified.status, verified.body)
	refresh := verified.cookies[handlers.RefreshCookie]
	require.NotNil(t, refresh)
	access, ok := verified.data(t)["accessToken"].(string)
	require.True(t, ok)
	return access, refresh.Value
}

func TestEndToEndRefreshReplayRevokesEverything(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	access, refresh := s.signupAndVerify(t, "jane@example.com", "password1")

	current := s.do(t, fiber.MethodGet, "/api/v1/user/current", nil, withBearer(access))
	require.Equal(t, fiber.StatusOK, current.status, current.body)
	user := current.data(t)["user"].(map[string]any)
	require.Equal(t, "jane@example.com", user["email"])
	require.Equal(t, true, user["isVerified"])

	signin := s.do(t, fiber.MethodPost, "/api/v1/auth/signin", map[string]any{"email": "jane@example.com", "password": "password1"})
	require.Equal(t, fiber.StatusOK, signin.status, signin.body)
	otherDevice := signin.cookies[handlers.RefreshCookie].Value

	rotated := s.do(t, fiber.MethodPost, "/api/v1/auth/refresh", nil, withCookie(handlers.RefreshCookie, refresh))
	require.Equal(t, fiber.StatusOK, rotated.status, rotated.body)
	newRefresh := rotated.cookies[handlers.RefreshCookie].Value
	require.NotEqual(t, refresh, newRefresh)

	replay := s.do(t, fiber.MethodPost, "/api/v1/auth/refresh", nil, withCookie(handlers.RefreshCookie, refresh))
	require.Equal(t, fiber.StatusUnauthorized, replay.status)
	require.Equal(t, "REFRESH_REUSE", replay.errorCode())

	for _, token := range []string{newRefresh, otherDevice} {
		res := s.do(t, fiber.MethodPost, "/api/v1/auth/refresh", nil, withCookie(handlers.RefreshCookie, token))
		require.Equal(t, fiber.StatusUnauthorized, res.status)
		require.Equal(t, "REFRESH_REUSE", res.errorCode())
	}
}

func TestSigninErrorsAndValidation(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	s.signupAndVerify(t, "jane@example.com", "password1")

	wrong := s.do(t, fiber.MethodPost, "/api/v1/auth/signin", map[string]any{"email": "jane@example.com", "password": "password2"})
	require.Equal(t, fiber.StatusUnauthorized, wrong.status)
	require.Equal(t, "INVALID_CREDENTIALS", wrong.errorCode())

	unknown := s.do(t, fiber.MethodPost, "/api/v1/auth/signin", map[string]any{"email": "nobody@example.com", "password": "password1"})
	require.Equal(t, "INVALID_CREDENTIALS", unknown.errorCode())

	weak := s.do(t, fiber.MethodPost, "/api/v1/auth/signup", map[string]any{"fullname": "X", "email": "x@example.com", "password": "short"})
	require.Equal(t, fiber.StatusBadRequest, weak.status)
	require.Equal(t, "VALIDATION_FAILED", weak.errorCode())

	dup := s.do(t, fiber.MethodPost, "/api/v1/auth/signup", map[string]any{"fullname": "X", "email": "jane@example.com", "password": "password9"})
	require.Equal(t, fiber.StatusConflict, dup.status)
}

func TestTwoFactorSigninFlow(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	access, _ := s.signupAndVerify(t, "jane@example.com", "password1")

	toggle := s.do(t, fiber.MethodPost, "/api/v1/user/toggle-2fa", nil, withBearer(access))
	require.Equal(t, fiber.StatusOK, toggle.status, toggle.body)
	require.Equal(t, true, toggle.data(t)["twoFactorEnabled"])

	signin := s.do(t, fiber.MethodPost, "/api/v1/auth/signin", map[string]any{"email": "jane@example.com", "password": "password1"})
	require.Equal(t, fiber.StatusOK, signin.status)
	require.Equal(t, "OTP required for signin", signin.body["message"])
	require.Nil(t, signin.cookies[handlers.RefreshCookie])
	pending := signin.cookies[handlers.PendingCookie].Value
	code := signin.data(t)["otp"].(string)

	asBearer := s.do(t, fiber.MethodGet, "/api/v1/user/current", nil, withBearer(pending))
	require.Equal(t, fiber.StatusUnauthorized, asBearer.status)
	require.Equal(t, "TOKEN_INVALID", asBearer.errorCode())

	noCookie := s.do(t, fiber.MethodPost, "/api/v1/verify-otp", map[string]any{"code": code})
	require.Equal(t, "NO_OTP_TOKEN", noCookie.errorCode())

	bad := s.do(t, fiber.MethodPost, "/api/v1/verify-otp", map[string]any{"code": "999999x"}, withCookie(handlers.PendingCookie, pending))
	require.Equal(t, fiber.StatusBadRequest, bad.status)

	ok := s.do(t, fiber.MethodPost, "/api/v1/verify-otp", map[string]any{"code": code}, withCookie(handlers.PendingCookie, pending))
	require.Equal(t, fiber.StatusOK, ok.status, ok.body)
	require.NotNil(t, ok.cookies[handlers.RefreshCookie])
}

func TestResendOTP(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	signup := s.do(t, fiber.MethodPost, "/api/v1/auth/signup", map[string]any{
		"fullname": "Test", "email": "t@example.com", "password": "password1",
	})
	require.Equal(t, fiber.StatusCreated, signup.status)

	res := s.do(t, fiber.MethodGet, "/api/v1/resend-otp", nil, withCookie(handlers.PendingCookie, signup.cookies[handlers.PendingCookie].Value))
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	require.NotNil(t, res.cookies[handlers.PendingCookie])

	expired := s.do(t, fiber.MethodGet, "/api/v1/resend-otp", nil, withCookie(handlers.PendingCookie, "garbage"))
	require.Equal(t, "SESSION_EXPIRED", expired.errorCode())
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	limits := defaultLimits()
	limits.Signin = 2
	s := newTestServer(t, limits)

	body := map[string]any{"email": "nobody@example.com", "password": "password1"}
	for i := 0; i < 2; i++ {
		res := s.do(t, fiber.MethodPost, "/api/v1/auth/signin", body)
		require.Equal(t, fiber.StatusUnauthorized, res.status)
	}

	limited := s.do(t, fiber.MethodPost, "/api/v1/auth/signin", body)
	require.Equal(t, fiber.StatusTooManyRequests, limited.status)
	require.Equal(t, "RATE_LIMITED", limited.errorCode())
	require.NotEmpty(t, limited.header.Get(fiber.HeaderRetryAfter))
}

func TestLogoutClearsCookiesAndSession(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	_, refresh := s.signupAndVerify(t, "jane@example.com", "password1")

	out := s.do(t, fiber.MethodPost, "/api/v1/auth/logout", nil, withCookie(handlers.RefreshCookie, refresh))
	require.Equal(t, fiber.StatusOK, out.status)
	require.Equal(t, "", out.cookies[handlers.RefreshCookie].Value)

	again := s.do(t, fiber.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, fiber.StatusOK, again.status)

	res := s.do(t, fiber.MethodPost, "/api/v1/auth/refresh", nil, withCookie(handlers.RefreshCookie, refresh))
	require.Equal(t, fiber.StatusUnauthorized, res.status)

	missing := s.do(t, fiber.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, "SESSION_EXPIRED", missing.errorCode())
}

func TestDeleteAndAdminRoutes(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	aliceAccess, _ := s.signupAndVerify(t, "alice@example.com", "password1")
	s.signupAndVerify(t, "bob@example.com", "password2")

	bob, err := s.identities.GetByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	alice, err := s.identities.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	denied := s.do(t, fiber.MethodDelete, "/api/v1/user/"+bob.ID, nil, withBearer(aliceAccess))
	require.Equal(t, fiber.StatusForbidden, denied.status)
	require.Equal(t, auth.CodeNoOtherPermission, denied.errorCode())

	logs := s.do(t, fiber.MethodGet, "/api/v1/admin/audit-logs", nil, withBearer(aliceAccess))
	require.Equal(t, fiber.StatusForbidden, logs.status)

	alice.Role = domain.RoleAdmin
	require.NoError(t, s.identities.Update(context.Background(), alice))
	adminPair, err := s.tokens.IssuePair(auth.SubjectOf(alice))
	require.NoError(t, err)

	logs = s.do(t, fiber.MethodGet, "/api/v1/admin/audit-logs?identity_id="+bob.ID+"&limit=5", nil, withBearer(adminPair.AccessToken))
	require.Equal(t, fiber.StatusOK, logs.status, logs.body)
	entries, ok := logs.body["data"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, entries)

	badFilter := s.do(t, fiber.MethodGet, "/api/v1/admin/audit-logs?event_type=ticket_created", nil, withBearer(adminPair.AccessToken))
	require.Equal(t, fiber.StatusBadRequest, badFilter.status)
	require.Equal(t, "VALIDATION_FAILED", badFilter.errorCode())

	grant := s.do(t, fiber.MethodPost, "/api/v1/admin/users/"+bob.ID+"/permissions",
		map[string]any{"permissions": []string{"logs:view"}}, withBearer(adminPair.AccessToken))
	require.Equal(t, fiber.StatusOK, grant.status, grant.body)

	deleted := s.do(t, fiber.MethodDelete, "/api/v1/user/"+bob.ID, nil, withBearer(adminPair.AccessToken))
	require.Equal(t, fiber.StatusOK, deleted.status, deleted.body)

	gone := s.do(t, fiber.MethodDelete, "/api/v1/user/"+bob.ID, nil, withBearer(adminPair.AccessToken))
	require.Equal(t, fiber.StatusNotFound, gone.status)
}

func TestHealthMetricsAndUnknownRoute(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	live := s.do(t, fiber.MethodGet, "/health/live", nil)
	require.Equal(t, fiber.StatusOK, live.status)

	ready := s.do(t, fiber.MethodGet, "/health/ready", nil)
	require.Equal(t, fiber.StatusOK, ready.status, ready.body)

	missing := s.do(t, fiber.MethodGet, "/nope", nil)
	require.Equal(t, fiber.StatusNotFound, missing.status)
	require.Equal(t, "NOT_FOUND", missing.errorCode())

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "http_requests_total")
}

func TestGlobalHeaders(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	withOrigin := func(origin string) requestOption {
		return func(r *nethttp.Request) { r.Header.Set(fiber.HeaderOrigin, origin) }
	}

	live := s.do(t, fiber.MethodGet, "/health/live", nil, withOrigin("https://app.example.com"))
	require.Equal(t, fiber.StatusOK, live.status)
	require.NotEmpty(t, live.header.Get(fiber.HeaderXRequestID))
	require.Equal(t, "nosniff", live.header.Get(fiber.HeaderXContentTypeOptions))
	require.Equal(t, "https://app.example.com", live.header.Get(fiber.HeaderAccessControlAllowOrigin))
	require.Equal(t, "true", live.header.Get(fiber.HeaderAccessControlAllowCredentials))

	foreign := s.do(t, fiber.MethodGet, "/health/live", nil, withOrigin("https://evil.example.com"))
	require.Empty(t, foreign.header.Get(fiber.HeaderAccessControlAllowOrigin))
}
