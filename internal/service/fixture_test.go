package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/notify"
	"github.com/spec-kit/auth-service/internal/oauth"
	"github.com/spec-kit/auth-service/internal/otp"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/secret"
	"github.com/spec-kit/auth-service/internal/session"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type sentMessage struct {
	destination string
	template    string
	payload     notify.Payload
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (n *captureNotifier) Notify(_ context.Context, destination, template string, payload notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, sentMessage{destination: destination, template: template, payload: payload})
	return nil
}

func (n *captureNotifier) last(t *testing.T) sentMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "nothing was sent")
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	code, ok := n.last(t).payload["otp"].(string)
	require.True(t, ok)
	return code
}

type stubProvider struct {
	profile *oauth.Profile
}

func (p *stubProvider) Verify(_ context.Context, token string) (*oauth.Profile, error) {
	if token != "good-token" || p.profile == nil {
		return nil, oauth.ErrInvalidProviderToken
	}
	copied := *p.profile
	return &copied, nil
}

type fixture struct {
	identities *repository.MemoryIdentityRepository
	sessions   session.Store
	tokens     *auth.TokenManager
	notifier   *captureNotifier
	provider   *stubProvider
	audit      *repository.MemoryAuditLogRepository
	auth       *AuthService
	identity   *IdentityService
}

type fixtureSettings struct {
	cfg      config.AuthConfig
	sessions session.Store
	clock    func() time.Time
}

type fixtureOption func(*fixtureSettings)

func withSingleUsePending() fixtureOption {
	return func(s *fixtureSettings) { s.cfg.PendingSingleUse = true }
}

// withRedisSessions backs the whitelist with a miniredis instance.
func withRedisSessions(t *testing.T) fixtureOption {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return func(s *fixtureSettings) { s.sessions = session.NewRedisStore(client, "test") }
}

// withTokenClock pins the clock tokens are issued and verified against.
func withTokenClock(now func() time.Time) fixtureOption {
	return func(s *fixtureSettings) { s.clock = now }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	settings := fixtureSettings{cfg: config.AuthConfig{BcryptCost: bcrypt.MinCost, ExposeOTP: true}}
	for _, opt := range opts {
		opt(&settings)
	}
	cfg := settings.cfg
	if settings.sessions == nil {
		settings.sessions = session.NewMemoryStore(nil)
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Access:  auth.ClassSpec{Secret: "access-secret", TTL: 15 * time.Minute},
		Refresh: auth.ClassSpec{Secret: "refresh-secret", TTL: 7 * 24 * time.Hour},
		Pending: auth.ClassSpec{Secret: "pending-secret", TTL: 5 * time.Minute},
		Clock:   settings.clock,
	})
	require.NoError(t, err)
	cipher, err := secret.NewCipher(testEncryptionKey)
	require.NoError(t, err)

	f := &fixture{
		identities: repository.NewMemoryIdentityRepository(),
		sessions:   settings.sessions,
		tokens:     tokens,
		notifier:   &captureNotifier{},
		provider:   &stubProvider{},
		audit:      repository.NewMemoryAuditLogRepository(),
	}

	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, f.audit, nil, zap.NewNop()).RegisterHandlers()

	f.auth, err = NewAuthService(cfg, AuthDependencies{
		Identities: f.identities,
		Sessions:   f.sessions,
		Tokens:     tokens,
		Cipher:     cipher,
		OTP:        otp.NewEngine(otp.Config{Issuer: "test"}),
		Notifier:   f.notifier,
		Provider:   f.provider,
		Events:     dispatcher,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)

	f.identity, err = NewIdentityService(cfg.BcryptCost, IdentityDependencies{
		Identities:  f.identities,
		Sessions:    f.sessions,
		Permissions: auth.NewPermissionEngine(auth.DefaultRoleTable()),
		Events:      dispatcher,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return f
}

// registerVerified signs up email and completes the welcome code, returning
// the verified result.
func (f *fixture) registerVerified(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	ctx := context.Background()
	reg, err := f.auth.Register(ctx, RegisterInput{FullName: "Test Person", Email: email, Password: password})
	require.NoError(t, err)
	res, err := f.auth.VerifyOTP(ctx, reg.Challenge.PendingToken, f.notifier.lastCode(t))
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	return res
}

func (f *fixture) auditTypes(t *testing.T, identityID string) []string {
	t.Helper()
	entries, err := f.audit.List(context.Background(), repository.AuditFilter{IdentityID: identityID, Limit: 500})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EventType)
	}
	return out
}

var errSMTPDown = errors.New("smtp down")
