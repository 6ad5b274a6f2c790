package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/notify"
	"github.com/spec-kit/auth-service/internal/oauth"
	"github.com/spec-kit/auth-service/internal/otp"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/secret"
	"github.com/spec-kit/auth-service/internal/session"
)

const (
	methodPassword = "password"
	methodGoogle   = "google"
	methodOTP      = "otp"
)

// Challenge is an outstanding second-factor step.
type Challenge struct {
	PendingToken string
	ExpiresAt    time.Time
	// DevCode carries the one-time code only when codes are exposed for development.
	DevCode string
}

// AuthResult is the outcome of an authentication step. Exactly one of Tokens
// and Challenge is set.
type AuthResult struct {
	Identity  *domain.Identity
	Tokens    *auth.TokenPair
	Challenge *Challenge
}

// RegisterInput carries signup data.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// AuthService coordinates registration, login, second-factor and session flows.
type AuthService struct {
	identities repository.IdentityRepository
	sessions   session.Store
	tokens     *auth.TokenManager
	cipher     *secret.Cipher
	otp        *otp.Engine
	notifier   notify.Notifier
	provider   oauth.Verifier
	events     events.Dispatcher
	logger     *zap.Logger

	passwords        *auth.PasswordChecker
	bcryptCost       int
	pendingSingleUse bool
	exposeOTP        bool
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Identities repository.IdentityRepository
	Sessions   session.Store
	Tokens     *auth.TokenManager
	Cipher     *secret.Cipher
	OTP        *otp.Engine
	Notifier   notify.Notifier
	// Provider may be nil when no identity provider is configured.
	Provider oauth.Verifier
	Events   events.Dispatcher
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	passwords, err := auth.NewPasswordChecker(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare password checker: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Events
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AuthService{
		identities:       deps.Identities,
		sessions:         deps.Sessions,
		tokens:           deps.Tokens,
		cipher:           deps.Cipher,
		otp:              deps.OTP,
		notifier:         deps.Notifier,
		provider:         deps.Provider,
		events:           dispatcher,
		logger:           logger,
		passwords:        passwords,
		bcryptCost:       cfg.BcryptCost,
		pendingSingleUse: cfg.PendingSingleUse,
		exposeOTP:        cfg.ExposeOTP,
	}, nil
}

// Register creates a password account and sends a welcome code that verifies the address.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if _, err := s.identities.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	sealedSeed, err := s.newSealedSeed(email)
	if err != nil {
		return nil, err
	}

	username, err := s.uniqueUsername(ctx, email)
	if err != nil {
		return nil, err
	}

	identity := &domain.Identity{
		FullName:     strings.TrimSpace(input.FullName),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		SecretSeed:   sealedSeed,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.publish(ctx, events.EventIdentityRegistered, identity.ID, nil)
	s.logger.Info("identity registered", zap.String("identity_id", identity.ID))

	challenge, err := s.issueChallenge(ctx, identity, notify.TemplateWelcome, false)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Identity: identity, Challenge: challenge}, nil
}

// SignIn authenticates with email and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	identity, err := s.identities.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		_ = s.passwords.Check("", password)
		return nil, ErrInvalidCredentials
	}

	if err := s.passwords.Check(identity.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	return s.completeLogin(ctx, identity, methodPassword)
}

// SignInWithProvider authenticates with an identity-provider token, linking
// or creating the local identity by its verified email.
func (s *AuthService) SignInWithProvider(ctx context.Context, providerToken string) (*AuthResult, error) {
	if s.provider == nil {
		return nil, ErrInvalidProviderToken
	}
	profile, err := s.provider.Verify(ctx, providerToken)
	if err != nil {
		s.logger.Info("provider token rejected", zap.Error(err))
		return nil, ErrInvalidProviderToken
	}

	identity, err := s.identities.GetByGoogleID(ctx, profile.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		identity, err = s.linkOrCreate(ctx, profile)
	}
	if err != nil {
		return nil, err
	}

	return s.completeLogin(ctx, identity, methodGoogle)
}

func (s *AuthService) linkOrCreate(ctx context.Context, profile *oauth.Profile) (*domain.Identity, error) {
	email := normalizeEmail(profile.Email)
	identity, err := s.identities.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if identity.GoogleID != "" {
			return identity, nil
		}
		identity.GoogleID = profile.ExternalID
		identity.IsVerified = true
		if identity.ProfileImage == "" {
			identity.ProfileImage = profile.Picture
		}
		if err := s.identities.Update(ctx, identity); err != nil {
			return nil, err
		}
		s.logger.Info("provider linked to existing identity", zap.String("identity_id", identity.ID))
		return identity, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	sealedSeed, err := s.newSealedSeed(email)
	if err != nil {
		return nil, err
	}
	username, err := s.uniqueUsername(ctx, email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(profile.DisplayName)
	if fullName == "" {
		fullName = username
	}

	identity = &domain.Identity{
		FullName:     fullName,
		Username:     username,
		Email:        email,
		GoogleID:     profile.ExternalID,
		ProfileImage: profile.Picture,
		Role:         domain.RoleUser,
		SecretSeed:   sealedSeed,
		IsVerified:   true,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventIdentityRegistered, identity.ID, events.LoginPayload{Method: methodGoogle})
	return identity, nil
}

// VerifyOTP completes a pending login or a signup verification. Every
// failure is reported as ErrInvalidOtp.
func (s *AuthService) VerifyOTP(ctx context.Context, pendingToken, code string) (*AuthResult, error) {
	claims, err := s.tokens.Verify(pendingToken, auth.TokenPending)
	if err != nil {
		return nil, ErrInvalidOtp
	}

	identity, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOtp
		}
		return nil, err
	}

	seed, err := s.cipher.Decrypt(identity.SecretSeed)
	if err != nil {
		s.logger.Error("stored otp seed unreadable", zap.String("identity_id", identity.ID), zap.Error(err))
		return nil, ErrInvalidOtp
	}

	ok, err := s.otp.Verify(code, seed)
	if err != nil || !ok {
		s.publish(ctx, events.EventOTPFailed, identity.ID, nil)
		return nil, ErrInvalidOtp
	}

	if s.pendingSingleUse {
		ttl := claims.ExpiresAt.Time.Sub(s.tokens.Now())
		if ttl <= 0 {
			return nil, ErrInvalidOtp
		}
		first, err := s.sessions.ConsumePending(ctx, claims.ID, ttl)
		if err != nil {
			return nil, err
		}
		if !first {
			s.publish(ctx, events.EventOTPFailed, identity.ID, nil)
			return nil, ErrInvalidOtp
		}
	}

	if !identity.IsVerified {
		identity.IsVerified = true
		if err := s.identities.Update(ctx, identity); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, events.EventOTPVerified, identity.ID, nil)

	pair, err := s.issueSession(ctx, identity, methodOTP)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Identity: identity, Tokens: pair}, nil
}

// ResendOTP delivers a fresh code for a still-valid pending token and returns
// a new pending token.
func (s *AuthService) ResendOTP(ctx context.Context, pendingToken string) (*Challenge, error) {
	claims, err := s.tokens.Verify(pendingToken, auth.TokenPending)
	if err != nil {
		return nil, ErrChallengeExpired
	}
	identity, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeExpired
		}
		return nil, err
	}
	return s.issueChallenge(ctx, identity, notify.TemplateOTP, true)
}

// Refresh rotates a refresh token into a new pair. Presenting a token that is
// no longer whitelisted revokes every session of the identity.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.revokeAll(ctx, claims.IdentityID, "identity_missing")
			return nil, session.ErrReuseDetected
		}
		return nil, err
	}

	pair, err := s.tokens.IssuePair(auth.SubjectOf(identity))
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Rotate(ctx, identity.ID, refreshToken, pair.RefreshToken, s.tokens.TTL(auth.TokenRefresh)); err != nil {
		if errors.Is(err, session.ErrReuseDetected) {
			s.logger.Warn("refresh token reuse detected; revoking all sessions", zap.String("identity_id", identity.ID))
			s.publish(ctx, events.EventRefreshReuseDetected, identity.ID, nil)
			s.revokeAll(ctx, identity.ID, "refresh_reuse")
			return nil, session.ErrReuseDetected
		}
		return nil, err
	}

	s.publish(ctx, events.EventRefreshRotated, identity.ID, nil)
	return &AuthResult{Identity: identity, Tokens: pair}, nil
}

// Logout drops the presented refresh token. It never fails: the signature is
// not checked, and an unknown or malformed token is simply ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := auth.DecodeUnverified(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Remove(ctx, claims.IdentityID, refreshToken); err != nil {
		s.logger.Warn("logout cleanup failed", zap.String("identity_id", claims.IdentityID), zap.Error(err))
		return nil
	}
	s.publish(ctx, events.EventLoggedOut, claims.IdentityID, nil)
	return nil
}

// LogoutAll revokes every session of identityID.
func (s *AuthService) LogoutAll(ctx context.Context, identityID string) error {
	if err := s.sessions.RevokeAll(ctx, identityID); err != nil {
		return err
	}
	s.publish(ctx, events.EventSessionsRevoked, identityID, events.SessionsRevokedPayload{Reason: "logout_all"})
	return nil
}

func (s *AuthService) completeLogin(ctx context.Context, identity *domain.Identity, method string) (*AuthResult, error) {
	if identity.TwoFactorEnabled {
		challenge, err := s.issueChallenge(ctx, identity, notify.TemplateOTP, false)
		if err != nil {
			return nil, err
		}
		return &AuthResult{Identity: identity, Challenge: challenge}, nil
	}

	pair, err := s.issueSession(ctx, identity, method)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Identity: identity, Tokens: pair}, nil
}

func (s *AuthService) issueSession(ctx context.Context, identity *domain.Identity, method string) (*auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(auth.SubjectOf(identity))
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Add(ctx, identity.ID, pair.RefreshToken, s.tokens.TTL(auth.TokenRefresh)); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventLoginSucceeded, identity.ID, events.LoginPayload{Method: method})
	return pair, nil
}

func (s *AuthService) issueChallenge(ctx context.Context, identity *domain.Identity, template string, resend bool) (*Challenge, error) {
	pending, expiresAt, err := s.tokens.IssuePending(auth.SubjectOf(identity))
	if err != nil {
		return nil, err
	}

	seed, err := s.cipher.Decrypt(identity.SecretSeed)
	if err != nil {
		return nil, fmt.Errorf("open otp seed: %w", err)
	}
	code, err := s.otp.Generate(seed)
	if err != nil {
		return nil, err
	}

	payload := notify.Payload{
		"otp":                code,
		"username":           identity.FullName,
		"expires_in_minutes": int(s.otp.Period() / time.Minute),
	}
	if err := s.notifier.Notify(ctx, identity.Email, template, payload); err != nil {
		s.logger.Error("otp delivery failed", zap.String("identity_id", identity.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.publish(ctx, events.EventOTPChallengeIssued, identity.ID, events.OTPChallengePayload{Template: template, Resend: resend})

	challenge := &Challenge{PendingToken: pending, ExpiresAt: expiresAt}
	if s.exposeOTP {
		challenge.DevCode = code
	}
	return challenge, nil
}

func (s *AuthService) newSealedSeed(account string) (string, error) {
	seed, err := s.otp.GenerateSeed(account)
	if err != nil {
		return "", err
	}
	sealed, err := s.cipher.Encrypt(seed)
	if err != nil {
		return "", fmt.Errorf("seal otp seed: %w", err)
	}
	return sealed, nil
}

var usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9]`)

const maxUsernameAttempts = 50

// uniqueUsername derives a free username from the local part of email:
// "jane.doe@x" becomes "janedoe", then "janedoe1", "janedoe2", ...
func (s *AuthService) uniqueUsername(ctx context.Context, email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	base := strings.ToLower(usernameStrip.ReplaceAllString(local, ""))
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		taken, err := s.identities.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return base + strings.ReplaceAll(uuid.NewString(), "-", "")[:8], nil
}

func (s *AuthService) revokeAll(ctx context.Context, identityID, reason string) {
	if err := s.sessions.RevokeAll(ctx, identityID); err != nil {
		s.logger.Error("revoke sessions failed", zap.String("identity_id", identityID), zap.Error(err))
		return
	}
	s.publish(ctx, events.EventSessionsRevoked, identityID, events.SessionsRevokedPayload{Reason: reason})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, identityID string, payload interface{}) {
	if err := s.events.Publish(ctx, events.New(eventType, identityID, payload)); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
