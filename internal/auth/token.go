package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/spec-kit/auth-service/internal/domain"
)

// TokenClass tags a token with the purpose it was minted for. Every class has
// its own signing secret, so a token only verifies as the class it was issued as.
type TokenClass string

const (
	TokenAccess  TokenClass = "access"
	TokenRefresh TokenClass = "refresh"
	TokenPending TokenClass = "pending"
)

var tokenClasses = []TokenClass{TokenAccess, TokenRefresh, TokenPending}

var (
	// ErrExpired means the token was authentic but its lifetime has elapsed.
	ErrExpired = errors.New("auth: token expired")
	// ErrMalformed covers bad signatures, wrong class, and missing claims.
	ErrMalformed = errors.New("auth: token malformed")
)

// ClassSpec binds a token class to its signing secret and lifetime.
type ClassSpec struct {
	Secret string
	TTL    time.Duration
}

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	Access  ClassSpec
	Refresh ClassSpec
	Pending ClassSpec
	Clock   func() time.Time
}

type classKey struct {
	secret []byte
	ttl    time.Duration
}

// TokenManager issues and validates HS256 JWTs for the three token classes.
// It holds no state beyond its keys.
type TokenManager struct {
	classes map[TokenClass]classKey
	now     func() time.Time
}

// Subject is the identity snapshot a token describes.
type Subject struct {
	ID               string
	Role             domain.Role
	Overrides        []string
	TwoFactorEnabled bool
}

// SubjectOf snapshots an identity.
func SubjectOf(identity *domain.Identity) Subject {
	return Subject{
		ID:               identity.ID,
		Role:             identity.Role,
		Overrides:        append([]string(nil), identity.PermissionOverrides...),
		TwoFactorEnabled: identity.TwoFactorEnabled,
	}
}

// Claims describes the JWT payload.
type Claims struct {
	Class            TokenClass  `json:"cls"`
	IdentityID       string      `json:"id"`
	Role             domain.Role `json:"role"`
	Permissions      []string    `json:"permissions,omitempty"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
	jwt.RegisteredClaims
}

// Principal returns the permission subject embedded in the claims.
func (c *Claims) Principal() Subject {
	return Subject{
		ID:               c.IdentityID,
		Role:             c.Role,
		Overrides:        c.Permissions,
		TwoFactorEnabled: c.TwoFactorEnabled,
	}
}

// TokenPair is the result of a full authentication.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// NewTokenManager builds a new manager. Every class needs a non-empty secret
// that no other class uses, and a positive lifetime.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	specs := map[TokenClass]ClassSpec{
		TokenAccess:  cfg.Access,
		TokenRefresh: cfg.Refresh,
		TokenPending: cfg.Pending,
	}

	classes := make(map[TokenClass]classKey, len(specs))
	owners := make(map[string]TokenClass, len(specs))
	for _, class := range tokenClasses {
		spec := specs[class]
		if spec.Secret == "" {
			return nil, fmt.Errorf("%s token secret is empty", class)
		}
		if spec.TTL <= 0 {
			return nil, fmt.Errorf("%s token lifetime must be positive", class)
		}
		if owner, taken := owners[spec.Secret]; taken {
			return nil, fmt.Errorf("%s token secret is already used by %s tokens", class, owner)
		}
		owners[spec.Secret] = class
		classes[class] = classKey{secret: []byte(spec.Secret), ttl: spec.TTL}
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &TokenManager{classes: classes, now: now}, nil
}

// Now reports the time tokens are issued and verified against.
func (tm *TokenManager) Now() time.Time {
	return tm.now()
}

// TTL returns the lifetime of class.
func (tm *TokenManager) TTL(class TokenClass) time.Duration {
	return tm.classes[class].ttl
}

// IssuePair mints an access and a refresh token for subject.
func (tm *TokenManager) IssuePair(subject Subject) (*TokenPair, error) {
	access, accessExp, err := tm.issue(TokenAccess, subject)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := tm.issue(TokenRefresh, subject)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssuePending mints the short-lived token that proves a correct password
// while the second factor is outstanding. It never carries permissions.
func (tm *TokenManager) IssuePending(subject Subject) (string, time.Time, error) {
	return tm.issue(TokenPending, subject)
}

func (tm *TokenManager) issue(class TokenClass, subject Subject) (string, time.Time, error) {
	if subject.ID == "" {
		return "", time.Time{}, errors.New("token subject has no id")
	}
	key := tm.classes[class]
	now := tm.now()
	expiresAt := now.Add(key.ttl)

	claims := &Claims{
		Class:            class,
		IdentityID:       subject.ID,
		Role:             subject.Role,
		TwoFactorEnabled: subject.TwoFactorEnabled,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   subject.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if class != TokenPending && len(subject.Overrides) > 0 {
		claims.Permissions = append([]string(nil), subject.Overrides...)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(key.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", class, err)
	}
	return tokenString, expiresAt, nil
}

// Verify validates tokenStr as a token of class and returns its claims.
func (tm *TokenManager) Verify(tokenStr string, class TokenClass) (*Claims, error) {
	key, ok := tm.classes[class]
	if !ok || tokenStr == "" {
		return nil, ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return key.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if !parsed.Valid || claims.Class != class || claims.IdentityID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// DecodeUnverified reads claims without checking the signature or expiry.
// Only for best-effort cleanup where a forged token can do no harm.
func DecodeUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrMalformed
	}
	if claims.IdentityID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}
