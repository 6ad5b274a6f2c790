// Package oauth verifies identity-provider tokens.
package oauth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/api/idtoken"
)

// ErrInvalidProviderToken covers every verification failure.
var ErrInvalidProviderToken = errors.New("oauth: invalid provider token")

// Profile is the verified subset of a provider identity.
type Profile struct {
	ExternalID  string
	Email       string
	DisplayName string
	Picture     string
}

// Verifier checks a provider token and returns the profile it asserts.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Profile, error)
}

// ValidateFunc matches idtoken.Validate.
type ValidateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google ID tokens issued for clientID.
type GoogleVerifier struct {
	clientID string
	validate ValidateFunc
}

// NewGoogleVerifier builds a verifier. validate may be nil to use idtoken.Validate.
func NewGoogleVerifier(clientID string, validate ValidateFunc) *GoogleVerifier {
	if validate == nil {
		validate = idtoken.Validate
	}
	return &GoogleVerifier{clientID: clientID, validate: validate}
}

// Verify implements Verifier. The email must be present and verified by Google.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	if v.clientID == "" || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidProviderToken
	}

	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil || payload == nil || payload.Subject == "" {
		return nil, ErrInvalidProviderToken
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if email == "" || !verified {
		return nil, ErrInvalidProviderToken
	}

	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	return &Profile{
		ExternalID:  payload.Subject,
		Email:       strings.ToLower(email),
		DisplayName: name,
		Picture:     picture,
	}, nil
}
