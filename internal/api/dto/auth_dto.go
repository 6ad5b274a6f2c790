package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 50
	maxNameLength     = 100
	otpDigits         = 6
)

// SignupRequest payload for new identities.
type SignupRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload.
func (r SignupRequest) Validate() error {
	details := map[string]any{}
	name := strings.TrimSpace(r.FullName)
	if name == "" {
		details["fullname"] = "Full name is required"
	} else if len(name) > maxNameLength {
		details["fullname"] = fmt.Sprintf("Full name must be at most %d characters", maxNameLength)
	}
	if !validEmail(r.Email) {
		details["email"] = "Please use a valid email"
	}
	if msg := passwordProblem(r.Password); msg != "" {
		details["password"] = msg
	}
	return validationResult(details)
}

// SigninRequest payload for password login.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload.
func (r SigninRequest) Validate() error {
	details := map[string]any{}
	if !validEmail(r.Email) {
		details["email"] = "Please use a valid email"
	}
	if r.Password == "" {
		details["password"] = "Password is required"
	}
	return validationResult(details)
}

// GoogleSigninRequest carries a Google ID token.
type GoogleSigninRequest struct {
	IDToken string `json:"idToken"`
}

// Validate checks the payload.
func (r GoogleSigninRequest) Validate() error {
	if strings.TrimSpace(r.IDToken) == "" {
		return apperrors.NewValidationError("idToken is required", nil)
	}
	return nil
}

// OTPCode accepts a code sent either as a JSON string or a JSON number.
// Numbers are left-padded so codes starting with zero survive.
type OTPCode string

// UnmarshalJSON implements json.Unmarshaler.
func (c *OTPCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = OTPCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return fmt.Errorf("otp code must be a non-negative integer")
	}
	*c = OTPCode(fmt.Sprintf("%0*d", otpDigits, v))
	return nil
}

// VerifyOTPRequest payload for completing a challenge.
type VerifyOTPRequest struct {
	Code OTPCode `json:"code"`
}

// Validate checks the payload.
func (r VerifyOTPRequest) Validate() error {
	if len(r.Code) != otpDigits || strings.IndexFunc(string(r.Code), func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return apperrors.NewValidationError("code must be 6 digits", map[string]any{"code": "must be 6 digits"})
	}
	return nil
}

// ChangePasswordRequest payload for authenticated password changes.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Validate checks the payload.
func (r ChangePasswordRequest) Validate() error {
	details := map[string]any{}
	if r.OldPassword == "" {
		details["oldPassword"] = "Old password is required"
	}
	if msg := passwordProblem(r.NewPassword); msg != "" {
		details["newPassword"] = msg
	}
	return validationResult(details)
}

// UpdateProfileRequest payload for partial profile changes.
type UpdateProfileRequest struct {
	FullName *string `json:"fullname"`
	Username *string `json:"username"`
}

// Validate checks the payload.
func (r UpdateProfileRequest) Validate() error {
	details := map[string]any{}
	if r.FullName == nil && r.Username == nil {
		return apperrors.NewValidationError("nothing to update", nil)
	}
	if r.FullName != nil {
		if n := len(strings.TrimSpace(*r.FullName)); n == 0 || n > maxNameLength {
			details["fullname"] = fmt.Sprintf("Full name must be 1 to %d characters", maxNameLength)
		}
	}
	if r.Username != nil {
		u := strings.TrimSpace(*r.Username)
		if u == "" || len(u) > maxNameLength || strings.IndexFunc(u, func(r rune) bool {
			return !(unicode.IsLetter(r) || unicode.IsDigit(r))
		}) >= 0 {
			details["username"] = "Username must be letters and digits only"
		}
	}
	return validationResult(details)
}

// PermissionsRequest lists permissions to grant or revoke.
type PermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// Validate checks the payload.
func (r PermissionsRequest) Validate() error {
	if len(r.Permissions) == 0 {
		return apperrors.NewValidationError("permissions must not be empty", nil)
	}
	return nil
}

// IdentityResponse is the public view of an identity.
type IdentityResponse struct {
	ID               string    `json:"id"`
	FullName         string    `json:"fullname"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
	ProfileImage     string    `json:"profileImg,omitempty"`
	Permissions      []string  `json:"permissions,omitempty"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	IsVerified       bool      `json:"isVerified"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AuthResponse is returned once an identity is fully authenticated.
type AuthResponse struct {
	AccessToken      string            `json:"accessToken"`
	ExpiresAt        time.Time         `json:"expiresAt"`
	TwoFactorEnabled bool              `json:"twoFactorEnabled"`
	User             *IdentityResponse `json:"user,omitempty"`
}

// ChallengeResponse is returned while a second factor is outstanding.
type ChallengeResponse struct {
	OTP              string    `json:"otp,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
}

// AuditEntryResponse is one audit row.
type AuditEntryResponse struct {
	ID         string          `json:"id"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	IdentityID string          `json:"identityId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

func passwordProblem(password string) string {
	switch {
	case len(password) < minPasswordLength:
		return fmt.Sprintf("Password must be at least %d characters", minPasswordLength)
	case len(password) > maxPasswordLength:
		return fmt.Sprintf("Password must be at most %d characters", maxPasswordLength)
	case strings.IndexFunc(password, unicode.IsLetter) < 0 || strings.IndexFunc(password, unicode.IsDigit) < 0:
		return "Password must contain at least one letter and one number"
	}
	return ""
}

func validationResult(details map[string]any) error {
	if len(details) == 0 {
		return nil
	}
	return apperrors.NewValidationError("validation failed", details)
}
