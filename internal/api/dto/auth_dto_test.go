package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

func TestOTPCodeAcceptsStringsAndNumbers(t *testing.T) {
	var req VerifyOTPRequest
	require.NoError(t, json.Unmarshal([]byte(`{"code": 12345}`), &req))
	require.Equal(t, OTPCode("012345"), req.Code)
	require.NoError(t, req.Validate())

	require.NoError(t, json.Unmarshal([]byte(`{"code": "654321"}`), &req))
	require.Equal(t, OTPCode("654321"), req.Code)
	require.NoError(t, req.Validate())

	require.Error(t, json.Unmarshal([]byte(`{"code": -1}`), &req))
	require.Error(t, json.Unmarshal([]byte(`{"code": 1.5}`), &req))

	require.NoError(t, json.Unmarshal([]byte(`{"code": "12ab56"}`), &req))
	require.Error(t, req.Validate())
}

func TestSignupValidation(t *testing.T) {
	ok := SignupRequest{FullName: "Jane", Email: "jane@example.com", Password: "password1"}
	require.NoError(t, ok.Validate())

	bad := SignupRequest{FullName: " ", Email: "not-an-email", Password: "letters-only"}
	err := bad.Validate()
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	require.Contains(t, domainErr.Details, "fullname")
	require.Contains(t, domainErr.Details, "email")
	require.Contains(t, domainErr.Details, "password")

	require.Error(t, SignupRequest{FullName: "Jane", Email: "Jane <jane@example.com>", Password: "password1"}.Validate())
}

func TestUpdateProfileValidation(t *testing.T) {
	require.Error(t, UpdateProfileRequest{}.Validate())

	bad := "jane doe"
	require.Error(t, UpdateProfileRequest{Username: &bad}.Validate())

	good := "janedoe"
	require.NoError(t, UpdateProfileRequest{Username: &good}.Validate())
}

func TestChangePasswordValidation(t *testing.T) {
	require.NoError(t, ChangePasswordRequest{OldPassword: "x", NewPassword: "password2"}.Validate())
	require.Error(t, ChangePasswordRequest{NewPassword: "password2"}.Validate())
	require.Error(t, ChangePasswordRequest{OldPassword: "x", NewPassword: "12345678"}.Validate())
}
