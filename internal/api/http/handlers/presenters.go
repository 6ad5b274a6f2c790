package handlers

import (
	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
)

func identityResponse(identity *domain.Identity) *dto.IdentityResponse {
	if identity == nil {
		return nil
	}
	return &dto.IdentityResponse{
		ID:               identity.ID,
		FullName:         identity.FullName,
		Email:            identity.Email,
		Username:         identity.Username,
		Role:             string(identity.Role),
		ProfileImage:     identity.ProfileImage,
		Permissions:      identity.PermissionOverrides,
		TwoFactorEnabled: identity.TwoFactorEnabled,
		IsVerified:       identity.IsVerified,
		CreatedAt:        identity.CreatedAt,
	}
}

func authResponse(res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		AccessToken:      res.Tokens.AccessToken,
		ExpiresAt:        res.Tokens.AccessExpiresAt,
		TwoFactorEnabled: res.Identity.TwoFactorEnabled,
		User:             identityResponse(res.Identity),
	}
}

func challengeResponse(ch *service.Challenge, twoFactor bool) dto.ChallengeResponse {
	return dto.ChallengeResponse{
		OTP:              ch.DevCode,
		ExpiresAt:        ch.ExpiresAt,
		TwoFactorEnabled: twoFactor,
	}
}

func auditEntryResponses(entries []repository.AuditEntry) []dto.AuditEntryResponse {
	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditEntryResponse{
			ID:         e.ID,
			EventID:    e.EventID,
			EventType:  e.EventType,
			IdentityID: e.IdentityID,
			Payload:    e.Payload,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}
