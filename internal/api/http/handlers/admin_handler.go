package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// AdminHandler exposes audit and permission management endpoints.
type AdminHandler struct {
	identities *service.IdentityService
	audit      *service.AuditService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(identityService *service.IdentityService, auditService *service.AuditService) *AdminHandler {
	return &AdminHandler{identities: identityService, audit: auditService}
}

// AuditLogs handles GET /api/v1/admin/audit-logs.
func (h *AdminHandler) AuditLogs(c *fiber.Ctx) error {
	filter := repository.AuditFilter{
		IdentityID: c.Query("identity_id"),
		EventType:  c.Query("event_type"),
		Limit:      c.QueryInt("limit", 0),
	}
	if filter.EventType != "" && !events.EventType(filter.EventType).Known() {
		return apperrors.NewValidationError("unknown event_type", map[string]any{"event_type": filter.EventType})
	}
	entries, err := h.audit.List(c.UserContext(), filter)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": auditEntryResponses(entries)})
}

// GrantPermissions handles POST /api/v1/admin/users/:id/permissions.
func (h *AdminHandler) GrantPermissions(c *fiber.Ctx) error {
	return h.changePermissions(c, h.identities.GrantPermissions)
}

// RevokePermissions handles DELETE /api/v1/admin/users/:id/permissions.
func (h *AdminHandler) RevokePermissions(c *fiber.Ctx) error {
	return h.changePermissions(c, h.identities.RevokePermissions)
}

type permissionChange func(ctx context.Context, actor auth.Subject, targetID string, perms []string) (*domain.Identity, error)

func (h *AdminHandler) changePermissions(c *fiber.Ctx, change permissionChange) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.PermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	identity, err := change(c.UserContext(), principal.Principal(), c.Params("id"), req.Permissions)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"message": "Permissions updated",
		"data":    fiber.Map{"user": identityResponse(identity)},
	})
}
