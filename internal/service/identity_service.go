package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/session"
)

// ProfileUpdate holds optional profile changes.
type ProfileUpdate struct {
	FullName *string
	Username *string
}

// IdentityService manages an identity after it exists.
type IdentityService struct {
	identities  repository.IdentityRepository
	sessions    session.Store
	permissions *auth.PermissionEngine
	passwords   *auth.PasswordChecker
	bcryptCost  int
	events      events.Dispatcher
	logger      *zap.Logger
}

// IdentityDependencies encapsulates collaborators for the identity service.
type IdentityDependencies struct {
	Identities  repository.IdentityRepository
	Sessions    session.Store
	Permissions *auth.PermissionEngine
	Events      events.Dispatcher
	Logger      *zap.Logger
}

// NewIdentityService builds the service.
func NewIdentityService(bcryptCost int, deps IdentityDependencies) (*IdentityService, error) {
	passwords, err := auth.NewPasswordChecker(bcryptCost)
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
	return &IdentityService{
		identities:  deps.Identities,
		sessions:    deps.Sessions,
		permissions: deps.Permissions,
		passwords:   passwords,
		bcryptCost:  bcryptCost,
		events:      dispatcher,
		logger:      logger,
	}, nil
}

// Profile loads an identity.
func (s *IdentityService) Profile(ctx context.Context, identityID string) (*domain.Identity, error) {
	return s.load(ctx, identityID)
}

// UpdateProfile changes display name or username. Acting on another identity
// requires user:update.
func (s *IdentityService) UpdateProfile(ctx context.Context, actor auth.Subject, targetID string, update ProfileUpdate) (*domain.Identity, error) {
	if err := s.permissions.Enforce(actor, targetID, auth.PermSelfUpdate, auth.PermUserUpdate); err != nil {
		return nil, err
	}
	identity, err := s.load(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if update.FullName != nil {
		identity.FullName = strings.TrimSpace(*update.FullName)
	}
	if update.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*update.Username))
		if username != identity.Username {
			taken, err := s.identities.UsernameExists(ctx, username)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, ErrUsernameTaken
			}
			identity.Username = username
		}
	}

	if err := s.identities.Update(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return identity, nil
}

// ToggleTwoFactor flips the second-factor flag. Provider-only accounts keep it off.
func (s *IdentityService) ToggleTwoFactor(ctx context.Context, identityID string) (*domain.Identity, error) {
	identity, err := s.load(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !identity.HasPassword() {
		return nil, ErrNoPassword
	}
	identity.TwoFactorEnabled = !identity.TwoFactorEnabled
	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, err
	}
	s.logger.Info("two-factor toggled",
		zap.String("identity_id", identity.ID),
		zap.Bool("enabled", identity.TwoFactorEnabled))
	return identity, nil
}

// ChangePassword re-checks the old password, stores the new hash and revokes
// every session.
func (s *IdentityService) ChangePassword(ctx context.Context, identityID, oldPassword, newPassword string) error {
	identity, err := s.load(ctx, identityID)
	if err != nil {
		return err
	}
	if !identity.HasPassword() {
		return ErrNoPassword
	}
	if err := s.passwords.Check(identity.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	identity.PasswordHash = hash
	if err := s.identities.Update(ctx, identity); err != nil {
		return err
	}
	s.publish(ctx, events.EventPasswordChanged, identity.ID, nil)

	if err := s.sessions.RevokeAll(ctx, identity.ID); err != nil {
		return err
	}
	s.publish(ctx, events.EventSessionsRevoked, identity.ID, events.SessionsRevokedPayload{Reason: "password_changed"})
	return nil
}

// Delete removes targetID. Deleting oneself needs self:delete, anyone else user:delete.
func (s *IdentityService) Delete(ctx context.Context, actor auth.Subject, targetID string) error {
	if err := s.permissions.Enforce(actor, targetID, auth.PermSelfDelete, auth.PermUserDelete); err != nil {
		return err
	}
	if err := s.identities.Delete(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return err
	}

	if err := s.sessions.RevokeAll(ctx, targetID); err != nil {
		s.logger.Error("revoke sessions of deleted identity failed", zap.String("identity_id", targetID), zap.Error(err))
	}
	s.publish(ctx, events.EventIdentityDeleted, targetID, events.IdentityDeletedPayload{DeletedBy: actor.ID})
	return nil
}

// GrantPermissions adds per-identity overrides. The actor needs admin:manage
// and may only grant permissions it holds itself.
func (s *IdentityService) GrantPermissions(ctx context.Context, actor auth.Subject, targetID string, perms []string) (*domain.Identity, error) {
	parsed, err := s.checkOverrideChange(actor, perms)
	if err != nil {
		return nil, err
	}
	identity, err := s.load(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var granted []string
	for _, p := range parsed {
		if !slices.Contains(identity.PermissionOverrides, string(p)) {
			identity.PermissionOverrides = append(identity.PermissionOverrides, string(p))
			granted = append(granted, string(p))
		}
	}
	if len(granted) == 0 {
		return identity, nil
	}
	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventPermissionsChanged, identity.ID, events.PermissionsChangedPayload{ChangedBy: actor.ID, Granted: granted})
	return identity, nil
}

// RevokePermissions removes per-identity overrides. Role defaults are unaffected.
func (s *IdentityService) RevokePermissions(ctx context.Context, actor auth.Subject, targetID string, perms []string) (*domain.Identity, error) {
	parsed, err := s.checkOverrideChange(actor, perms)
	if err != nil {
		return nil, err
	}
	identity, err := s.load(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var revoked []string
	kept := identity.PermissionOverrides[:0:0]
	for _, o := range identity.PermissionOverrides {
		if slices.Contains(parsed, auth.Permission(o)) {
			revoked = append(revoked, o)
			continue
		}
		kept = append(kept, o)
	}
	if len(revoked) == 0 {
		return identity, nil
	}
	identity.PermissionOverrides = kept
	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventPermissionsChanged, identity.ID, events.PermissionsChangedPayload{ChangedBy: actor.ID, Revoked: revoked})
	return identity, nil
}

func (s *IdentityService) checkOverrideChange(actor auth.Subject, perms []string) ([]auth.Permission, error) {
	if !s.permissions.Allows(actor, auth.PermAdminManage) {
		return nil, &auth.ForbiddenError{Code: "FORBIDDEN", Message: "Managing permissions requires admin:manage."}
	}
	parsed := make([]auth.Permission, 0, len(perms))
	for _, raw := range perms {
		p, ok := auth.ParsePermission(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, raw)
		}
		if !s.permissions.Allows(actor, p) {
			return nil, &auth.ForbiddenError{Code: "FORBIDDEN", Message: fmt.Sprintf("You cannot grant or revoke %q without holding it.", p)}
		}
		parsed = append(parsed, p)
	}
	return parsed, nil
}

func (s *IdentityService) load(ctx context.Context, identityID string) (*domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return identity, nil
}

func (s *IdentityService) publish(ctx context.Context, eventType events.EventType, identityID string, payload interface{}) {
	if err := s.events.Publish(ctx, events.New(eventType, identityID, payload)); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
