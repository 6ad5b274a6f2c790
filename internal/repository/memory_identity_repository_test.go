package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
)

func newIdentity(email, username string) *domain.Identity {
	return &domain.Identity{
		FullName: "Test Person",
		Username: username,
		Email:    email,
		Role:     domain.RoleUser,
	}
}

func TestMemoryCreateAndLookup(t *testing.T) {
	repo := NewMemoryIdentityRepository()
	ctx := context.Background()

	identity := newIdentity("Alice@Example.com", "alice")
	require.NoError(t, repo.Create(ctx, identity))
	require.NotEmpty(t, identity.ID)
	require.False(t, identity.CreatedAt.IsZero())

	byEmail, err := repo.GetByEmail(ctx, "alice@example.COM")
	require.NoError(t, err)
	require.Equal(t, identity.ID, byEmail.ID)
	require.Equal(t, "alice@example.com", byEmail.Email)

	byID, err := repo.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)

	exists, err := repo.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = repo.UsernameExists(ctx, "bob")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMemoryRejectsDuplicates(t *testing.T) {
	repo := NewMemoryIdentityRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIdentity("alice@example.com", "alice")))
	require.ErrorIs(t, repo.Create(ctx, newIdentity("ALICE@example.com", "alice2")), ErrConflict)
	require.ErrorIs(t, repo.Create(ctx, newIdentity("other@example.com", "alice")), ErrConflict)

	linked := newIdentity("g@example.com", "g")
	linked.GoogleID = "google-1"
	require.NoError(t, repo.Create(ctx, linked))
	dup := newIdentity("g2@example.com", "g2")
	dup.GoogleID = "google-1"
	require.ErrorIs(t, repo.Create(ctx, dup), ErrConflict)

	found, err := repo.GetByGoogleID(ctx, "google-1")
	require.NoError(t, err)
	require.Equal(t, linked.ID, found.ID)
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemoryIdentityRepository()
	ctx := context.Background()

	identity := newIdentity("alice@example.com", "alice")
	identity.PermissionOverrides = []string{"logs:view"}
	require.NoError(t, repo.Create(ctx, identity))

	loaded, err := repo.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	loaded.PermissionOverrides[0] = "*"
	loaded.Role = domain.RoleSuperAdmin

	again, err := repo.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"logs:view"}, again.PermissionOverrides)
	require.Equal(t, domain.RoleUser, again.Role)
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	repo := NewMemoryIdentityRepository()
	ctx := context.Background()

	identity := newIdentity("alice@example.com", "alice")
	require.NoError(t, repo.Create(ctx, identity))

	identity.TwoFactorEnabled = true
	require.NoError(t, repo.Update(ctx, identity))
	loaded, err := repo.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	require.True(t, loaded.TwoFactorEnabled)

	require.NoError(t, repo.Delete(ctx, identity.ID))
	_, err = repo.GetByID(ctx, identity.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, identity.ID), ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, identity), ErrNotFound)
}
