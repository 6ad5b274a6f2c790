package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/auth-service/internal/domain"
)

var (
	// ErrNotFound is returned when no identity matches.
	ErrNotFound = errors.New("repository: identity not found")
	// ErrConflict is returned when a unique field (email, username, provider id) is taken.
	ErrConflict = errors.New("repository: identity already exists")
)

const uniqueViolation = "23505"

// IdentityRepository defines persistence access for identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	Update(ctx context.Context, identity *domain.Identity) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetByGoogleID(ctx context.Context, googleID string) (*domain.Identity, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

type identityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository returns a Postgres-backed implementation.
func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

const identityColumns = `id, full_name, username, email,
        COALESCE(password_hash, ''), COALESCE(google_id, ''), COALESCE(profile_image, ''),
        role, permission_overrides, COALESCE(secret_seed, ''),
        two_factor_enabled, is_verified, created_at, updated_at`

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

func (r *identityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	const query = `
        INSERT INTO identities (full_name, username, email, password_hash, google_id, profile_image,
            role, permission_overrides, secret_seed, two_factor_enabled, is_verified)
        VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, $11)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		identity.FullName,
		identity.Username,
		strings.ToLower(identity.Email),
		identity.PasswordHash,
		identity.GoogleID,
		identity.ProfileImage,
		string(identity.Role),
		overridesOrEmpty(identity.PermissionOverrides),
		identity.SecretSeed,
		identity.TwoFactorEnabled,
		identity.IsVerified,
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	return mapWriteError(err)
}

func (r *identityRepository) Update(ctx context.Context, identity *domain.Identity) error {
	const query = `
        UPDATE identities SET full_name=$1, username=$2, email=$3, password_hash=NULLIF($4, ''),
            google_id=NULLIF($5, ''), profile_image=NULLIF($6, ''), role=$7, permission_overrides=$8,
            secret_seed=NULLIF($9, ''), two_factor_enabled=$10, is_verified=$11, updated_at=NOW()
        WHERE id=$12
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		identity.FullName,
		identity.Username,
		strings.ToLower(identity.Email),
		identity.PasswordHash,
		identity.GoogleID,
		identity.ProfileImage,
		string(identity.Role),
		overridesOrEmpty(identity.PermissionOverrides),
		identity.SecretSeed,
		identity.TwoFactorEnabled,
		identity.IsVerified,
		identity.ID,
	).Scan(&identity.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return mapWriteError(err)
}

func (r *identityRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *identityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id=$1`, id)
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=$1`, strings.ToLower(email))
}

func (r *identityRepository) GetByGoogleID(ctx context.Context, googleID string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE google_id=$1`, googleID)
}

func (r *identityRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE username=$1)`, username).Scan(&exists)
	return exists, err
}

func (r *identityRepository) getOne(ctx context.Context, query string, arg any) (*domain.Identity, error) {
	var (
		identity domain.Identity
		role     string
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&identity.ID,
		&identity.FullName,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.GoogleID,
		&identity.ProfileImage,
		&role,
		&identity.PermissionOverrides,
		&identity.SecretSeed,
		&identity.TwoFactorEnabled,
		&identity.IsVerified,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	identity.Role = domain.Role(role)
	return &identity, nil
}

func overridesOrEmpty(overrides []string) []string {
	if overrides == nil {
		return []string{}
	}
	return overrides
}
