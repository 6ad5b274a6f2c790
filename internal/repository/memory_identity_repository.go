package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
)

// MemoryIdentityRepository keeps identities in process memory. It is used
// when no database is configured and in tests.
type MemoryIdentityRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Identity
}

// NewMemoryIdentityRepository returns an empty repository.
func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{byID: make(map[string]*domain.Identity)}
}

// conflicts reports whether another identity already holds a unique field. Callers hold mu.
func (r *MemoryIdentityRepository) conflicts(identity *domain.Identity) bool {
	for id, existing := range r.byID {
		if id == identity.ID {
			continue
		}
		if strings.EqualFold(existing.Email, identity.Email) || existing.Username == identity.Username {
			return true
		}
		if identity.GoogleID != "" && existing.GoogleID == identity.GoogleID {
			return true
		}
	}
	return false
}

func (r *MemoryIdentityRepository) Create(_ context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity.ID = uuid.NewString()
	if r.conflicts(identity) {
		identity.ID = ""
		return ErrConflict
	}
	now := time.Now().UTC()
	identity.Email = strings.ToLower(identity.Email)
	identity.CreatedAt = now
	identity.UpdatedAt = now
	r.byID[identity.ID] = identity.Clone()
	return nil
}

func (r *MemoryIdentityRepository) Update(_ context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[identity.ID]
	if !ok {
		return ErrNotFound
	}
	if r.conflicts(identity) {
		return ErrConflict
	}
	identity.Email = strings.ToLower(identity.Email)
	identity.CreatedAt = existing.CreatedAt
	identity.UpdatedAt = time.Now().UTC()
	r.byID[identity.ID] = identity.Clone()
	return nil
}

func (r *MemoryIdentityRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryIdentityRepository) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return identity.Clone(), nil
}

func (r *MemoryIdentityRepository) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return strings.EqualFold(i.Email, email) })
}

func (r *MemoryIdentityRepository) GetByGoogleID(_ context.Context, googleID string) (*domain.Identity, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return r.find(func(i *domain.Identity) bool { return i.GoogleID == googleID })
}

func (r *MemoryIdentityRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	_, err := r.find(func(i *domain.Identity) bool { return i.Username == username })
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *MemoryIdentityRepository) find(match func(*domain.Identity) bool) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, identity := range r.byID {
		if match(identity) {
			return identity.Clone(), nil
		}
	}
	return nil, ErrNotFound
}
