package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	tokens  map[string]map[string]time.Time
	pending map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		tokens:  make(map[string]map[string]time.Time),
		pending: make(map[string]time.Time),
		now:     now,
	}
}

// live returns the identity's set with expired members pruned. Callers hold mu.
func (s *MemoryStore) live(identityID string, create bool) map[string]time.Time {
	set, ok := s.tokens[identityID]
	if !ok {
		if !create {
			return nil
		}
		set = make(map[string]time.Time)
		s.tokens[identityID] = set
	}
	now := s.now()
	for fp, exp := range set {
		if !exp.After(now) {
			delete(set, fp)
		}
	}
	if len(set) == 0 && !create {
		delete(s.tokens, identityID)
		return nil
	}
	return set
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, identityID, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live(identityID, true)[Fingerprint(token)] = s.now().Add(ttl)
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, identityID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set := s.live(identityID, false); set != nil {
		delete(set, Fingerprint(token))
		if len(set) == 0 {
			delete(s.tokens, identityID)
		}
	}
	return nil
}

// Rotate implements Store.
func (s *MemoryStore) Rotate(_ context.Context, identityID, oldToken, newToken string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.live(identityID, false)
	oldFP := Fingerprint(oldToken)
	if _, ok := set[oldFP]; !ok {
		return ErrReuseDetected
	}
	delete(set, oldFP)
	set[Fingerprint(newToken)] = s.now().Add(ttl)
	return nil
}

// RevokeAll implements Store.
func (s *MemoryStore) RevokeAll(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, identityID)
	return nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, identityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live(identityID, false)) > 0, nil
}

// ConsumePending implements Store.
func (s *MemoryStore) ConsumePending(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.pending {
		if !exp.After(now) {
			delete(s.pending, id)
		}
	}
	if _, used := s.pending[tokenID]; used {
		return false, nil
	}
	s.pending[tokenID] = now.Add(ttl)
	return true, nil
}
