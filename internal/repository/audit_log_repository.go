package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditEntry is one persisted auth event.
type AuditEntry struct {
	ID         string
	EventID    string
	EventType  string
	IdentityID string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// AuditFilter narrows a listing. Zero values mean no restriction.
type AuditFilter struct {
	IdentityID string
	EventType  string
	Limit      int
}

func (f AuditFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultAuditLimit
	case f.Limit > maxAuditLimit:
		return maxAuditLimit
	default:
		return f.Limit
	}
}

// AuditLogRepository manages the auth audit trail.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository constructs repository.
func NewAuditLogRepository(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepository{pool: pool}
}

func (r *auditLogRepository) Append(ctx context.Context, entry *AuditEntry) error {
	const query = `
        INSERT INTO auth_audit_log (event_id, event_type, identity_id, payload, occurred_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5)
        RETURNING id`
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return r.pool.QueryRow(ctx, query,
		entry.EventID,
		entry.EventType,
		entry.IdentityID,
		[]byte(payload),
		entry.OccurredAt,
	).Scan(&entry.ID)
}

func (r *auditLogRepository) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	const query = `
        SELECT id, event_id, event_type, COALESCE(identity_id, ''), payload, occurred_at
        FROM auth_audit_log
        WHERE ($1 = '' OR identity_id = $1)
          AND ($2 = '' OR event_type = $2)
        ORDER BY occurred_at DESC
        LIMIT $3`

	rows, err := r.pool.Query(ctx, query, filter.IdentityID, filter.EventType, filter.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry   AuditEntry
			payload []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.EventID,
			&entry.EventType,
			&entry.IdentityID,
			&payload,
			&entry.OccurredAt,
		); err != nil {
			return nil, err
		}
		entry.Payload = payload
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MemoryAuditLogRepository keeps the audit trail in process memory.
type MemoryAuditLogRepository struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

// NewMemoryAuditLogRepository returns an empty repository.
func NewMemoryAuditLogRepository() *MemoryAuditLogRepository {
	return &MemoryAuditLogRepository{}
}

func (r *MemoryAuditLogRepository) Append(_ context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	stored := *entry
	stored.Payload = append(json.RawMessage(nil), entry.Payload...)
	r.entries = append(r.entries, stored)
	return nil
}

func (r *MemoryAuditLogRepository) List(_ context.Context, filter AuditFilter) ([]AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AuditEntry
	for _, entry := range r.entries {
		if filter.IdentityID != "" && entry.IdentityID != filter.IdentityID {
			continue
		}
		if filter.EventType != "" && entry.EventType != filter.EventType {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}
