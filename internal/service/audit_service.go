package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
)

// EventRecorder counts auth events. Implemented by observability.Metrics.
type EventRecorder interface {
	RecordAuthEvent(eventType string)
}

// AuditService turns auth events into log lines, counters and audit rows.
type AuditService struct {
	dispatcher events.Dispatcher
	logs       repository.AuditLogRepository
	recorder   EventRecorder
	logger     *zap.Logger
}

// NewAuditService creates the service. recorder may be nil.
func NewAuditService(dispatcher events.Dispatcher, logs repository.AuditLogRepository, recorder EventRecorder, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logs:       logs,
		recorder:   recorder,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every auth event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.SubscribeAll(a.handle)
}

// List returns audit entries matching filter, newest first.
func (a *AuditService) List(ctx context.Context, filter repository.AuditFilter) ([]repository.AuditEntry, error) {
	return a.logs.List(ctx, filter)
}

func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("identity_id", event.IdentityID),
	}
	switch event.Type {
	case events.EventRefreshReuseDetected, events.EventSessionsRevoked, events.EventOTPFailed:
		a.logger.Warn("auth event", append(fields, zap.Any("payload", event.Payload))...)
	default:
		a.logger.Info("auth event", fields...)
	}

	if a.recorder != nil {
		a.recorder.RecordAuthEvent(string(event.Type))
	}

	if a.logs == nil {
		return nil
	}
	var payload json.RawMessage
	if event.Payload != nil {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = raw
	}
	return a.logs.Append(ctx, &repository.AuditEntry{
		EventID:    event.ID,
		EventType:  string(event.Type),
		IdentityID: event.IdentityID,
		Payload:    payload,
		OccurredAt: event.Timestamp,
	})
}
