package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIdentityRegistered   EventType = "identity_registered"
	EventLoginSucceeded       EventType = "login_succeeded"
	EventOTPChallengeIssued   EventType = "otp_challenge_issued"
	EventOTPVerified          EventType = "otp_verified"
	EventOTPFailed            EventType = "otp_failed"
	EventRefreshRotated       EventType = "refresh_rotated"
	EventRefreshReuseDetected EventType = "refresh_reuse_detected"
	EventSessionsRevoked      EventType = "sessions_revoked"
	EventLoggedOut            EventType = "logged_out"
	EventIdentityDeleted      EventType = "identity_deleted"
	EventPasswordChanged      EventType = "password_changed"
	EventPermissionsChanged   EventType = "permissions_changed"
)

// AllTypes lists every event type.
var AllTypes = []EventType{
	EventIdentityRegistered,
	EventLoginSucceeded,
	EventOTPChallengeIssued,
	EventOTPVerified,
	EventOTPFailed,
	EventRefreshRotated,
	EventRefreshReuseDetected,
	EventSessionsRevoked,
	EventLoggedOut,
	EventIdentityDeleted,
	EventPasswordChanged,
	EventPermissionsChanged,
}

// Known reports whether t is one of AllTypes.
func (t EventType) Known() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event represents an auth event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	IdentityID string      `json:"identity_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload,omitempty"`
}

// New builds an event stamped with a fresh id and the current time.
func New(eventType EventType, identityID string, payload interface{}) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		IdentityID: identityID,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
}

// LoginPayload describes how an identity authenticated.
type LoginPayload struct {
	Method string `json:"method"`
}

// OTPChallengePayload describes a delivered one-time code.
type OTPChallengePayload struct {
	Template string `json:"template"`
	Resend   bool   `json:"resend,omitempty"`
}

// SessionsRevokedPayload says why every session of an identity was dropped.
type SessionsRevokedPayload struct {
	Reason string `json:"reason"`
}

// IdentityDeletedPayload payload.
type IdentityDeletedPayload struct {
	DeletedBy string `json:"deleted_by"`
}

// PermissionsChangedPayload payload.
type PermissionsChangedPayload struct {
	ChangedBy string   `json:"changed_by"`
	Granted   []string `json:"granted,omitempty"`
	Revoked   []string `json:"revoked,omitempty"`
}
