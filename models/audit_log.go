package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent classifies an audit log entry
type AuditEvent string

const (
	EventAuthenticated   AuditEvent = "authenticated"
	EventExpired         AuditEvent = "expired"
	EventReAuthenticated AuditEvent = "re_authenticated"
	EventError           AuditEvent = "error"
)

// AuditLog is an append-only record of a lifecycle event for an account.
// Entries are never updated; they are removed only when their account is
// deleted.
type AuditLog struct {
	ID        uuid.UUID      `json:"id"`
	AccountID uuid.UUID      `json:"account_id"`
	Event     AuditEvent     `json:"event"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
