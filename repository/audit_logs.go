package repository

import (
	"context"
	"fmt"
	"time"

	"token-vault/models"

	"github.com/google/uuid"
)

// AppendAuditLog appends an event to the audit trail. Entries are never
// updated or deleted except by account deletion cascade.
func (r *Repository) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	defer observe("insert", "audit_logs", time.Now())

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO audit_logs (id, account_id, event, message, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Event,
		entry.Message,
		entry.Metadata,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}

	return nil
}

// GetAuditLogs retrieves audit entries for an account, newest first
func (r *Repository) GetAuditLogs(ctx context.Context, accountID uuid.UUID, limit int) ([]models.AuditLog, error) {
	defer observe("select", "audit_logs", time.Now())

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, account_id, event, message, metadata, timestamp
		FROM audit_logs
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Event, &e.Message, &e.Metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return entries, nil
}
