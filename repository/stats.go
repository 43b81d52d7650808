package repository

import (
	"context"
	"fmt"
	"time"

	"token-vault/models"
)

// GetStats returns aggregate account and token counts. Pure read; used
// by the reporting job and the admin stats endpoint.
func (r *Repository) GetStats(ctx context.Context) (*models.VaultStats, error) {
	defer observe("select", "stats", time.Now())

	query := `
		SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM accounts WHERE status = 'active'),
			(SELECT COUNT(*) FROM accounts WHERE status = 'expired'),
			(SELECT COUNT(*) FROM accounts WHERE status = 'never_authenticated'),
			(SELECT COUNT(*) FROM tokens),
			(SELECT COUNT(*) FROM tokens WHERE is_valid)
	`

	var stats models.VaultStats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalAccounts,
		&stats.Active,
		&stats.Expired,
		&stats.NeverAuthenticated,
		&stats.TotalTokens,
		&stats.ValidTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return &stats, nil
}
