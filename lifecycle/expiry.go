package lifecycle

import (
	"fmt"
	"time"

	"token-vault/models"
)

// Cutoff is the fixed daily time-of-day at which every token expires.
// Kite invalidates all sessions around 06:00 IST regardless of when they
// were issued.
type Cutoff struct {
	Hour   int
	Minute int
}

// Next returns the first occurrence of the cutoff strictly after now. A
// token issued one second before the cutoff expires at the next day's
// cutoff, never at one already past.
func (c Cutoff) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// IsTokenValid reports whether a token is usable at the given instant:
// the stored flag must be set and the expiry must not have passed. The
// stored flag alone is not trusted on read paths; between the cutoff and
// the next reconciliation pass it can lag the time-based truth.
func IsTokenValid(token *models.Token, now time.Time) bool {
	if token == nil {
		return false
	}
	return token.IsValid && now.Before(token.ExpiresAt)
}

// StatusOf builds the read-only status summary for a token. A nil token
// yields the "no token" summary. Remaining time is zeroed the moment the
// token stops being valid.
func StatusOf(token *models.Token, now time.Time) models.TokenStatus {
	if token == nil {
		return models.TokenStatus{TimeLeft: "no token"}
	}

	status := models.TokenStatus{
		Exists:    true,
		IsValid:   IsTokenValid(token, now),
		UserID:    token.UserID,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
		TimeLeft:  "expired",
	}

	if status.IsValid {
		left := token.ExpiresAt.Sub(now)
		status.HoursLeft = int(left / time.Hour)
		status.MinutesLeft = int(left % time.Hour / time.Minute)
		status.TimeLeft = fmt.Sprintf("%dh %dm", status.HoursLeft, status.MinutesLeft)
	}

	return status
}
