package repository

import (
	"context"
	"fmt"

	"github.com/stormsignal/weather-notify/internal/models"
)

func (s *SQLiteDB) AlreadySent(ctx context.Context, subID, alertID string, kind models.Kind) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM deliveries
			WHERE subscription_id = ? AND alert_id = ? AND kind = ?
		)`, subID, alertID, string(kind)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking delivery record: %w", err)
	}
	return exists, nil
}

// Claim writes the delivery marker for one notification before it is
// sent. INSERT OR IGNORE against the composite primary key decides the
// race: when two overlapping cycles reach the same triple, exactly one
// insert lands and that caller sends; the loser sees won=false and
// drops the alert from its digest.
func (s *SQLiteDB) Claim(ctx context.Context, rec models.DeliveryRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO deliveries (subscription_id, alert_id, kind, sent_at)
		VALUES (?, ?, ?, ?)`,
		rec.SubscriptionID, rec.AlertID, string(rec.Kind), rec.SentAt,
	)
	if err != nil {
		return false, fmt.Errorf("error claiming delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking delivery claim: %w", err)
	}
	return n > 0, nil
}
