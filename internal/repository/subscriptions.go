package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stormsignal/weather-notify/internal/models"
)

const subscriptionColumns = `id, user_email, phone_number, state, county, notification_type, created_at`

func (s *SQLiteDB) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserEmail, sub.PhoneNumber, sub.State, sub.County,
		sub.NotificationType, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating subscription: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)

	var sub models.Subscription
	err := row.Scan(&sub.ID, &sub.UserEmail, &sub.PhoneNumber, &sub.State,
		&sub.County, &sub.NotificationType, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching subscription %s: %w", id, err)
	}
	return &sub, nil
}

func (s *SQLiteDB) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
}

func (s *SQLiteDB) ListSubscriptionsByEmail(ctx context.Context, email string) ([]models.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_email = ? ORDER BY created_at`, email)
}

func (s *SQLiteDB) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting subscription %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subscription %s not found", id)
	}
	return nil
}

func (s *SQLiteDB) querySubscriptions(ctx context.Context, query string, args ...any) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserEmail, &sub.PhoneNumber, &sub.State,
			&sub.County, &sub.NotificationType, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
