package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stormsignal/weather-notify/internal/feed"
	"github.com/stormsignal/weather-notify/internal/models"
)

const alertColumns = `id, event, headline, description, instruction, response,
	sender_name, area_desc, status, message_type, category, severity,
	certainty, urgency, geocodes, parameters,
	sent, effective, onset, expires, ends, created_at, updated_at`

// parseFeedTime turns the feed's ISO-8601 text into a time. Absent or
// unparsable text yields nil rather than an error: a missing timestamp
// is "no value", not a broken alert.
func parseFeedTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	// Normalize to UTC so stored values compare consistently no matter
	// which offset the feed used.
	u := t.UTC()
	return &u
}

func rawToAlert(raw feed.RawAlert, now time.Time) *models.Alert {
	geocodes := raw.Geocodes
	if geocodes == nil {
		geocodes = []string{}
	}
	params := raw.Parameters
	if params == nil {
		params = map[string][]string{}
	}
	return &models.Alert{
		ID:          raw.ID,
		Event:       raw.Event,
		Headline:    raw.Headline,
		Description: raw.Description,
		Instruction: raw.Instruction,
		Response:    raw.Response,
		SenderName:  raw.SenderName,
		AreaDesc:    raw.AreaDesc,
		Status:      raw.Status,
		MessageType: raw.MessageType,
		Category:    raw.Category,
		Severity:    raw.Severity,
		Certainty:   raw.Certainty,
		Urgency:     raw.Urgency,
		Geocodes:    geocodes,
		Parameters:  params,
		Sent:        parseFeedTime(raw.Sent),
		Effective:   parseFeedTime(raw.Effective),
		Onset:       parseFeedTime(raw.Onset),
		Expires:     parseFeedTime(raw.Expires),
		Ends:        parseFeedTime(raw.Ends),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *SQLiteDB) Upsert(ctx context.Context, raw feed.RawAlert) (*models.Alert, bool, error) {
	if raw.ID == "" {
		return nil, false, fmt.Errorf("alert has no id")
	}

	now := time.Now().UTC()
	a := rawToAlert(raw, now)

	geocodesJSON, err := json.Marshal(a.Geocodes)
	if err != nil {
		return nil, false, fmt.Errorf("error encoding geocodes: %w", err)
	}
	paramsJSON, err := json.Marshal(a.Parameters)
	if err != nil {
		return nil, false, fmt.Errorf("error encoding parameters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("error starting upsert tx: %w", err)
	}
	defer tx.Rollback()

	var createdAt time.Time
	isNew := false
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM alerts WHERE id = ?`, a.ID).Scan(&createdAt)
	switch {
	case err == sql.ErrNoRows:
		isNew = true
	case err != nil:
		return nil, false, fmt.Errorf("error checking alert existence: %w", err)
	default:
		a.CreatedAt = createdAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event = excluded.event,
			headline = excluded.headline,
			description = excluded.description,
			instruction = excluded.instruction,
			response = excluded.response,
			sender_name = excluded.sender_name,
			area_desc = excluded.area_desc,
			status = excluded.status,
			message_type = excluded.message_type,
			category = excluded.category,
			severity = excluded.severity,
			certainty = excluded.certainty,
			urgency = excluded.urgency,
			geocodes = excluded.geocodes,
			parameters = excluded.parameters,
			sent = excluded.sent,
			effective = excluded.effective,
			onset = excluded.onset,
			expires = excluded.expires,
			ends = excluded.ends,
			updated_at = excluded.updated_at`,
		a.ID, a.Event, a.Headline, a.Description, a.Instruction, a.Response,
		a.SenderName, a.AreaDesc, a.Status, a.MessageType, a.Category, a.Severity,
		a.Certainty, a.Urgency, string(geocodesJSON), string(paramsJSON),
		nullTime(a.Sent), nullTime(a.Effective), nullTime(a.Onset), nullTime(a.Expires), nullTime(a.Ends),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("error upserting alert %s: %w", a.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("error committing upsert: %w", err)
	}

	return a, isNew, nil
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching alert %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteDB) ListActive(ctx context.Context, now time.Time, f ActiveFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE (expires IS NULL OR expires > ?)
		AND event NOT LIKE '%test%'`
	args := []any{now.UTC()}

	if f.Area != "" {
		query += ` AND area_desc LIKE ?`
		args = append(args, "%"+f.Area+"%")
	}
	if f.Severity != "" {
		query += ` AND severity = ? COLLATE NOCASE`
		args = append(args, f.Severity)
	}
	if f.Urgency != "" {
		query += ` AND urgency = ? COLLATE NOCASE`
		args = append(args, f.Urgency)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY sent DESC LIMIT ?`
	args = append(args, limit)

	return s.queryAlerts(ctx, query, args...)
}

func (s *SQLiteDB) ListExpiring(ctx context.Context, from, to time.Time) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE expires IS NOT NULL AND expires > ? AND expires <= ?
		ORDER BY expires ASC`
	return s.queryAlerts(ctx, query, from.UTC(), to.UTC())
}

func (s *SQLiteDB) queryAlerts(ctx context.Context, query string, args ...any) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                        models.Alert
		geocodesJSON, paramsJSON string
		sent, effective, onset   sql.NullTime
		expires, ends            sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Event, &a.Headline, &a.Description, &a.Instruction, &a.Response,
		&a.SenderName, &a.AreaDesc, &a.Status, &a.MessageType, &a.Category, &a.Severity,
		&a.Certainty, &a.Urgency, &geocodesJSON, &paramsJSON,
		&sent, &effective, &onset, &expires, &ends, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(geocodesJSON), &a.Geocodes); err != nil {
		return nil, fmt.Errorf("error decoding geocodes for %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &a.Parameters); err != nil {
		return nil, fmt.Errorf("error decoding parameters for %s: %w", a.ID, err)
	}

	a.Sent = timePtr(sent)
	a.Effective = timePtr(effective)
	a.Onset = timePtr(onset)
	a.Expires = timePtr(expires)
	a.Ends = timePtr(ends)
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
