package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stormsignal/weather-notify/internal/models"
)

func (s *SQLiteDB) ResolveArea(ctx context.Context, state, county string) (models.AreaReference, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT state, county, state_code, county_code, area_code
		FROM area_refs
		WHERE state = ? AND county = ?`, state, county)

	var ref models.AreaReference
	err := row.Scan(&ref.State, &ref.County, &ref.StateCode, &ref.CountyCode, &ref.AreaCode)
	if err == sql.ErrNoRows {
		return models.AreaReference{}, false, nil
	}
	if err != nil {
		return models.AreaReference{}, false, fmt.Errorf("error resolving area (%s, %s): %w", state, county, err)
	}
	return ref, true, nil
}

func (s *SQLiteDB) UpsertAreaRef(ctx context.Context, ref models.AreaReference) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO area_refs (state, county, state_code, county_code, area_code)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(state, county) DO UPDATE SET
			state_code = excluded.state_code,
			county_code = excluded.county_code,
			area_code = excluded.area_code`,
		ref.State, ref.County, ref.StateCode, ref.CountyCode, ref.AreaCode,
	)
	if err != nil {
		return fmt.Errorf("error upserting area ref (%s, %s): %w", ref.State, ref.County, err)
	}
	return nil
}

func (s *SQLiteDB) UpsertStormEvents(ctx context.Context, events []models.StormEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting import tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO storm_events (event_id, event_type, state, county,
			begin_year, begin_month, end_year, end_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			event_type = excluded.event_type,
			state = excluded.state,
			county = excluded.county,
			begin_year = excluded.begin_year,
			begin_month = excluded.begin_month,
			end_year = excluded.end_year,
			end_month = excluded.end_month`)
	if err != nil {
		return 0, fmt.Errorf("error preparing import statement: %w", err)
	}
	defer stmt.Close()

	var count int64
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.EventID, ev.EventType, ev.State, ev.County,
			ev.BeginYear, ev.BeginMonth, ev.EndYear, ev.EndMonth); err != nil {
			return 0, fmt.Errorf("error importing event %d: %w", ev.EventID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing import: %w", err)
	}
	return count, nil
}

func (s *SQLiteDB) ListCounties(ctx context.Context, state string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT county FROM storm_events
		WHERE state = ?
		ORDER BY county`, state)
	if err != nil {
		return nil, fmt.Errorf("error listing counties for %s: %w", state, err)
	}
	defer rows.Close()

	var counties []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		counties = append(counties, c)
	}
	return counties, rows.Err()
}

func (s *SQLiteDB) EventsPerYear(ctx context.Context, state, county string) ([]YearCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT begin_year, COUNT(event_id) AS total
		FROM storm_events
		WHERE state = ? AND county = ?
		GROUP BY begin_year
		ORDER BY begin_year`, state, county)
	if err != nil {
		return nil, fmt.Errorf("error counting events per year: %w", err)
	}
	defer rows.Close()

	var counts []YearCount
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Total); err != nil {
			return nil, err
		}
		counts = append(counts, yc)
	}
	return counts, rows.Err()
}

func (s *SQLiteDB) EventsPerType(ctx context.Context, state, county string) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(event_id) AS total
		FROM storm_events
		WHERE state = ? AND county = ?
		GROUP BY event_type
		ORDER BY total DESC`, state, county)
	if err != nil {
		return nil, fmt.Errorf("error counting events per type: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Total); err != nil {
			return nil, err
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}
