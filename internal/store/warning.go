package store

import (
	"context"
	"fmt"
	"time"
)

// Warning is an alert row written when a record's category is poor or
// severe, consumed by out-of-band monitoring.
type Warning struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	Severity  string    `json:"severity"` // "medium" or "high"
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) InsertWarning(ctx context.Context, w *Warning) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO road_warnings (id, latitude, longitude, severity, score, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Lat, w.Lon, w.Severity, w.Score, w.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert warning: %w", err)
	}
	return nil
}

// RecentWarnings returns up to limit warnings, newest first.
func (db *DB) RecentWarnings(ctx context.Context, limit int) ([]Warning, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, latitude, longitude, severity, score, created_at_ms
		FROM road_warnings ORDER BY created_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []Warning
	for rows.Next() {
		var w Warning
		var createdMs int64
		if err := rows.Scan(&w.ID, &w.Lat, &w.Lon, &w.Severity, &w.Score, &createdMs); err != nil {
			return nil, err
		}
		w.CreatedAt = time.UnixMilli(createdMs).UTC()
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}
