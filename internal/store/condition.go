package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodroad-data/roadscan/internal/geo"
	"github.com/goodroad-data/roadscan/internal/score"
	"github.com/goodroad-data/roadscan/internal/signal"
)

// ConditionRecord is one persisted road quality assessment. Records are
// immutable once written; corrections arrive as new records.
type ConditionRecord struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Lat        float64           `json:"latitude"`
	Lon        float64           `json:"longitude"`
	Score      float64           `json:"score"`
	Category   score.Category    `json:"category"`
	Confidence float64           `json:"confidence"`
	Features   signal.FeatureSet `json:"features"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// InsertRecord writes a record. The feature snapshot is stored as JSON
// so the score can be recomputed from what was persisted.
func (db *DB) InsertRecord(ctx context.Context, rec *ConditionRecord) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO road_conditions (
			id, session_id, latitude, longitude, score, category,
			confidence, features, recorded_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Lat, rec.Lon, rec.Score, string(rec.Category),
		rec.Confidence, string(features), rec.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert condition record: %w", err)
	}
	return nil
}

// RecordsInBox returns records inside the bounding box, newest first,
// capped at limit rows (0 means no cap beyond a defensive ceiling).
func (db *DB) RecordsInBox(ctx context.Context, box geo.BoundingBox, limit int) ([]ConditionRecord, error) {
	if limit <= 0 {
		limit = 5000
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, latitude, longitude, score, category,
			confidence, features, recorded_at_ms
		FROM road_conditions
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		ORDER BY recorded_at_ms DESC, id
		LIMIT ?`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}
	defer rows.Close()

	var records []ConditionRecord
	for rows.Next() {
		var (
			rec          ConditionRecord
			category     string
			featuresJSON string
			recordedMs   int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.Lat, &rec.Lon, &rec.Score,
			&category, &rec.Confidence, &featuresJSON, &recordedMs,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(featuresJSON), &rec.Features); err != nil {
			return nil, fmt.Errorf("corrupt feature snapshot on record %s: %w", rec.ID, err)
		}
		rec.Category = score.Category(category)
		rec.RecordedAt = time.UnixMilli(recordedMs).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// RecordStats summarises the record set for the stats endpoint and the
// reporting tools.
type RecordStats struct {
	TotalRecords   int            `json:"total_records"`
	AverageScore   float64        `json:"average_score"`
	CategoryCounts map[string]int `json:"category_counts"`
}

// Stats computes aggregate statistics over all stored records.
func (db *DB) Stats(ctx context.Context) (*RecordStats, error) {
	stats := &RecordStats{CategoryCounts: make(map[string]int)}

	row := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0) FROM road_conditions`)
	if err := row.Scan(&stats.TotalRecords, &stats.AverageScore); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM road_conditions GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.CategoryCounts[category] = count
	}
	return stats, rows.Err()
}

// ScoreHistogram buckets all stored scores into ten 0-100 bins for the
// quality report tool.
func (db *DB) ScoreHistogram(ctx context.Context) ([10]int, error) {
	var bins [10]int
	rows, err := db.QueryContext(ctx, `SELECT score FROM road_conditions`)
	if err != nil {
		return bins, err
	}
	defer rows.Close()

	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return bins, err
		}
		bin := int(s / 10)
		if bin > 9 {
			bin = 9
		}
		if bin < 0 {
			bin = 0
		}
		bins[bin]++
	}
	return bins, rows.Err()
}

// AllRecords returns every record, newest first. Used by the score-map
// tool; query traffic goes through RecordsInBox.
func (db *DB) AllRecords(ctx context.Context) ([]ConditionRecord, error) {
	return db.RecordsInBox(ctx, geo.BoundingBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}, 0)
}
