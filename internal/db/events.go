package db

import (
	"context"
	"fmt"
)

// EventRecord is one persisted publication.
type EventRecord struct {
	ID         int64  `json:"event_id"`
	Event      string `json:"event"`
	Payload    string `json:"payload"`
	RecordedAt int64  `json:"recorded_at"`
}

// RecordEvent appends a publication to the occupancy event log.
func (db *DB) RecordEvent(ctx context.Context, event, payload string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO occupancy_events (event, payload, recorded_at) VALUES (?, ?, ?)`,
		event, payload, db.nowMillis())
	if err != nil {
		return fmt.Errorf("record %s: %w", event, err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. An empty event name
// matches every event.
func (db *DB) RecentEvents(event string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT event_id, event, payload, recorded_at FROM occupancy_events
		WHERE ? = '' OR event = ?
		ORDER BY event_id DESC LIMIT ?
	`, event, event, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.Event, &e.Payload, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventSink persists telemetry records through RecordEvent.
type EventSink struct {
	DB *DB
}

func (s EventSink) Name() string { return "sqlite" }

func (s EventSink) Send(ctx context.Context, event, payload string) error {
	return s.DB.RecordEvent(ctx, event, payload)
}
