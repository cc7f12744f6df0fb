package db

import (
	"database/sql"
	"fmt"
	"time"
)

// FeedEvent is one row of the feeding audit log.
type FeedEvent struct {
	ID          int64
	StartedAt   time.Time
	EndedAt     *time.Time
	Status      string
	AmountGrams float64
}

// InsertFeedEvent records the start of a feeding session and returns the
// row id so the session can be closed out later.
func InsertFeedEvent(conn *sql.DB, startedAt time.Time, amountGrams float64) (int64, error) {
	res, err := conn.Exec(`INSERT INTO feed_events (started_at, status, amount_grams) VALUES (?, ?, ?)`,
		startedAt, "in_progress", amountGrams)
	if err != nil {
		return 0, fmt.Errorf("failed to insert feed event: %w", err)
	}
	return res.LastInsertId()
}

// CloseFeedEvent marks a session row completed or aborted.
func CloseFeedEvent(conn *sql.DB, id int64, endedAt time.Time, status string) error {
	_, err := conn.Exec(`UPDATE feed_events SET ended_at = ?, status = ? WHERE id = ?`, endedAt, status, id)
	if err != nil {
		return fmt.Errorf("failed to close feed event %d: %w", id, err)
	}
	return nil
}

// RecentFeedEvents returns the newest n sessions, newest first.
func RecentFeedEvents(conn *sql.DB, n int) ([]FeedEvent, error) {
	rows, err := conn.Query(`SELECT id, started_at, ended_at, status, amount_grams FROM feed_events ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed events: %w", err)
	}
	defer rows.Close()

	var events []FeedEvent
	for rows.Next() {
		var e FeedEvent
		if err := rows.Scan(&e.ID, &e.StartedAt, &e.EndedAt, &e.Status, &e.AmountGrams); err != nil {
			return nil, fmt.Errorf("failed to scan feed event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
