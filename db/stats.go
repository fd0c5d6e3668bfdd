package db

import (
	"fmt"
	"time"
)

// UsageStats summarizes stored messages
type UsageStats struct {
	TotalMessages int64
	ModelStats    []*ModelUsageStats
	DailyStats    []*DailyUsageStats
}

// ModelUsageStats represents usage of a specific model
type ModelUsageStats struct {
	Model        string
	MessageCount int64
	ErrorCount   int64
}

// DailyUsageStats represents one day of assistant replies
type DailyUsageStats struct {
	Date         string // Format: "2006-01-02"
	MessageCount int64
}

// GetUsageStats returns reply statistics for messages created since startDate
func (db *DB) GetUsageStats(startDate time.Time) (*UsageStats, error) {
	stats := &UsageStats{}

	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE sender = 'assistant' AND created_at >= ?",
		startDate,
	).Scan(&stats.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT model, COUNT(*), COALESCE(SUM(is_error), 0)
		FROM messages
		WHERE sender = 'assistant' AND created_at >= ?
		GROUP BY model
		ORDER BY COUNT(*) DESC, model ASC
	`, startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get model stats: %w", err)
	}
	for rows.Next() {
		var ms ModelUsageStats
		if err := rows.Scan(&ms.Model, &ms.MessageCount, &ms.ErrorCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan model stats: %w", err)
		}
		stats.ModelStats = append(stats.ModelStats, &ms)
	}
	rows.Close()

	rows, err = db.conn.Query(`
		SELECT substr(created_at, 1, 10) as day, COUNT(*)
		FROM messages
		WHERE sender = 'assistant' AND created_at >= ?
		GROUP BY day
		ORDER BY day ASC
	`, startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ds DailyUsageStats
		if err := rows.Scan(&ds.Date, &ds.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats.DailyStats = append(stats.DailyStats, &ds)
	}

	return stats, rows.Err()
}
