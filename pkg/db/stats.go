package db

import (
	"fmt"
	"time"
)

// sqliteTimeLayouts are the storage formats the driver may hand back
// when a timestamp column goes through an aggregate and loses its
// declared type.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// GetComponentStats aggregates transition counts per component since
// the given time, for report generation.
func (db *DB) GetComponentStats(since time.Time) ([]ComponentStat, error) {
	const querySQL = `
		SELECT component_id,
			COUNT(*) AS transitions,
			SUM(CASE WHEN new_status = 'fault' THEN 1 ELSE 0 END) AS fault_entries,
			SUM(CASE WHEN new_status = 'alarm' THEN 1 ELSE 0 END) AS alarm_entries,
			MAX(timestamp) AS last_transition
		FROM transitions
		WHERE timestamp >= ?
		GROUP BY component_id
		ORDER BY component_id
	`

	rows, err := db.Query(querySQL, since)
	if err != nil {
		return nil, fmt.Errorf("%w component stats: %w", ErrFailedToQuery, err)
	}
	defer CloseRows(rows)

	var stats []ComponentStat

	for rows.Next() {
		var stat ComponentStat

		var last string

		if err := rows.Scan(&stat.ComponentID, &stat.Transitions, &stat.FaultEntries, &stat.AlarmEntries, &last); err != nil {
			return nil, fmt.Errorf("%w component stat row: %w", ErrFailedToScan, err)
		}

		stat.LastTransition, err = parseSQLiteTime(last)
		if err != nil {
			return nil, fmt.Errorf("%w component stat timestamp: %w", ErrFailedToScan, err)
		}

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w component stats: %w", ErrFailedToQuery, err)
	}

	return stats, nil
}

func parseSQLiteTime(value string) (time.Time, error) {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
