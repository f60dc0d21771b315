package db

import (
	"fmt"
	"time"
)

// CleanOldData drops journal rows older than the retention period.
func (db *DB) CleanOldData(retentionPeriod time.Duration) (err error) {
	cutoff := time.Now().Add(-retentionPeriod)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		err = finishTx(tx, err)
	}()

	// Clean up raw events
	if _, err = tx.Exec(
		"DELETE FROM raw_events WHERE timestamp < ?",
		cutoff,
	); err != nil {
		return fmt.Errorf("%w raw events: %w", ErrFailedToClean, err)
	}

	// Clean up transitions
	if _, err = tx.Exec(
		"DELETE FROM transitions WHERE timestamp < ?",
		cutoff,
	); err != nil {
		return fmt.Errorf("%w transitions: %w", ErrFailedToClean, err)
	}

	return nil
}
