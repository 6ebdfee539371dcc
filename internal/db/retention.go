package db

import (
	"database/sql"
	"fmt"
)

// Prune deletes events and bans recorded before the unix time before.
// Terminations and reputation of a deleted ban go with it; a kept ban whose
// event is deleted loses the link.
func Prune(d *sql.DB, before int64) (events, bans int64, err error) {
	tx, err := d.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM bans WHERE banned_at < ?", before)
	if err != nil {
		return 0, 0, fmt.Errorf("prune bans: %w", err)
	}
	bans, _ = res.RowsAffected()

	res, err = tx.Exec("DELETE FROM security_events WHERE occurred_at < ?", before)
	if err != nil {
		return 0, 0, fmt.Errorf("prune events: %w", err)
	}
	events, _ = res.RowsAffected()

	if _, err := tx.Exec("DELETE FROM terminations WHERE ban_id IS NULL AND killed_at < ?", before); err != nil {
		return 0, 0, fmt.Errorf("prune terminations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return events, bans, nil
}
