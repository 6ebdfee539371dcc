package db

import (
	"database/sql"
	"strings"

	"github.com/rsclarke/ipsguard/internal/models"
)

// CreateEvent inserts a security event and returns its ID.
func CreateEvent(d *sql.DB, e models.SecurityEvent) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO security_events (address, app, account, reason, rule, source, line, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.Address, e.App, e.Account, e.Reason, e.Rule, e.Source, e.Line, e.OccurredAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListEvents returns events matching f, newest first.
func ListEvents(d *sql.DB, f models.EventFilter) ([]models.SecurityEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Address != "" {
		where = append(where, "address = ?")
		args = append(args, f.Address)
	}
	if f.App != "" {
		where = append(where, "app = ?")
		args = append(args, f.App)
	}
	if f.Since > 0 {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.Since)
	}

	q := "SELECT id, address, app, account, reason, rule, source, line, occurred_at FROM security_events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY occurred_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SecurityEvent
	for rows.Next() {
		var e models.SecurityEvent
		if err := rows.Scan(&e.ID, &e.Address, &e.App, &e.Account, &e.Reason, &e.Rule, &e.Source, &e.Line, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEvents returns the number of events recorded for address since the
// given unix time.
func CountEvents(d *sql.DB, address string, since int64) (int, error) {
	var n int
	err := d.QueryRow(
		"SELECT COUNT(*) FROM security_events WHERE address = ? AND occurred_at >= ?",
		address, since,
	).Scan(&n)
	return n, err
}
