package db

import (
	"database/sql"

	"github.com/rsclarke/ipsguard/internal/models"
)

// CreateBan inserts a ban and returns its ID.
func CreateBan(d *sql.DB, b models.Ban) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO bans (address, app, reason, count, rbl_hit, event_id, banned_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		b.Address, b.App, b.Reason, b.Count, b.RBLHit, b.EventID, b.BannedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// IsBanned reports whether address has a ban recorded at or after since.
func IsBanned(d *sql.DB, address string, since int64) (bool, error) {
	var n int
	err := d.QueryRow(
		"SELECT COUNT(*) FROM bans WHERE address = ? AND banned_at >= ?",
		address, since,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListBans returns the most recent bans, newest first. A limit of zero
// returns all of them.
func ListBans(d *sql.DB, limit int) ([]models.Ban, error) {
	q := "SELECT id, address, app, reason, count, rbl_hit, event_id, banned_at FROM bans ORDER BY banned_at DESC, id DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ban
	for rows.Next() {
		var b models.Ban
		if err := rows.Scan(&b.ID, &b.Address, &b.App, &b.Reason, &b.Count, &b.RBLHit, &b.EventID, &b.BannedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
