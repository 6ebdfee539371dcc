package db

import (
	"database/sql"

	"github.com/rsclarke/ipsguard/internal/models"
)

// CreateTermination records a killed process and returns its row ID.
func CreateTermination(d *sql.DB, t models.Termination) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO terminations (ban_id, address, pid, exe, inode, killed_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.BanID, t.Address, t.PID, t.Exe, int64(t.Inode), t.KilledAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListTerminations returns the terminations recorded for address, newest
// first. An empty address lists all of them.
func ListTerminations(d *sql.DB, address string) ([]models.Termination, error) {
	q := "SELECT id, ban_id, address, pid, exe, inode, killed_at FROM terminations"
	var args []any
	if address != "" {
		q += " WHERE address = ?"
		args = append(args, address)
	}
	q += " ORDER BY killed_at DESC, id DESC"

	rows, err := d.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Termination
	for rows.Next() {
		var (
			t     models.Termination
			inode int64
		)
		if err := rows.Scan(&t.ID, &t.BanID, &t.Address, &t.PID, &t.Exe, &inode, &t.KilledAt); err != nil {
			return nil, err
		}
		t.Inode = uint64(inode)
		out = append(out, t)
	}
	return out, rows.Err()
}
