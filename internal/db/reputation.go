package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rsclarke/ipsguard/internal/models"
)

// SaveReputation stores the reputation of a ban, replacing any earlier
// record. RBL explanations keep the order they were given in.
func SaveReputation(d *sql.DB, r models.Reputation) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO ban_reputation (ban_id, country_code, country_name, region, city, asn, asn_org, hostname)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ban_id) DO UPDATE SET
			country_code = excluded.country_code,
			country_name = excluded.country_name,
			region = excluded.region,
			city = excluded.city,
			asn = excluded.asn,
			asn_org = excluded.asn_org,
			hostname = excluded.hostname
	`, r.BanID, r.CountryCode, r.CountryName, r.Region, r.City, int64(r.ASN), r.ASNOrg, r.Hostname)
	if err != nil {
		return fmt.Errorf("upsert reputation: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM ban_rbl_explanations WHERE ban_id = ?", r.BanID); err != nil {
		return fmt.Errorf("clear explanations: %w", err)
	}
	if len(r.RBLExplanations) > 0 {
		stmt, err := tx.Prepare("INSERT INTO ban_rbl_explanations (ban_id, position, text) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for i, text := range r.RBLExplanations {
			if _, err := stmt.Exec(r.BanID, i, text); err != nil {
				return fmt.Errorf("insert explanation %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetReputation returns the reputation stored for a ban. The bool is false
// when the ban has none.
func GetReputation(d *sql.DB, banID int64) (models.Reputation, bool, error) {
	r := models.Reputation{BanID: banID}
	var asn int64
	err := d.QueryRow(`
		SELECT country_code, country_name, region, city, asn, asn_org, hostname
		FROM ban_reputation WHERE ban_id = ?
	`, banID).Scan(&r.CountryCode, &r.CountryName, &r.Region, &r.City, &asn, &r.ASNOrg, &r.Hostname)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reputation{}, false, nil
	}
	if err != nil {
		return models.Reputation{}, false, fmt.Errorf("query reputation: %w", err)
	}
	r.ASN = uint32(asn)

	rows, err := d.Query("SELECT text FROM ban_rbl_explanations WHERE ban_id = ? ORDER BY position", banID)
	if err != nil {
		return models.Reputation{}, false, fmt.Errorf("query explanations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return models.Reputation{}, false, fmt.Errorf("scan explanation: %w", err)
		}
		r.RBLExplanations = append(r.RBLExplanations, text)
	}
	if err := rows.Err(); err != nil {
		return models.Reputation{}, false, fmt.Errorf("iterate explanations: %w", err)
	}
	return r, true, nil
}
