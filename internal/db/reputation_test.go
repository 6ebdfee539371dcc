package db

import (
	"database/sql"
	"reflect"
	"testing"

	"github.com/rsclarke/ipsguard/internal/models"
)

func createTestBan(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	id, err := CreateBan(db, models.Ban{Address: "203.0.113.7", App: "sshd", Reason: "reputation", RBLHit: "zen.spamhaus.org", Count: 1, BannedAt: 1234567890})
	if err != nil {
		t.Fatalf("create ban: %v", err)
	}
	return id
}

func TestSaveAndGetReputation(t *testing.T) {
	db := openTestDB(t)
	banID := createTestBan(t, db)

	want := models.Reputation{
		BanID:           banID,
		CountryCode:     "NL",
		CountryName:     "Netherlands",
		City:            "Amsterdam",
		ASN:             4200000000,
		ASNOrg:          "Example Transit",
		Hostname:        "host.example",
		RBLExplanations: []string{"https://www.spamhaus.org/query/ip/203.0.113.7", "listed in XBL", "listed in PBL"},
	}
	if err := SaveReputation(db, want); err != nil {
		t.Fatalf("SaveReputation failed: %v", err)
	}

	got, ok, err := GetReputation(db, banID)
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if !ok {
		t.Fatal("expected stored reputation")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reputation mismatch\ngot:  %+v\nwant: %+v", got, want)
	}
}

func TestSaveReputationWithoutExplanations(t *testing.T) {
	db := openTestDB(t)
	banID := createTestBan(t, db)

	if err := SaveReputation(db, models.Reputation{BanID: banID, CountryCode: "ZZ"}); err != nil {
		t.Fatalf("SaveReputation failed: %v", err)
	}

	got, ok, err := GetReputation(db, banID)
	if err != nil || !ok {
		t.Fatalf("GetReputation = %v, %v", ok, err)
	}
	if got.CountryCode != "ZZ" || got.RBLExplanations != nil {
		t.Errorf("unexpected reputation %+v", got)
	}
}

func TestSaveReputationUpsert(t *testing.T) {
	db := openTestDB(t)
	banID := createTestBan(t, db)

	first := models.Reputation{BanID: banID, CountryCode: "NL", RBLExplanations: []string{"a", "b", "c"}}
	if err := SaveReputation(db, first); err != nil {
		t.Fatalf("first SaveReputation failed: %v", err)
	}
	second := models.Reputation{BanID: banID, CountryCode: "DE", RBLExplanations: []string{"z"}}
	if err := SaveReputation(db, second); err != nil {
		t.Fatalf("second SaveReputation failed: %v", err)
	}

	got, _, err := GetReputation(db, banID)
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if got.CountryCode != "DE" {
		t.Errorf("expected country to be updated to DE, got %q", got.CountryCode)
	}
	if !reflect.DeepEqual(got.RBLExplanations, []string{"z"}) {
		t.Errorf("expected explanations to be replaced, got %v", got.RBLExplanations)
	}
}

func TestGetReputationNonExistent(t *testing.T) {
	db := openTestDB(t)

	got, ok, err := GetReputation(db, 99999)
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if ok {
		t.Errorf("expected no reputation for non-existent ban, got %+v", got)
	}
}

func TestReputationCascadeDelete(t *testing.T) {
	db := openTestDB(t)
	banID := createTestBan(t, db)

	if err := SaveReputation(db, models.Reputation{BanID: banID, CountryCode: "NL", RBLExplanations: []string{"listed"}}); err != nil {
		t.Fatalf("SaveReputation failed: %v", err)
	}

	if _, err := db.Exec("DELETE FROM bans WHERE id = ?", banID); err != nil {
		t.Fatalf("delete ban: %v", err)
	}

	for _, table := range []string{"ban_reputation", "ban_rbl_explanations"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE ban_id = ?", banID).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("expected 0 rows in %s after cascade delete, got %d", table, count)
		}
	}
}
