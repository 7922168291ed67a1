package persistence

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	// Every pooled connection would otherwise open its own in-memory database.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := NewSQLiteStore(newTestSQLiteDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	runStoreContract(t, store, store)
}

func TestSQLiteEventStore_Events(t *testing.T) {
	store, err := NewSQLiteEventStore(newTestSQLiteDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteEventStore failed: %v", err)
	}
	runEventContract(t, store)
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	db := newTestSQLiteDB(t)
	if _, err := NewSQLiteStore(db); err != nil {
		t.Fatalf("first NewSQLiteStore failed: %v", err)
	}
	if _, err := NewSQLiteStore(db); err != nil {
		t.Fatalf("second NewSQLiteStore failed: %v", err)
	}
	if _, err := NewSQLiteEventStore(db); err != nil {
		t.Fatalf("NewSQLiteEventStore on shared db failed: %v", err)
	}
}
