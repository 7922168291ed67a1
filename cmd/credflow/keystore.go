package main

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/petrijr/credflow/internal/config"
	"github.com/petrijr/credflow/internal/keystore"
)

// openKeyStore opens the SQLite key store named by keys.dsn. The memory
// driver has nothing to persist into, so it is rejected here.
func openKeyStore(cfg *config.Config) (*keystore.SQLStore, func() error, error) {
	if cfg.Keys.Driver != "sqlite" {
		return nil, nil, fmt.Errorf("keys.driver %q has no persistent store", cfg.Keys.Driver)
	}
	db, err := sql.Open("sqlite", cfg.Keys.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}
	db.SetMaxOpenConns(1)
	store, err := keystore.NewSQLStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}
	return store, db.Close, nil
}
