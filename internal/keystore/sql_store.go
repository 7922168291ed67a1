package keystore

import (
	"context"
	"database/sql"
	"errors"
)

// SQLStore keeps keys in a SQL table. It expects a database/sql handle with
// a SQLite driver registered (modernc.org/sqlite).
type SQLStore struct {
	db *sql.DB
}

var (
	_ Store  = (*SQLStore)(nil)
	_ Writer = (*SQLStore)(nil)
)

// NewSQLStore creates the issuing_keys table if needed.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS issuing_keys (
			tenant_id TEXT NOT NULL,
			issuer_did TEXT NOT NULL,
			private_key TEXT NOT NULL,
			PRIMARY KEY (tenant_id, issuer_did)
		);
	`)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) GetPrivateKey(ctx context.Context, tenantID, issuerDID string) ([]byte, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `
		SELECT private_key FROM issuing_keys WHERE tenant_id = ? AND issuer_did = ?`,
		tenantID, issuerDID,
	).Scan(&encoded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return DecodeKey(encoded)
}

func (s *SQLStore) PutPrivateKey(ctx context.Context, tenantID, issuerDID string, key []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issuing_keys (tenant_id, issuer_did, private_key)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, issuer_did) DO UPDATE SET private_key = excluded.private_key`,
		tenantID, issuerDID, EncodeKey(key),
	)
	return err
}
