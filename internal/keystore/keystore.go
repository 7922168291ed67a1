// Package keystore holds the issuing private keys of each tenant, keyed by
// issuer DID.
package keystore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrKeyNotFound is returned when no key is stored for a tenant/issuer pair.
var ErrKeyNotFound = errors.New("issuing key not found")

// Store looks up issuing keys.
type Store interface {
	GetPrivateKey(ctx context.Context, tenantID, issuerDID string) ([]byte, error)
}

// Writer stores issuing keys. Keys are kept as raw 32-byte secp256k1 scalars.
type Writer interface {
	PutPrivateKey(ctx context.Context, tenantID, issuerDID string, key []byte) error
}

// MemoryStore is a goroutine-safe in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Writer = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string][]byte)}
}

func memKey(tenantID, issuerDID string) string {
	return tenantID + "\x00" + issuerDID
}

func (m *MemoryStore) GetPrivateKey(ctx context.Context, tenantID, issuerDID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[memKey(tenantID, issuerDID)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), k...), nil
}

func (m *MemoryStore) PutPrivateKey(ctx context.Context, tenantID, issuerDID string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[memKey(tenantID, issuerDID)] = append([]byte(nil), key...)
	return nil
}

// EncodeKey renders a key the way it is kept in configuration and SQL rows.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey accepts standard base64 or hex (optionally 0x-prefixed).
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if h, ok := strings.CutPrefix(s, "0x"); ok {
		return decodeHex(h)
	}
	if len(s) == 64 {
		if b, err := decodeHex(s); err == nil {
			return b, nil
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return b, nil
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return b, nil
}
