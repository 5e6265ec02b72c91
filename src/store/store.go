package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"paper-exchange/src/ledger"
)

// Store persists ledger snapshots in Pebble.
type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func ledgerKey(accountID int64) []byte {
	return []byte(fmt.Sprintf("ledger/%d", accountID))
}

// SaveLedger writes the snapshot under its account id.
func (s *Store) SaveLedger(ctx context.Context, snap ledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := s.db.Set(ledgerKey(snap.AccountID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// LoadLedger returns nil, nil when no snapshot exists for the account.
func (s *Store) LoadLedger(ctx context.Context, accountID int64) (*ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, closer, err := s.db.Get(ledgerKey(accountID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	defer closer.Close()

	var snap ledger.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	return &snap, nil
}

// DeleteLedger drops the stored snapshot of the account.
func (s *Store) DeleteLedger(accountID int64) error {
	return s.db.Delete(ledgerKey(accountID), pebble.Sync)
}
