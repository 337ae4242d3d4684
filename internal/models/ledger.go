// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/autobrr/entitled/internal/dbinterface"
)

// TransactionAction names an entitlement event recorded in the ledger.
type TransactionAction string

const (
	ActionLicenseIssued       TransactionAction = "license_issued"
	ActionLicenseActivated    TransactionAction = "license_activated"
	ActionLicenseDeactivated  TransactionAction = "license_deactivated"
	ActionLicenseDisabled     TransactionAction = "license_disabled"
	ActionDeviceBlacklisted   TransactionAction = "device_blacklisted"
	ActionDeviceUnblacklisted TransactionAction = "device_unblacklisted"
)

// LedgerTransaction is an immutable fact sealed into exactly one block.
type LedgerTransaction struct {
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Metadata  map[string]string `json:"metadata" yaml:"metadata"`
	ID        string            `json:"id" yaml:"id"`
	SubjectID string            `json:"subjectId" yaml:"subjectId"`
	Action    TransactionAction `json:"action" yaml:"action"`
}

// LedgerBlock is one sealed link of the hash chain.
type LedgerBlock struct {
	Timestamp    time.Time           `json:"timestamp" yaml:"timestamp"`
	PreviousHash string              `json:"previousHash" yaml:"previousHash"`
	Hash         string              `json:"hash" yaml:"hash"`
	Transactions []LedgerTransaction `json:"transactions" yaml:"transactions"`
	Index        int64               `json:"index" yaml:"index"`
	Proof        int64               `json:"proof" yaml:"proof"`
	Difficulty   int                 `json:"difficulty" yaml:"difficulty"`
}

// TransactionIDs returns the ids of the block's transactions in order.
func (b *LedgerBlock) TransactionIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i := range b.Transactions {
		ids[i] = b.Transactions[i].ID
	}
	return ids
}

type LedgerStore struct {
	db dbinterface.Querier
}

func NewLedgerStore(db dbinterface.Querier) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) WithTx(q dbinterface.Querier) *LedgerStore {
	return &LedgerStore{db: q}
}

// Append persists the block and its transactions. The block index is the
// primary key, so two writers racing for the same index cannot both succeed.
func (s *LedgerStore) Append(ctx context.Context, b *LedgerBlock) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_blocks (block_index, timestamp, proof, difficulty, previous_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.Index, toMicro(b.Timestamp), b.Proof, b.Difficulty, b.PreviousHash, b.Hash); err != nil {
		if isUniqueConstraintError(err) {
			return errors.Wrapf(ErrIntegrityFailure, "block %d already exists", b.Index)
		}
		return storageError(err, "insert ledger block")
	}

	if len(b.Transactions) == 0 {
		return nil
	}

	const perRow = 7
	args := make([]any, 0, len(b.Transactions)*perRow)
	for i, tx := range b.Transactions {
		metadata, err := encodeMetadata(tx.Metadata)
		if err != nil {
			return errors.Wrapf(err, "encode metadata for transaction %s", tx.ID)
		}
		args = append(args, tx.ID, b.Index, i, toMicro(tx.Timestamp), tx.SubjectID, string(tx.Action), metadata)
	}

	query := dbinterface.BuildQueryWithPlaceholders(
		"INSERT INTO ledger_transactions (id, block_index, position, timestamp, subject_id, action, metadata) VALUES %s",
		perRow, len(b.Transactions))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storageError(err, "insert ledger transactions")
	}

	return nil
}

// Last returns the tip of the chain or ErrLedgerEmpty.
func (s *LedgerStore) Last(ctx context.Context) (*LedgerBlock, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_index, timestamp, proof, difficulty, previous_hash, hash
		FROM ledger_blocks ORDER BY block_index DESC LIMIT 1
	`)
	b, err := scanBlock(row)
	if err != nil {
		return nil, notFound(err, ErrLedgerEmpty, "get last block")
	}
	if err := s.loadTransactions(ctx, []*LedgerBlock{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns the block with the given index.
func (s *LedgerStore) Get(ctx context.Context, index int64) (*LedgerBlock, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_index, timestamp, proof, difficulty, previous_hash, hash
		FROM ledger_blocks WHERE block_index = ?
	`, index)
	b, err := scanBlock(row)
	if err != nil {
		return nil, notFound(err, ErrLedgerEmpty, "get block")
	}
	if err := s.loadTransactions(ctx, []*LedgerBlock{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// Range returns up to limit blocks with index >= from, in index order.
func (s *LedgerStore) Range(ctx context.Context, from int64, limit int) ([]*LedgerBlock, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT block_index, timestamp, proof, difficulty, previous_hash, hash
		FROM ledger_blocks WHERE block_index >= ?
		ORDER BY block_index LIMIT ?
	`, from, limit)
	if err != nil {
		return nil, storageError(err, "list blocks")
	}
	defer rows.Close()

	var blocks []*LedgerBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, storageError(err, "scan block")
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list blocks")
	}
	rows.Close()

	if err := s.loadTransactions(ctx, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Height returns the highest block index, 0 for an empty ledger.
func (s *LedgerStore) Height(ctx context.Context) (int64, error) {
	var h sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(block_index) FROM ledger_blocks`).Scan(&h); err != nil {
		return 0, storageError(err, "ledger height")
	}
	return h.Int64, nil
}

func scanBlock(row interface{ Scan(dest ...any) error }) (*LedgerBlock, error) {
	var (
		b  LedgerBlock
		ts int64
	)
	if err := row.Scan(&b.Index, &ts, &b.Proof, &b.Difficulty, &b.PreviousHash, &b.Hash); err != nil {
		return nil, err
	}
	b.Timestamp = fromMicro(ts)
	b.Transactions = []LedgerTransaction{}
	return &b, nil
}

func (s *LedgerStore) loadTransactions(ctx context.Context, blocks []*LedgerBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	byIndex := make(map[int64]*LedgerBlock, len(blocks))
	for _, b := range blocks {
		byIndex[b.Index] = b
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_index, timestamp, subject_id, action, metadata
		FROM ledger_transactions
		WHERE block_index BETWEEN ? AND ?
		ORDER BY block_index, position
	`, blocks[0].Index, blocks[len(blocks)-1].Index)
	if err != nil {
		return storageError(err, "load ledger transactions")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tx       LedgerTransaction
			index    int64
			ts       int64
			action   string
			metadata string
		)
		if err := rows.Scan(&tx.ID, &index, &ts, &tx.SubjectID, &action, &metadata); err != nil {
			return storageError(err, "scan ledger transaction")
		}
		tx.Timestamp = fromMicro(ts)
		tx.Action = TransactionAction(action)
		tx.Metadata = map[string]string{}
		if err := json.Unmarshal([]byte(metadata), &tx.Metadata); err != nil {
			return errors.Wrapf(err, "decode metadata for transaction %s", tx.ID)
		}

		if b, ok := byIndex[index]; ok {
			b.Transactions = append(b.Transactions, tx)
		}
	}

	return storageError(rows.Err(), "load ledger transactions")
}
