// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/entitled/internal/testdb"
)

func newTestBlock(index int64, previousHash string, txs ...LedgerTransaction) *LedgerBlock {
	if txs == nil {
		txs = []LedgerTransaction{}
	}
	return &LedgerBlock{
		Index:        index,
		Timestamp:    Now(),
		Proof:        100 + index,
		PreviousHash: previousHash,
		Hash:         fmt.Sprintf("hash-%d", index),
		Transactions: txs,
	}
}

func newTestTransaction(action TransactionAction, subject string, metadata map[string]string) LedgerTransaction {
	return LedgerTransaction{
		ID:        uuid.NewString(),
		Timestamp: Now(),
		SubjectID: subject,
		Action:    action,
		Metadata:  metadata,
	}
}

func TestLedgerStoreEmpty(t *testing.T) {
	t.Parallel()

	store := NewLedgerStore(testdb.Open(t, "models"))
	ctx := context.Background()

	_, err := store.Last(ctx)
	assert.ErrorIs(t, err, ErrLedgerEmpty)

	h, err := store.Height(ctx)
	require.NoError(t, err)
	assert.Zero(t, h)

	blocks, err := store.Range(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestLedgerStoreAppendPreservesTransactionOrder(t *testing.T) {
	t.Parallel()

	store := NewLedgerStore(testdb.Open(t, "models"))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newTestBlock(1, "0")))

	txs := []LedgerTransaction{
		newTestTransaction(ActionDeviceBlacklisted, "device-a", map[string]string{"reason": "single device policy"}),
		newTestTransaction(ActionLicenseActivated, "license-1", map[string]string{"deviceId": "device-b"}),
		newTestTransaction(ActionLicenseDeactivated, "license-1", nil),
	}
	block := newTestBlock(2, "hash-1", txs...)
	block.Difficulty = 3
	require.NoError(t, store.Append(ctx, block))

	got, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Index)
	assert.Equal(t, "hash-1", got.PreviousHash)
	assert.Equal(t, 3, got.Difficulty)
	assert.True(t, block.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, block.TransactionIDs(), got.TransactionIDs())
	assert.Equal(t, ActionDeviceBlacklisted, got.Transactions[0].Action)
	assert.Equal(t, "single device policy", got.Transactions[0].Metadata["reason"])
	assert.Equal(t, map[string]string{}, got.Transactions[2].Metadata)

	genesis, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, genesis.Transactions)

	h, err := store.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h)
}

func TestLedgerStoreAppendRejectsDuplicateIndex(t *testing.T) {
	t.Parallel()

	store := NewLedgerStore(testdb.Open(t, "models"))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newTestBlock(1, "0")))
	err := store.Append(ctx, newTestBlock(1, "0"))
	assert.ErrorIs(t, err, ErrIntegrityFailure)
	assert.Equal(t, KindIntegrityFailure, KindOf(err))
}

func TestLedgerStoreRange(t *testing.T) {
	t.Parallel()

	store := NewLedgerStore(testdb.Open(t, "models"))
	ctx := context.Background()

	prev := "0"
	for i := int64(1); i <= 5; i++ {
		b := newTestBlock(i, prev, newTestTransaction(ActionLicenseIssued, fmt.Sprintf("license-%d", i), nil))
		require.NoError(t, store.Append(ctx, b))
		prev = b.Hash
	}

	blocks, err := store.Range(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, int64(i+2), b.Index)
		require.Len(t, b.Transactions, 1)
		assert.Equal(t, fmt.Sprintf("license-%d", b.Index), b.Transactions[0].SubjectID)
	}

	tail, err := store.Range(ctx, 5, 0)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}
