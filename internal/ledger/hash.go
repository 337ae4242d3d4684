// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/autobrr/entitled/internal/models"
)

// canonicalTransaction and canonicalBlock are encoded through maps so that
// encoding/json emits keys in sorted order.
func canonicalTransaction(tx *models.LedgerTransaction) map[string]any {
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return map[string]any{
		"id":        tx.ID,
		"timestamp": formatTime(tx.Timestamp),
		"subjectId": tx.SubjectID,
		"action":    string(tx.Action),
		"metadata":  metadata,
	}
}

func canonicalBlock(b *models.LedgerBlock) map[string]any {
	txs := make([]map[string]any, len(b.Transactions))
	for i := range b.Transactions {
		txs[i] = canonicalTransaction(&b.Transactions[i])
	}
	block := map[string]any{
		"index":        b.Index,
		"timestamp":    formatTime(b.Timestamp),
		"transactions": txs,
		"proof":        b.Proof,
		"previousHash": b.PreviousHash,
	}
	// Zero is left out so blocks sealed before difficulty was recorded keep
	// their original hash.
	if b.Difficulty > 0 {
		block["difficulty"] = b.Difficulty
	}
	return block
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// HashBlock returns the hex SHA-256 of the block's canonical encoding. The
// stored Hash field is not part of the input.
func HashBlock(b *models.LedgerBlock) (string, error) {
	payload, err := json.Marshal(canonicalBlock(b))
	if err != nil {
		return "", errors.Wrapf(err, "encode block %d", b.Index)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
