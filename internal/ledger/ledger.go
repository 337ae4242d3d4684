// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ledger implements the append-only, hash-chained audit log of
// entitlement events.
//
// Blocks are sealed one at a time under a single mutex. Seal and Commit take
// the querier of the caller's write transaction, so a block is persisted
// together with the registry changes it describes, or not at all.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/dbinterface"
	"github.com/autobrr/entitled/internal/domain"
	"github.com/autobrr/entitled/internal/models"
)

const (
	GenesisIndex        int64 = 1
	GenesisPreviousHash       = "0"
	GenesisProof        int64 = 100

	verifyPageSize = 500
)

type Options struct {
	Difficulty    int
	MaxIterations int64
	Clock         func() time.Time
}

// Break locates the first link that failed verification. From == To when a
// block does not match its own stored hash.
type Break struct {
	From   int64  `json:"from" yaml:"from"`
	To     int64  `json:"to" yaml:"to"`
	Reason string `json:"reason" yaml:"reason"`
}

func (b Break) String() string {
	return fmt.Sprintf("block %d->%d: %s", b.From, b.To, b.Reason)
}

type VerifyResult struct {
	Break  *Break `json:"break,omitempty"`
	Blocks int64  `json:"blocks"`
	Valid  bool   `json:"valid"`
}

type Ledger struct {
	mu            sync.Mutex
	store         *models.LedgerStore
	clock         func() time.Time
	pending       []models.LedgerTransaction
	halt          *Break
	difficulty    int
	maxIterations int64
}

// New returns a ledger reading committed blocks through db.
func New(db dbinterface.Querier, opts Options) *Ledger {
	if opts.Difficulty < 0 {
		opts.Difficulty = 0
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = domain.DefaultLedgerMaxIterations
	}
	if opts.Clock == nil {
		opts.Clock = models.Now
	}

	return &Ledger{
		store:         models.NewLedgerStore(db),
		clock:         opts.Clock,
		difficulty:    opts.Difficulty,
		maxIterations: opts.MaxIterations,
	}
}

// NewTransaction builds a transaction with a fresh id and timestamp.
func NewTransaction(action models.TransactionAction, subjectID string, metadata map[string]string) models.LedgerTransaction {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return models.LedgerTransaction{
		ID:        uuid.NewString(),
		Timestamp: models.Now(),
		SubjectID: subjectID,
		Action:    action,
		Metadata:  metadata,
	}
}

// Genesis returns the first block, creating it through q if the chain is empty.
func (l *Ledger) Genesis(ctx context.Context, q dbinterface.Querier) (*models.LedgerBlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.genesisLocked(ctx, l.store.WithTx(q))
}

func (l *Ledger) genesisLocked(ctx context.Context, store *models.LedgerStore) (*models.LedgerBlock, error) {
	b, err := store.Get(ctx, GenesisIndex)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, models.ErrLedgerEmpty) {
		return nil, err
	}

	b = &models.LedgerBlock{
		Index:        GenesisIndex,
		Timestamp:    models.Truncate(l.clock()),
		Transactions: []models.LedgerTransaction{},
		Proof:        GenesisProof,
		PreviousHash: GenesisPreviousHash,
	}
	if b.Hash, err = HashBlock(b); err != nil {
		return nil, err
	}
	if err := store.Append(ctx, b); err != nil {
		return nil, errors.Wrap(err, "append genesis block")
	}

	log.Info().Str("hash", b.Hash).Msg("ledger genesis block created")
	return b, nil
}

// Submit queues tx for the next seal.
func (l *Ledger) Submit(tx models.LedgerTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, tx)
}

// Pending returns the number of queued transactions.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.pending)
}

// Seal moves every pending transaction into a new block written through q.
func (l *Ledger) Seal(ctx context.Context, q dbinterface.Querier) (*models.LedgerBlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sealLocked(ctx, q)
}

// Commit submits txs and seals them as one block written through q.
func (l *Ledger) Commit(ctx context.Context, q dbinterface.Querier, txs ...models.LedgerTransaction) (*models.LedgerBlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, txs...)
	return l.sealLocked(ctx, q)
}

// sealLocked empties the pending queue whether or not the seal succeeds: on
// failure the caller's transaction rolls back and the queued facts never happened.
func (l *Ledger) sealLocked(ctx context.Context, q dbinterface.Querier) (*models.LedgerBlock, error) {
	txs := l.pending
	l.pending = nil

	if l.halt != nil {
		return nil, errors.Wrapf(models.ErrIntegrityFailure, "ledger halted at %s", l.halt)
	}

	store := l.store.WithTx(q)

	tip, err := store.Last(ctx)
	switch {
	case errors.Is(err, models.ErrLedgerEmpty):
		if tip, err = l.genesisLocked(ctx, store); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	recomputed, err := HashBlock(tip)
	if err != nil {
		return nil, err
	}
	if recomputed != tip.Hash {
		l.haltLocked(&Break{From: tip.Index, To: tip.Index + 1, Reason: "tip hash does not match its contents"})
		return nil, errors.Wrapf(models.ErrIntegrityFailure, "ledger halted at %s", l.halt)
	}

	proof, err := FindProof(tip.Proof, l.difficulty, l.maxIterations)
	if err != nil {
		return nil, err
	}

	if txs == nil {
		txs = []models.LedgerTransaction{}
	}
	b := &models.LedgerBlock{
		Index:        tip.Index + 1,
		Timestamp:    models.Truncate(l.clock()),
		Transactions: txs,
		Proof:        proof,
		Difficulty:   l.difficulty,
		PreviousHash: tip.Hash,
	}
	if b.Hash, err = HashBlock(b); err != nil {
		return nil, err
	}

	if err := store.Append(ctx, b); err != nil {
		return nil, errors.Wrapf(err, "append block %d", b.Index)
	}

	log.Debug().
		Int64("block", b.Index).
		Int64("proof", proof).
		Int("difficulty", l.difficulty).
		Int("transactions", len(txs)).
		Msg("ledger block sealed")

	return b, nil
}

func (l *Ledger) haltLocked(b *Break) {
	l.halt = b
	log.Error().
		Int64("from", b.From).
		Int64("to", b.To).
		Str("reason", b.Reason).
		Msg("ledger integrity failure, refusing further seals until re-verified")
}

// Halted returns the break that stopped the ledger, or nil.
func (l *Ledger) Halted() *Break {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halt == nil {
		return nil
	}
	b := *l.halt
	return &b
}

// Verify walks the committed chain. A failure halts the ledger; a clean pass
// lifts an earlier halt.
func (l *Ledger) Verify(ctx context.Context) (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.walk(ctx)
	if err != nil {
		return nil, err
	}

	if res.Valid {
		if l.halt != nil {
			log.Warn().Str("previous", l.halt.String()).Msg("ledger re-verified, resuming seals")
		}
		l.halt = nil
	} else {
		l.haltLocked(res.Break)
	}

	return res, nil
}

func (l *Ledger) walk(ctx context.Context) (*VerifyResult, error) {
	res := &VerifyResult{Valid: true}

	var (
		prev         *models.LedgerBlock
		prevComputed string
		from         = GenesisIndex
	)

	for {
		page, err := l.store.Range(ctx, from, verifyPageSize)
		if err != nil {
			return nil, err
		}

		for _, cur := range page {
			computed, err := HashBlock(cur)
			if err != nil {
				return nil, err
			}

			if brk := l.checkLink(prev, prevComputed, cur); brk != nil {
				res.Valid = false
				res.Break = brk
				return res, nil
			}

			prev, prevComputed = cur, computed
			res.Blocks++
		}

		if len(page) < verifyPageSize {
			break
		}
		from = page[len(page)-1].Index + 1
	}

	if prev != nil && prevComputed != prev.Hash {
		res.Valid = false
		res.Break = &Break{From: prev.Index, To: prev.Index, Reason: "stored hash does not match block contents"}
	}

	return res, nil
}

// checkLink validates cur against its predecessor. prev is nil for the first block.
func (l *Ledger) checkLink(prev *models.LedgerBlock, prevComputed string, cur *models.LedgerBlock) *Break {
	if prev == nil {
		if cur.Index != GenesisIndex || cur.PreviousHash != GenesisPreviousHash {
			return &Break{From: cur.Index, To: cur.Index, Reason: "chain does not start at genesis"}
		}
		return nil
	}

	switch {
	case cur.Index != prev.Index+1:
		return &Break{From: prev.Index, To: cur.Index, Reason: "block index gap"}
	case cur.PreviousHash != prev.Hash:
		return &Break{From: prev.Index, To: cur.Index, Reason: "previous hash does not match stored hash"}
	case cur.PreviousHash != prevComputed:
		return &Break{From: prev.Index, To: cur.Index, Reason: "previous block contents were modified"}
	case !ValidProof(prev.Proof, cur.Proof, cur.Difficulty):
		return &Break{From: prev.Index, To: cur.Index, Reason: "invalid proof of work"}
	}
	return nil
}

// Blocks returns committed blocks starting at from.
func (l *Ledger) Blocks(ctx context.Context, from int64, limit int) ([]*models.LedgerBlock, error) {
	if from < GenesisIndex {
		from = GenesisIndex
	}
	return l.store.Range(ctx, from, limit)
}

// Height returns the index of the last committed block, 0 before genesis.
func (l *Ledger) Height(ctx context.Context) (int64, error) {
	return l.store.Height(ctx)
}
