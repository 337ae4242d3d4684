// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultLockStripes = 256

// lockTable is a fixed set of mutexes addressed by key hash. Distinct keys may
// share a stripe, which only costs concurrency.
type lockTable struct {
	stripes []sync.Mutex
}

func newLockTable(n int) *lockTable {
	if n <= 0 {
		n = defaultLockStripes
	}
	return &lockTable{stripes: make([]sync.Mutex, n)}
}

func (t *lockTable) stripe(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(t.stripes)))
}

// lock acquires the stripes for keys in ascending stripe order and returns
// the matching unlock.
func (t *lockTable) lock(keys ...string) (unlock func()) {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, t.stripe(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		t.stripes[i].Lock()
	}

	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			t.stripes[idx[i]].Unlock()
		}
	}
}

func licenseKey(id string) string { return "license:" + id }

func userKey(id string) string { return "user:" + id }
