// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTableSerializesSameKey(t *testing.T) {
	t.Parallel()

	locks := newLockTable(8)
	counter := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(licenseKey("l-1"), userKey("u-1"))
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestLockTableOppositeOrderDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	locks := newLockTable(4)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{licenseKey(fmt.Sprint(i % 3)), userKey(fmt.Sprint(i % 5))}
			if i%2 == 0 {
				keys[0], keys[1] = keys[1], keys[0]
			}
			unlock := locks.lock(keys...)
			unlock()
		}()
	}
	wg.Wait()
}

func TestLockTableCollidingKeys(t *testing.T) {
	t.Parallel()

	locks := newLockTable(1)
	unlock := locks.lock("a", "b", "c")
	unlock()

	unlock = locks.lock("a")
	unlock()
}
