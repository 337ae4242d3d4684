// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"testing"

	"github.com/autobrr/entitled/internal/database"
	"github.com/autobrr/entitled/internal/testdb"
)

func setupLicenseTestDB(t *testing.T) *database.DB {
	t.Helper()

	return testdb.Open(t, "license-service")
}
