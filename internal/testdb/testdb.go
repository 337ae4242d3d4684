// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb hands out migrated SQLite databases to tests. Migrations run
// once per test binary against a template which is then copied with
// VACUUM INTO for every caller.
package testdb

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/autobrr/entitled/internal/database"
)

var (
	templateOnce sync.Once
	templateDB   *database.DB
	templateErr  error

	cloneMu sync.Mutex
)

// Open returns a private migrated database for the test, closed on cleanup.
// name only labels the file.
func Open(t testing.TB, name string) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), fileName(name))
	if err := cloneTemplate(path); err != nil {
		t.Fatalf("clone test DB %q: %v", name, err)
	}

	db, err := database.New(path)
	if err != nil {
		t.Fatalf("open test DB %q: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test DB %q: %v", name, err)
		}
	})
	return db
}

func cloneTemplate(dst string) error {
	templateOnce.Do(func() {
		dir, err := os.MkdirTemp("", "entitled-testdb-")
		if err != nil {
			templateErr = err
			return
		}
		templateDB, templateErr = database.New(filepath.Join(dir, "template.db"))
	})
	if templateErr != nil {
		return templateErr
	}

	cloneMu.Lock()
	defer cloneMu.Unlock()
	_, err := templateDB.Conn().Exec("VACUUM INTO ?", dst)
	return err
}

func fileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "test.db"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, name) + ".db"
}
