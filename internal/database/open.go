// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/autobrr/entitled/internal/domain"
)

// DefaultFilename is used when no explicit database path is configured.
const DefaultFilename = "entitled.db"

// ResolvePath picks the SQLite file location: an explicit databasePath wins,
// otherwise the database lives in dataDir (or the working directory).
func ResolvePath(cfg *domain.Config) string {
	if cfg == nil {
		return DefaultFilename
	}

	if p := strings.TrimSpace(cfg.DatabasePath); p != "" {
		return p
	}

	dir := strings.TrimSpace(cfg.DataDir)
	if dir == "" {
		return DefaultFilename
	}

	return filepath.Join(dir, DefaultFilename)
}

func OpenFromConfig(cfg *domain.Config) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	return New(ResolvePath(cfg))
}
