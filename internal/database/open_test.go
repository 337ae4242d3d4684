// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/entitled/internal/domain"
)

func TestResolvePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *domain.Config
		want string
	}{
		{name: "nil config", cfg: nil, want: DefaultFilename},
		{name: "empty config", cfg: &domain.Config{}, want: DefaultFilename},
		{name: "data dir", cfg: &domain.Config{DataDir: "/var/lib/entitled"}, want: filepath.Join("/var/lib/entitled", DefaultFilename)},
		{name: "explicit path wins", cfg: &domain.Config{DataDir: "/var/lib/entitled", DatabasePath: "/srv/custom.db"}, want: "/srv/custom.db"},
		{name: "whitespace path ignored", cfg: &domain.Config{DataDir: "/data", DatabasePath: "  "}, want: filepath.Join("/data", DefaultFilename)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResolvePath(tt.cfg))
		})
	}
}

func TestOpenFromConfigNil(t *testing.T) {
	t.Parallel()

	_, err := OpenFromConfig(nil)
	assert.Error(t, err)
}
