// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var sectionHeader = regexp.MustCompile(`^\s*\[[^\]]+\]\s*$`)

// UpdateLogSettings rewrites the log keys in the config file in place. The
// file watcher picks the change up and reapplies the level.
func (c *AppConfig) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	content, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	updated := updateLogSettingsInTOML(string(content), level, path, maxSize, maxBackups)
	if err := os.WriteFile(c.configPath, []byte(updated), 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", c.configPath, err)
	}
	return nil
}

func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	content = setTOMLValue(content, "logLevel", strconv.Quote(level))
	if path != "" {
		content = setTOMLValue(content, "logPath", strconv.Quote(path))
	}
	content = setTOMLValue(content, "logMaxSize", strconv.Itoa(maxSize))
	content = setTOMLValue(content, "logMaxBackups", strconv.Itoa(maxBackups))
	return content
}

// setTOMLValue replaces a top-level key, uncommenting it when needed. Keys
// that do not exist yet are inserted before the first table header so they
// stay top-level.
func setTOMLValue(content, key, value string) string {
	line := key + " = " + value
	pattern := regexp.MustCompile(`^\s*#?\s*` + regexp.QuoteMeta(key) + `\s*=`)

	lines := strings.Split(content, "\n")
	firstSection := -1
	for i, l := range lines {
		if sectionHeader.MatchString(l) {
			firstSection = i
			break
		}
		if pattern.MatchString(l) {
			lines[i] = line
			return strings.Join(lines, "\n")
		}
	}

	if firstSection == -1 {
		if !strings.HasSuffix(content, "\n") && content != "" {
			content += "\n"
		}
		return content + line + "\n"
	}

	out := make([]string, 0, len(lines)+2)
	out = append(out, lines[:firstSection]...)
	out = append(out, line, "")
	out = append(out, lines[firstSection:]...)
	return strings.Join(out, "\n")
}
