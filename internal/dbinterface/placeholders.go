// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"fmt"
	"strings"
)

// BuildQueryWithPlaceholders expands the single %s in template into numRows
// groups of placeholdersPerRow bind parameters, e.g. "(?, ?), (?, ?)".
func BuildQueryWithPlaceholders(template string, placeholdersPerRow, numRows int) string {
	if placeholdersPerRow <= 0 || numRows <= 0 {
		return fmt.Sprintf(template, "")
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", placeholdersPerRow), ", ") + ")"

	var b strings.Builder
	b.Grow(numRows * (len(row) + 2))
	for i := range numRows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
	}

	return fmt.Sprintf(template, b.String())
}
