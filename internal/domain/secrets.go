// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactedStr replaces secret values in logged or printed configuration.
const RedactedStr = "<redacted>"

// RedactString returns RedactedStr for any non-empty input.
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return RedactedStr
}

// Redacted returns a copy of the config that is safe to log. Basic auth
// entries keep their user names.
func (c *Config) Redacted() Config {
	out := *c
	out.APIToken = RedactString(c.APIToken)

	if c.MetricsBasicAuthUsers != "" {
		var users []string
		for _, entry := range strings.SplitSeq(c.MetricsBasicAuthUsers, ",") {
			user, _, ok := strings.Cut(strings.TrimSpace(entry), ":")
			if !ok || user == "" {
				continue
			}
			users = append(users, user+":"+RedactedStr)
		}
		out.MetricsBasicAuthUsers = strings.Join(users, ",")
	}

	out.CORSAllowedOrigins = append([]string(nil), c.CORSAllowedOrigins...)
	return out
}
