// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", RedactString(""))
	assert.Equal(t, RedactedStr, RedactString("s3cret"))
	assert.Equal(t, RedactedStr, RedactString(" "))
}

func TestConfigRedacted(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:                  "0.0.0.0",
		APIToken:              "tok",
		MetricsBasicAuthUsers: "ops:pw1, grafana:pw2,broken,:nouser",
		CORSAllowedOrigins:    []string{"https://a.example"},
		RiskPolicy:            "trustScore >= 20",
	}

	out := cfg.Redacted()

	assert.Equal(t, RedactedStr, out.APIToken)
	assert.Equal(t, "ops:"+RedactedStr+",grafana:"+RedactedStr, out.MetricsBasicAuthUsers)
	assert.Equal(t, "0.0.0.0", out.Host)
	assert.Equal(t, "trustScore >= 20", out.RiskPolicy)

	// the original is untouched and the slice is not shared
	assert.Equal(t, "tok", cfg.APIToken)
	out.CORSAllowedOrigins[0] = "changed"
	assert.Equal(t, "https://a.example", cfg.CORSAllowedOrigins[0])
}

func TestConfigRedactedWithoutSecrets(t *testing.T) {
	t.Parallel()

	out := (&Config{Port: 7480}).Redacted()

	assert.Empty(t, out.APIToken)
	assert.Empty(t, out.MetricsBasicAuthUsers)
	assert.Equal(t, 7480, out.Port)
}
