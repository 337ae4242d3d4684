// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/entitled/internal/models"
)

func TestCompileRiskPolicy(t *testing.T) {
	t.Parallel()

	p, err := CompileRiskPolicy("  ")
	require.NoError(t, err)
	assert.Nil(t, p)

	allowed, err := p.Allow(RiskInput{})
	require.NoError(t, err)
	assert.True(t, allowed, "nil policy allows everything")

	_, err = CompileRiskPolicy(`trustScore +`)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = CompileRiskPolicy(`trustScore + 1`)
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "non-boolean result is rejected at compile time")

	_, err = CompileRiskPolicy(`unknownField > 1`)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRiskPolicyAllow(t *testing.T) {
	t.Parallel()

	p, err := CompileRiskPolicy(`trustScore >= 40 && !(isNew && activeDevices > 3) && planType != "banned" && !(ip startsWith "10.")`)
	require.NoError(t, err)
	assert.Contains(t, p.String(), "trustScore")

	tests := []struct {
		name string
		in   RiskInput
		want bool
	}{
		{name: "default trust", in: RiskInput{TrustScore: 50, PlanType: "pro"}, want: true},
		{name: "low trust", in: RiskInput{TrustScore: 10, PlanType: "pro"}, want: false},
		{name: "new device on crowded account", in: RiskInput{TrustScore: 50, IsNew: true, ActiveDevices: 4}, want: false},
		{name: "known device on crowded account", in: RiskInput{TrustScore: 50, ActiveDevices: 4}, want: true},
		{name: "banned plan", in: RiskInput{TrustScore: 50, PlanType: "banned"}, want: false},
		{name: "private address", in: RiskInput{TrustScore: 50, IP: "10.0.0.8"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.Allow(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
