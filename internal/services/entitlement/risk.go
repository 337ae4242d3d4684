// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"github.com/autobrr/entitled/internal/models"
)

// RiskInput is the environment a risk policy expression is evaluated against.
// ActiveDevices counts the user's devices that are not blacklisted, including
// the one being activated.
type RiskInput struct {
	UserID        string `expr:"userId"`
	IP            string `expr:"ip"`
	PlanType      string `expr:"planType"`
	TrustScore    int    `expr:"trustScore"`
	ActiveDevices int    `expr:"activeDevices"`
	IsNew         bool   `expr:"isNew"`
}

// RiskPolicy is a compiled boolean expression deciding whether an activation
// may proceed, e.g. `trustScore >= 40 && !(isNew && activeDevices > 5)`.
type RiskPolicy struct {
	program *vm.Program
	source  string
}

// CompileRiskPolicy compiles src. An empty source yields a nil policy, which
// allows everything.
func CompileRiskPolicy(src string) (*RiskPolicy, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}

	program, err := expr.Compile(src, expr.Env(RiskInput{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(models.ErrInvalidArgument, "compile risk policy: %v", err)
	}
	return &RiskPolicy{program: program, source: src}, nil
}

func (p *RiskPolicy) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Allow evaluates the policy. A nil policy allows every input.
func (p *RiskPolicy) Allow(in RiskInput) (bool, error) {
	if p == nil {
		return true, nil
	}

	out, err := expr.Run(p.program, in)
	if err != nil {
		return false, errors.Wrap(err, "evaluate risk policy")
	}
	allowed, ok := out.(bool)
	if !ok {
		return false, errors.Errorf("risk policy returned %T, want bool", out)
	}
	return allowed, nil
}
