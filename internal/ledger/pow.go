// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/autobrr/entitled/internal/models"
)

func proofDigest(previousProof, proof int64) string {
	buf := make([]byte, 0, 40)
	buf = strconv.AppendInt(buf, previousProof, 10)
	buf = strconv.AppendInt(buf, proof, 10)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// ValidProof reports whether proof satisfies difficulty against previousProof.
func ValidProof(previousProof, proof int64, difficulty int) bool {
	if proof < 0 {
		return false
	}
	return strings.HasPrefix(proofDigest(previousProof, proof), strings.Repeat("0", difficulty))
}

// FindProof returns the smallest non-negative proof valid against
// previousProof, trying at most maxIterations candidates.
func FindProof(previousProof int64, difficulty int, maxIterations int64) (int64, error) {
	prefix := strings.Repeat("0", difficulty)
	for p := int64(0); p < maxIterations; p++ {
		if strings.HasPrefix(proofDigest(previousProof, p), prefix) {
			return p, nil
		}
	}
	return 0, errors.Wrapf(models.ErrProofNotFound, "difficulty %d after %d iterations", difficulty, maxIterations)
}
