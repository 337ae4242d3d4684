// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package devices

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/keygen-sh/machineid"
	"github.com/rs/zerolog/log"
)

const fingerprintFile = ".entitled-device-id"

// persistentIDDirs are checked in order when running inside a container,
// where the machine id changes with every image rebuild.
var persistentIDDirs = []string{
	"/config",
	"/var/lib/entitled",
}

// LocalFingerprint returns a stable fingerprint for the host running the
// CLI, scoped to appID so it cannot be correlated with other applications.
func LocalFingerprint(appID string) (string, error) {
	return localFingerprint(appID, persistentIDDirs)
}

func localFingerprint(appID string, dirs []string) (string, error) {
	if isRunningInContainer() {
		log.Trace().Msg("local fingerprint, running in container")
		if persistentID := persistentContainerID(dirs); persistentID != "" {
			hash := sha256.Sum256([]byte(appID + "-" + persistentID))
			return hex.EncodeToString(hash[:]), nil
		}
	}

	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return "", fmt.Errorf("failed to get machine ID: %w", err)
	}
	return id, nil
}

func isRunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}

	return strings.Contains(os.Getenv("container"), "podman")
}

// persistentContainerID reads the first existing id file, or creates one in
// the first writable directory.
func persistentContainerID(dirs []string) string {
	for _, dir := range dirs {
		if content, err := os.ReadFile(filepath.Join(dir, fingerprintFile)); err == nil {
			if id := strings.TrimSpace(string(content)); id != "" {
				return id
			}
		}
	}

	for _, dir := range dirs {
		if !dirExists(dir) {
			continue
		}
		newID := generateRandomID()
		if err := os.WriteFile(filepath.Join(dir, fingerprintFile), []byte(newID), 0o600); err == nil {
			return newID
		}
	}

	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func generateRandomID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		hash := sha256.Sum256(fmt.Appendf(nil, "%d-%s", os.Getpid(), runtime.GOOS))
		return hex.EncodeToString(hash[:16])
	}
	return hex.EncodeToString(bytes)
}
