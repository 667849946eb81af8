// Package auth provides optional bearer-token authentication for the HTTP
// transport, with lockout of clients that keep presenting bad keys.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by KeyFromEnv.
const (
	DefaultEnvVar = "CPPMCP_API_KEY"
	FileEnvVar    = "CPPMCP_API_KEY_FILE"
)

// ValidateKey reports whether provided equals expected. Both are hashed
// first so the comparison time does not depend on key length. An empty
// expected key never matches.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}

// KeyFromEnv returns the API key with surrounding whitespace removed.
// CPPMCP_API_KEY wins; otherwise CPPMCP_API_KEY_FILE names a file holding
// the key (a mounted secret). Empty means authentication is disabled.
func KeyFromEnv() (string, error) {
	if key := strings.TrimSpace(os.Getenv(DefaultEnvVar)); key != "" {
		return key, nil
	}
	path := strings.TrimSpace(os.Getenv(FileEnvVar))
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", FileEnvVar, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s: %s is empty", FileEnvVar, path)
	}
	return key, nil
}
