// Package config stores Life Engine connection profiles in the OS keychain
// and resolves the effective client configuration from profiles, the
// environment and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "life-engine-cli"

	envKeyringBackend  = "LE_KEYRING_BACKEND"
	envKeyringPassword = "LE_KEYRING_PASSWORD"
	envCredentialsDir  = "LE_CREDENTIALS_DIR"

	keyringBackendAuto   = "auto"
	keyringBackendFile   = "file"
	keyringBackendSystem = "system"
)

var backendAliases = map[string]string{
	"":       keyringBackendAuto,
	"auto":   keyringBackendAuto,
	"file":   keyringBackendFile,
	"system": keyringBackendSystem,
	"os":     keyringBackendSystem,
	"native": keyringBackendSystem,
}

var openKeyring = keyring.Open

var userConfigDir = os.UserConfigDir

var stdinHasTTY = func() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// SetOpenKeyring swaps the keyring opener and returns a func restoring it.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	prev := openKeyring
	openKeyring = fn
	return func() { openKeyring = prev }
}

// keyringBackendMode reads LE_KEYRING_BACKEND. Unknown values mean auto.
func keyringBackendMode() string {
	if mode, ok := backendAliases[strings.ToLower(strings.TrimSpace(os.Getenv(envKeyringBackend)))]; ok {
		return mode
	}
	return keyringBackendAuto
}

func keyringConfig() keyring.Config {
	cfg := keyring.Config{ServiceName: serviceName}
	mode := keyringBackendMode()
	if mode == keyringBackendSystem {
		return cfg
	}

	// auto keeps the file settings so keyring.Open can fall back to them
	cfg.FileDir = filepath.Join(baseDir(), "keyring")
	cfg.FilePasswordFunc = keyringFilePassword
	if shouldForceFileBackend(runtime.GOOS, mode, os.Getenv("DBUS_SESSION_BUS_ADDRESS")) {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	return cfg
}

// shouldForceFileBackend is true for an explicit file backend and for
// Linux without a session bus, where the secret service is unreachable.
func shouldForceFileBackend(goos, mode, dbusAddr string) bool {
	switch mode {
	case keyringBackendFile:
		return true
	case keyringBackendAuto:
		return goos == "linux" && strings.TrimSpace(dbusAddr) == ""
	}
	return false
}

func keyringFilePassword(prompt string) (string, error) {
	if pw, ok := os.LookupEnv(envKeyringPassword); ok && strings.TrimSpace(pw) != "" {
		return pw, nil
	}
	if !stdinHasTTY() {
		return "", fmt.Errorf("set %s when using file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

// baseDir holds the keyring files and the pending sign-in store.
func baseDir() string {
	if dir := strings.TrimSpace(os.Getenv(envCredentialsDir)); dir != "" {
		return dir
	}
	if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, serviceName)
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, ".config", serviceName)
	}
	return filepath.Join(os.TempDir(), serviceName)
}

// FlowStorePath is the bolt file holding sign-ins started by one process
// and finished by another.
func FlowStorePath() string {
	return filepath.Join(baseDir(), "flows.db")
}
