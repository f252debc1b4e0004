// Package config resolves runtime settings that need more than a flag:
// backend credentials and the log level.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// KeySource tells where a credential came from
type KeySource string

const (
	KeyFromFlag    KeySource = "flag"
	KeyFromFile    KeySource = "file"
	KeyFromEnv     KeySource = "env"
	KeyNotProvided KeySource = ""
)

// backendKeyEnv maps backends to the provider's conventional variable
var backendKeyEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// RequiresKey reports whether the backend needs a credential to start
func RequiresKey(scanner string) bool {
	_, ok := backendKeyEnv[scanner]
	return ok
}

// Getenv looks up an environment variable
type Getenv func(string) string

// LoadAPIKey resolves the backend credential: an explicit value wins, then
// the key file, then the backend's environment variable. A missing key file
// is not an error. An empty key with KeyNotProvided means none was found.
func LoadAPIKey(scanner, explicit, keyFile string, getenv Getenv) (string, KeySource, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, KeyFromFlag, nil
	}

	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		switch {
		case err == nil:
			if key := strings.TrimSpace(string(data)); key != "" {
				return key, KeyFromFile, nil
			}
		case !errors.Is(err, fs.ErrNotExist):
			return "", KeyNotProvided, fmt.Errorf("reading api key file: %w", err)
		}
	}

	if name, ok := backendKeyEnv[scanner]; ok && getenv != nil {
		if key := strings.TrimSpace(getenv(name)); key != "" {
			return key, KeyFromEnv, nil
		}
	}
	return "", KeyNotProvided, nil
}

// ParseLevel maps a level name onto a slog level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("parsing log level %q: %w", name, err)
	}
	return level, nil
}
