// Package config loads user configuration from a key=value file and the
// environment.
//
// Secrets (reddit credentials, the OpenAI key) come from the environment
// only and are never written to disk. The config file holds non-secret
// defaults such as the default subreddit and the server listen address.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/subfeed/subfeed/internal/reddit"
)

// Config keys.
const (
	KeyDefaultSubreddit = "default-subreddit"
	KeyListenAddr       = "listen-addr"
)

// Environment variable fallbacks for config file keys.
const (
	EnvDefaultSubreddit = "SUBFEED_DEFAULT_SUBREDDIT"
	EnvListenAddr       = "SUBFEED_LISTEN_ADDR"
)

// Environment variables for secrets and rate limit overrides.
const (
	EnvClientID     = "SUBFEED_CLIENT_ID"
	EnvClientSecret = "SUBFEED_CLIENT_SECRET"
	EnvUsername     = "SUBFEED_USERNAME"
	EnvPassword     = "SUBFEED_PASSWORD"
	EnvUserAgent    = "SUBFEED_USER_AGENT"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvRateLimit    = "SUBFEED_RATE_LIMIT"
	EnvRateWindow   = "SUBFEED_RATE_WINDOW"
)

// validKeys are the keys accepted by Save.
var validKeys = map[string]bool{
	KeyDefaultSubreddit: true,
	KeyListenAddr:       true,
}

// Config holds user configuration loaded from ~/.config/subfeed/config.
type Config struct {
	DefaultSubreddit string
	ListenAddr       string
}

// Settings holds environment-sourced runtime settings. Zero fields mean
// the variable was unset (or unparsable for the rate overrides); callers
// apply their own defaults.
type Settings struct {
	Credentials  reddit.Credentials
	OpenAIAPIKey string
	RateLimit    int
	RateWindow   time.Duration
}

// FromEnv reads runtime settings using the given environment lookup.
// Rate limit overrides are plain integers (permits, window seconds);
// values that fail to parse or are not positive are ignored.
func FromEnv(getenv func(string) string) Settings {
	s := Settings{
		Credentials: reddit.Credentials{
			ClientID:     getenv(EnvClientID),
			ClientSecret: getenv(EnvClientSecret),
			Username:     getenv(EnvUsername),
			Password:     getenv(EnvPassword),
			UserAgent:    getenv(EnvUserAgent),
		},
		OpenAIAPIKey: getenv(EnvOpenAIAPIKey),
	}
	if v := getenv(EnvRateLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.RateLimit = n
		}
	}
	if v := getenv(EnvRateWindow); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.RateWindow = time.Duration(n) * time.Second
		}
	}
	return s
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/subfeed.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "subfeed"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "subfeed"), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and environment variables.
// Precedence: config file values, then environment variable fallbacks.
// Returns an empty Config if the file doesn't exist (not an error).
func Load() (Config, error) {
	var cfg Config

	p, err := path()
	if err != nil {
		return cfg, err
	}

	// Read config file if it exists.
	if data, err := parseFile(p); err == nil {
		cfg.DefaultSubreddit = data[KeyDefaultSubreddit]
		cfg.ListenAddr = data[KeyListenAddr]
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	// Environment variable fallback (only if not set in config).
	if cfg.DefaultSubreddit == "" {
		cfg.DefaultSubreddit = os.Getenv(EnvDefaultSubreddit)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = os.Getenv(EnvListenAddr)
	}

	return cfg, nil
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid syntax at line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		data[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return data, nil
}

// Save writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %q", key)
	}

	p, err := path()
	if err != nil {
		return err
	}

	// Ensure config directory exists.
	d := filepath.Dir(p)
	if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	// Read existing config (if any).
	existing, _ := parseFile(p)
	if existing == nil {
		existing = make(map[string]string)
	}

	// Update value.
	existing[key] = value

	// Write back.
	return writeFile(p, existing)
}

// writeFile writes the config map to a file in sorted key order.
func writeFile(p string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, data[key]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	p, err := path()
	if err != nil {
		return "", err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return data[key], nil
}

// List returns all config values as a map.
func List() (map[string]string, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// Dir returns the configuration directory path (exported for testing).
func Dir() (string, error) {
	return dir()
}

// ParseFile reads a key=value config file (exported for testing).
func ParseFile(p string) (map[string]string, error) {
	return parseFile(p)
}
