package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DotEnvPath returns the absolute path to the dotenv file (~/.tilematch/.env).
func DotEnvPath() (string, error) {
	appDir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, ".env"), nil
}

// LoadDotEnv reads ~/.tilematch/.env. A missing file yields an empty map.
//
// One KEY=VALUE per line; blank lines and # comments are skipped, an
// optional "export " prefix is accepted, and a single pair of matching
// quotes around VALUE is stripped.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		k, v, ok := parseDotEnvLine(scanner.Text())
		if ok {
			out[k] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

func parseDotEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		value = value[1 : n-1]
	}
	return key, value, true
}

// GetConfigValue returns key from the process environment, falling back to
// ~/.tilematch/.env.
func GetConfigValue(key string) (string, error) {
	vals, err := GetConfigValues(key)
	if err != nil {
		return "", err
	}
	return vals[key], nil
}

// GetConfigValues resolves several keys with at most one read of the
// dotenv file. Unset keys map to "".
func GetConfigValues(keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	var dotenv map[string]string
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
			continue
		}
		if dotenv == nil {
			var err error
			if dotenv, err = LoadDotEnv(); err != nil {
				return nil, err
			}
		}
		out[k] = dotenv[k]
	}
	return out, nil
}

// EnsureDotEnvTemplate creates ~/.tilematch/.env if it does not already exist.
//
// The template lists the secret and deployment keys with empty values.
func EnsureDotEnvTemplate() error {
	p, err := DotEnvPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	body := "" +
		"TILEMATCH_AWS_ACCESS_KEY_ID=\n" +
		"TILEMATCH_AWS_SECRET_ACCESS_KEY=\n" +
		"TILEMATCH_AWS_REGION=\n" +
		"TILEMATCH_BUCKET=\n" +
		"TILEMATCH_PUBLIC_URL=\n" +
		"TILEMATCH_MODEL_TOKEN=\n"

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		return fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
