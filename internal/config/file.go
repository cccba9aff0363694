package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// fileStore is the flat JSON config file: one top-level member per dotted key.
type fileStore struct {
	path string
	data map[string]any
}

// openFileStore reads path. A missing file is an empty store; an unreadable
// or malformed one warns and is treated as empty.
func openFileStore(path string) *fileStore {
	f := &fileStore{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(raw, &f.data); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
			f.data = make(map[string]any)
		}
	}
	return f
}

// ConfigFilePath returns $XDG_CONFIG_HOME/localtalk/config.json.
func ConfigFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "."), "localtalk", "config.json")
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "localtalk-data"), "localtalk")
}

func xdgDir(env, homeRel, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, homeRel)
	}
	return fallback
}

// raw returns the stored value for s in the string form keySpec.parse
// accepts. JSON numbers are checked against integer keys here so that a
// fractional port is an error rather than a silent default.
func (f *fileStore) raw(s keySpec) (string, bool, error) {
	v, ok := f.data[s.key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	case float64:
		if s.typ == kInt && (val != math.Trunc(val) || val < math.MinInt || val > math.MaxInt) {
			return "", true, fmt.Errorf("value %v for %s is not a valid integer", val, s.key)
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ","), true, nil
	}
	return "", true, fmt.Errorf("unsupported value %T for %s", v, s.key)
}

// put stores v under key and rewrites the file via a temp file and rename.
func (f *fileStore) put(key string, v any) error {
	f.data[key] = v
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
