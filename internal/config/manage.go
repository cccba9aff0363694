package config

import (
	"fmt"
	"iter"
	"strings"
)

// KeyInfo is one row of `config show`.
type KeyInfo struct {
	Key    string
	Type   string
	EnvVar string
	Value  string
}

// visible yields the keys that may be shown and set; secrets are env-only.
func visible() iter.Seq[keySpec] {
	return func(yield func(keySpec) bool) {
		for _, s := range specs {
			if !s.secret && !yield(s) {
				return
			}
		}
	}
}

// ShowAll lists every non-secret key with its effective value in cfg.
func ShowAll(cfg Config) []KeyInfo {
	var rows []KeyInfo
	for s := range visible() {
		rows = append(rows, KeyInfo{Key: s.key, Type: s.typeName(), EnvVar: s.env, Value: formatValue(s.extract(cfg))})
	}
	return rows
}

func formatValue(v any) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}

// SetKey validates value against key's type and saves it to the config
// file. Numbers, bools and lists are stored as JSON values, not strings.
func SetKey(key, value string) error {
	return setKey(openFileStore(ConfigFilePath()), key, value)
}

func setKey(f *fileStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s value for %s: %w", s.typeName(), key, err)
	}
	return f.put(key, v)
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// ValidKeys lists the keys `config set` accepts.
func ValidKeys() []string {
	var keys []string
	for s := range visible() {
		keys = append(keys, s.key)
	}
	return keys
}
