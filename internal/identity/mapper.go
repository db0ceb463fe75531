// Package identity maps in-game (Steam) usernames to chat user ids.
package identity

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Parse decodes a JSON or YAML object of username -> chat id. Blank input
// is an empty mapping.
func Parse(data []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "identity: decode mapping")
	}
	for k, v := range out {
		v = strings.TrimSpace(v)
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Mapper holds the active mapping. Entries from the file override the
// inline base mapping.
type Mapper struct {
	mu      sync.RWMutex
	base    map[string]string
	path    string
	entries map[string]string
	log     *slog.Logger
}

// New builds a mapper from an inline mapping and an optional file. A file
// that fails to load is logged and the inline mapping is used alone.
func New(base map[string]string, path string, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{base: base, path: path, log: logger}
	m.entries = merge(base, nil)
	if path != "" {
		if _, err := m.Reload(); err != nil {
			logger.Error("identity: load mapping file", "path", path, "err", err)
		}
	}
	return m
}

// FromEnv parses the inline mapping the way the webhook historically did:
// invalid JSON is logged and treated as empty.
func FromEnv(inline, path string, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := Parse([]byte(inline))
	if err != nil {
		logger.Error("identity: failed to parse USER_MAPPING", "err", err)
		base = map[string]string{}
	}
	return New(base, path, logger)
}

// Lookup returns the chat id for player.
func (m *Mapper) Lookup(player string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.entries[player]
	return id, ok
}

func (m *Mapper) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Path is the watched mapping file, if any.
func (m *Mapper) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

// Replace swaps the file-sourced entries.
func (m *Mapper) Replace(fromFile map[string]string) {
	merged := merge(m.base, fromFile)
	m.mu.Lock()
	m.entries = merged
	m.mu.Unlock()
}

// Reload re-reads the mapping file and returns the number of entries now
// active. On error the previous mapping stays in place.
func (m *Mapper) Reload() (int, error) {
	if m.path == "" {
		return m.Len(), nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return m.Len(), errors.Wrap(err, "identity: read mapping file")
	}
	fromFile, err := Parse(data)
	if err != nil {
		return m.Len(), err
	}
	m.Replace(fromFile)
	n := m.Len()
	m.log.Info("identity: mapping loaded", "path", m.path, "entries", n)
	return n, nil
}

func merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
