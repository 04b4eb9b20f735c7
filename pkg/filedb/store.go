// Package filedb is a small name/value settings store for robot
// calibration, such as the steering trim.
package filedb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store reads and writes named settings as strings.
type Store interface {
	// Get returns the value for name, or def if unset.
	Get(name, def string) string

	// Set stores value under name.
	Set(name, value string) error
}

// NopStore returns defaults and persists nothing. It is used when no
// settings file is configured.
type NopStore struct{}

// Get returns def.
func (NopStore) Get(_, def string) string { return def }

// Set does nothing.
func (NopStore) Set(_, _ string) error { return nil }

// JSONStore implements Store using a JSON file for persistence.
type JSONStore struct {
	path   string
	values map[string]string
	mu     sync.RWMutex
}

// storeData is the JSON structure for the store file.
type storeData struct {
	Version   int               `json:"version"`
	UpdatedAt string            `json:"updated_at"`
	Values    map[string]string `json:"values"`
}

const currentVersion = 1

// NewJSONStore opens the store at path. The file is created on first Set.
func NewJSONStore(path string) (*JSONStore, error) {
	store := &JSONStore{
		path:   path,
		values: make(map[string]string),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
	}
	return store, nil
}

// Open returns a JSONStore for path, or NopStore when path is empty.
func Open(path string) (Store, error) {
	if path == "" {
		return NopStore{}, nil
	}
	return NewJSONStore(path)
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if stored.Values != nil {
		s.values = stored.Values
	}
	return nil
}

// save writes the store to disk. Callers hold s.mu.
func (s *JSONStore) save() error {
	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Values:    s.values,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get returns the value for name, or def if unset.
func (s *JSONStore) Get(name, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[name]; ok {
		return v
	}
	return def
}

// Set stores value under name and writes the file. On a write error the
// previous value is kept.
func (s *JSONStore) Set(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("filedb: empty setting name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[name]
	s.values[name] = value
	if err := s.save(); err != nil {
		if had {
			s.values[name] = prev
		} else {
			delete(s.values, name)
		}
		return err
	}
	return nil
}

// Names returns the stored setting names, sorted.
func (s *JSONStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the backing file path.
func (s *JSONStore) Path() string {
	return s.path
}

// GetInt parses the value for name as an integer. Unset names yield def;
// a value that is not an integer is an error.
func GetInt(s Store, name string, def int) (int, error) {
	raw := strings.TrimSpace(s.Get(name, strconv.Itoa(def)))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("filedb: %s: invalid integer %q", name, raw)
	}
	return n, nil
}
