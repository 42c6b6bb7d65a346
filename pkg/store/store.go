// Package store is a namespaced key-value store persisted as one JSON file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultFileName = ".moonx-swap.json"
)

// Store persists JSON values by key. Every write re-reads the file first so
// updates from other processes sharing the file are not lost.
type Store struct {
	filePath string
	mu       sync.Mutex
}

// NewStore creates a store at filePath, defaulting to the home directory
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		// Default to home directory
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{filePath: filePath}

	// Surface a corrupt file early
	if _, err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return s, nil
}

// load reads the document; a missing file is an empty document
func (s *Store) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}

	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return doc, nil
}

// save writes the document atomically
func (s *Store) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Get decodes the value at key into out and reports whether it existed
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := doc[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v at key
func (s *Store) Set(key string, v interface{}) error {
	return s.Update(key, func(json.RawMessage) (interface{}, error) { return v, nil })
}

// Delete removes key
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.save(doc)
}

// Update re-reads the file, passes the current value at key (nil if absent)
// to fn and writes back what fn returns
func (s *Store) Update(key string, fn func(current json.RawMessage) (interface{}, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	next, err := fn(doc[key])
	if err != nil {
		return err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	doc[key] = raw

	return s.save(doc)
}

// Keys returns all stored keys
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	return keys, nil
}

// FilePath returns the storage file path
func (s *Store) FilePath() string {
	return s.filePath
}
