package kv

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const tmpSuffix = ".tmp"

var (
	ErrNotFound   = errors.New("kv: key not found")
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Store is a key-value store with one file per key under a directory.
// Safe for concurrent use within one process.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// OpenStore creates dir if needed and returns a store rooted there.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// ValidKey reports whether key maps to a single file inside the store.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." || strings.HasSuffix(key, tmpSuffix) {
		return false
	}
	return !strings.ContainsAny(key, "/\\\x00")
}

func (s *Store) file(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, key), nil
}

// Get returns the value for key.
func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.file(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Set stores value under key.
func (s *Store) Set(key string, value []byte) error {
	path, err := s.file(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	path, err := s.file(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasSuffix(e.Name(), tmpSuffix) {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}
