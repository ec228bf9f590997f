package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"

	hosterrors "github.com/wippyai/wasm-host/errors"
)

// SecretStore keeps application secrets in a TOML file:
//
//	[secrets]
//	token = "..."
type SecretStore struct {
	path string
	mu   sync.Mutex
}

type secretFile struct {
	Secrets map[string]string `toml:"secrets"`
}

// OpenSecretStore returns a store backed by path. The file is created on
// the first Put.
func OpenSecretStore(path string) *SecretStore {
	return &SecretStore{path: path}
}

// Path returns the backing file.
func (s *SecretStore) Path() string {
	return s.path
}

// Put stores value under key, replacing any previous value.
func (s *SecretStore) Put(key, value string) error {
	if key == "" {
		return hosterrors.InvalidInput(hosterrors.PhaseConfig, "secret key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}
	secrets[key] = value

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(secretFile{Secrets: secrets}); err != nil {
		return hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindInvalidData, err, "encode secrets")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindSetup, err, "create secret store dir")
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindSetup, err, "write secret store")
	}
	return nil
}

// Get returns the secret under key.
func (s *SecretStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := secrets[key]
	return v, ok, nil
}

// All returns every secret. A missing file yields an empty map.
func (s *SecretStore) All() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Keys returns the secret names, sorted.
func (s *SecretStore) Keys() ([]string, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *SecretStore) load() (map[string]string, error) {
	var f secretFile
	if _, err := toml.DecodeFile(s.path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidData).
			Resource(s.path).
			Detail("read secret store").
			Cause(err).
			Build()
	}
	if f.Secrets == nil {
		f.Secrets = make(map[string]string)
	}
	return f.Secrets, nil
}
