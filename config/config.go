package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
)

const (
	// DefaultFile is the slightfile looked up when none is given.
	DefaultFile = "slightfile.toml"

	// DefaultSecretStore is relative to the slightfile's directory.
	DefaultSecretStore = ".slight/secrets.toml"

	SpecVersion = "0.1"
)

// File is a parsed slightfile.
type File struct {
	SpecVersion  string            `toml:"specversion"`
	SecretStore  string            `toml:"secret_store"`
	Entries      []CapabilityEntry `toml:"capability"`

	path string
}

// CapabilityEntry is one [[capability]] table.
type CapabilityEntry struct {
	Resource string            `toml:"resource"`
	Name     string            `toml:"name"`
	Configs  map[string]string `toml:"configs"`
}

// Capability is a validated entry ready for linking.
type Capability struct {
	Config  host.ResourceConfig
	Options []host.KeyValue
}

// Load reads and validates the slightfile at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindNotFound).
			Resource(path).
			Detail("read slightfile").
			Cause(err).
			Build()
	}
	f, err := Parse(data)
	if err != nil {
		var herr *hosterrors.Error
		if errors.As(err, &herr) && herr.Resource == "" {
			herr.Resource = path
		}
		return nil, err
	}
	f.path = path
	return f, nil
}

// Parse decodes and validates slightfile contents.
func Parse(data []byte) (*File, error) {
	var f File
	meta, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	if err != nil {
		return nil, hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindInvalidData, err, "parse slightfile")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidData).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	if !meta.IsDefined("specversion") {
		f.SpecVersion = SpecVersion
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every capability entry has a resource and a name that
// are valid path segments and that no resource/name pair repeats.
func (f *File) Validate() error {
	if f.SpecVersion != SpecVersion {
		return hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindUnsupported).
			Value(f.SpecVersion).
			Detail("specversion %q, want %q", f.SpecVersion, SpecVersion).
			Build()
	}

	seen := make(map[host.ResourceConfig]int, len(f.Entries))
	for i, c := range f.Entries {
		if strings.TrimSpace(c.Resource) == "" || strings.TrimSpace(c.Name) == "" {
			return hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
				Value(i).
				Detail("capability[%d] needs both resource and name", i).
				Build()
		}
		key := host.ResourceConfig{Resource: c.Resource, Name: c.Name}
		if err := key.Validate(); err != nil {
			return hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
				Value(i).
				Cause(err).
				Detail("capability[%d]", i).
				Build()
		}
		if prev, ok := seen[key]; ok {
			return hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindDuplicate).
				Resource(key.String()).
				Detail("capability[%d] repeats capability[%d]", i, prev).
				Build()
		}
		seen[key] = i
	}
	return nil
}

// Path returns the file the slightfile was loaded from.
func (f *File) Path() string {
	return f.path
}

// Capabilities returns the entries in file order. Options are sorted by key.
func (f *File) Capabilities() []Capability {
	out := make([]Capability, 0, len(f.Entries))
	for _, c := range f.Entries {
		keys := make([]string, 0, len(c.Configs))
		for k := range c.Configs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		opts := make([]host.KeyValue, 0, len(keys))
		for _, k := range keys {
			opts = append(opts, host.KeyValue{Key: k, Value: c.Configs[k]})
		}
		out = append(out, Capability{
			Config:  host.ResourceConfig{Resource: c.Resource, Name: c.Name},
			Options: opts,
		})
	}
	return out
}

// SecretStorePath resolves the secret store relative to the slightfile.
func (f *File) SecretStorePath() string {
	p := f.SecretStore
	if p == "" {
		p = DefaultSecretStore
	}
	if filepath.IsAbs(p) || f.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(f.path), p)
}
