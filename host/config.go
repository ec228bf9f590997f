package host

import (
	"strings"

	"go.uber.org/zap"

	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi"
)

// ResourceConfig identifies one linked capability instance, for example
// {Resource: "kv.filesystem", Name: "orders"}. It is comparable and used as
// the key of the Host Context state map.
type ResourceConfig struct {
	Resource string
	Name     string
}

// String renders the config as resource/name.
func (c ResourceConfig) String() string {
	return c.Resource + "/" + c.Name
}

// IsZero reports whether both fields are empty.
func (c ResourceConfig) IsZero() bool {
	return c.Resource == "" && c.Name == ""
}

// Validate checks both fields are usable as a single path segment. String
// joins them with "/" and capabilities derive directories from Name.
func (c ResourceConfig) Validate() error {
	for _, f := range [...]struct{ field, v string }{{"resource", c.Resource}, {"name", c.Name}} {
		if detail := segmentProblem(f.v); detail != "" {
			return hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
				Resource(c.String()).
				Value(f.v).
				Detail("%s %s", f.field, detail).
				Build()
		}
	}
	return nil
}

func segmentProblem(v string) string {
	switch {
	case strings.TrimSpace(v) == "":
		return "is empty"
	case v == "." || v == "..":
		return "is a relative path element"
	case strings.ContainsAny(v, "/\\\x00"):
		return "contains a path separator or NUL"
	}
	return ""
}

// ParseResourceConfig parses the resource/name form produced by String.
func ParseResourceConfig(s string) (ResourceConfig, error) {
	resourceKind, name, ok := strings.Cut(s, "/")
	if !ok {
		return ResourceConfig{}, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
			Value(s).
			Detail("resource config %q: want resource/name", s).
			Build()
	}
	cfg := ResourceConfig{Resource: resourceKind, Name: name}
	if err := cfg.Validate(); err != nil {
		return ResourceConfig{}, err
	}
	return cfg, nil
}

// KeyValue is one entry of a configuration list.
type KeyValue struct {
	Key   string
	Value string
}

// Lookup returns the last value for key in kvs.
func Lookup(kvs []KeyValue, key string) (string, bool) {
	for i := len(kvs) - 1; i >= 0; i-- {
		if kvs[i].Key == key {
			return kvs[i].Value, true
		}
	}
	return "", false
}

// BuildContext is what a capability sees while building its state.
type BuildContext struct {
	// Resources is the registry injected at construction, or nil.
	Resources *resource.Map
	Logger    *zap.Logger
	// Environment is the instance's inherited environment, or nil.
	Environment *wasi.Environment
	Config      ResourceConfig
	// Options are the capability's own settings.
	Options []KeyValue
	// Settings is the builder-wide raw configuration list.
	Settings []KeyValue
}

// Option returns the capability option for key.
func (bc BuildContext) Option(key string) (string, bool) {
	return Lookup(bc.Options, key)
}

// OptionOr returns the capability option for key or def.
func (bc BuildContext) OptionOr(key, def string) string {
	if v, ok := bc.Option(key); ok {
		return v
	}
	return def
}

// Log returns the configured logger or a no-op one, named after Config.
func (bc BuildContext) Log() *zap.Logger {
	l := bc.Logger
	if l == nil {
		l = Logger()
	}
	return l.With(zap.Stringer("capability", bc.Config))
}
