package wasi

import (
	"context"
	crand "crypto/rand"
	"io"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/wasm-host/errors"
)

// Namespace is the import module name reserved for the environment.
const Namespace = wasi_snapshot_preview1.ModuleName

const (
	// CacheHostDir is the host directory pre-opened by DefaultConfig.
	CacheHostDir = "./target"
	// CacheGuestPath is the name the guest sees CacheHostDir under.
	CacheGuestPath = "/cache"
)

// Preopen maps a host directory to a guest-visible path.
type Preopen struct {
	HostDir   string
	GuestPath string
	ReadOnly  bool
}

// Config describes what the guest inherits from the host.
type Config struct {
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Env      map[string]string
	Args     []string
	Preopens []Preopen
}

// DefaultConfig inherits the process stdio and arguments and pre-opens the
// cache directory.
func DefaultConfig() Config {
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Args:   os.Args,
		Preopens: []Preopen{
			{HostDir: CacheHostDir, GuestPath: CacheGuestPath},
		},
	}
}

// WithPreopens returns a copy of c with its pre-opens replaced.
func (c Config) WithPreopens(p ...Preopen) Config {
	c.Preopens = p
	return c
}

// WithArgs returns a copy of c with its arguments replaced.
func (c Config) WithArgs(args ...string) Config {
	c.Args = args
	return c
}

// Environment is a validated inherited environment ready to be linked.
type Environment struct {
	cfg Config
}

// New validates cfg. Arguments and environment entries must be valid UTF-8;
// every pre-opened host directory must exist and be readable.
func New(cfg Config) (*Environment, error) {
	for i, arg := range cfg.Args {
		if !utf8.ValidString(arg) {
			return nil, errors.ArgumentEncoding(i, arg)
		}
	}
	for k, v := range cfg.Env {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return nil, errors.New(errors.PhaseEnvironment, errors.KindArgumentEncoding).
				Detail("environment entry %q is not valid UTF-8", k).
				Build()
		}
	}

	seen := make(map[string]bool, len(cfg.Preopens))
	for _, p := range cfg.Preopens {
		if p.GuestPath == "" {
			return nil, errors.EnvironmentSetup(p.HostDir, "pre-open has empty guest path", nil)
		}
		if seen[p.GuestPath] {
			return nil, errors.EnvironmentSetup(p.HostDir, "guest path "+p.GuestPath+" mounted twice", nil)
		}
		seen[p.GuestPath] = true

		if err := checkDir(p.HostDir); err != nil {
			return nil, err
		}
	}

	if cfg.Stdin == nil {
		cfg.Stdin = eofReader{}
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	return &Environment{cfg: cfg}, nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.EnvironmentSetup(path, "pre-open directory", err)
	}
	if !info.IsDir() {
		return errors.EnvironmentSetup(path, "pre-open is not a directory", nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.EnvironmentSetup(path, "pre-open directory not accessible", err)
	}
	return f.Close()
}

// Config returns the validated configuration.
func (e *Environment) Config() Config {
	return e.cfg
}

// Args returns the arguments handed to the guest.
func (e *Environment) Args() []string {
	return e.cfg.Args
}

// Preopens returns the directory mappings handed to the guest.
func (e *Environment) Preopens() []Preopen {
	return e.cfg.Preopens
}

// PreopenDir returns the host directory mounted at guestPath.
func (e *Environment) PreopenDir(guestPath string) (string, bool) {
	for _, p := range e.cfg.Preopens {
		if p.GuestPath == guestPath {
			return p.HostDir, true
		}
	}
	return "", false
}

// ModuleConfig builds the wazero module configuration for a guest named name.
// Start functions are not run on instantiation.
func (e *Environment) ModuleConfig(name string) wazero.ModuleConfig {
	fsCfg := wazero.NewFSConfig()
	for _, p := range e.cfg.Preopens {
		if p.ReadOnly {
			fsCfg = fsCfg.WithReadOnlyDirMount(p.HostDir, p.GuestPath)
		} else {
			fsCfg = fsCfg.WithDirMount(p.HostDir, p.GuestPath)
		}
	}

	mc := wazero.NewModuleConfig().
		WithName(name).
		WithStdin(e.cfg.Stdin).
		WithStdout(e.cfg.Stdout).
		WithStderr(e.cfg.Stderr).
		WithArgs(e.cfg.Args...).
		WithFSConfig(fsCfg).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(crand.Reader).
		WithStartFunctions()

	keys := make([]string, 0, len(e.cfg.Env))
	for k := range e.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		mc = mc.WithEnv(k, e.cfg.Env[k])
	}
	return mc
}

// Exports lists the function names the environment provides to guests.
func (e *Environment) Exports(ctx context.Context, r wazero.Runtime) ([]string, error) {
	compiled, err := wasi_snapshot_preview1.NewBuilder(r).Compile(ctx)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	names := make([]string, 0, len(compiled.ExportedFunctions()))
	for name := range compiled.ExportedFunctions() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Instantiate installs the environment's host module into r.
func (e *Environment) Instantiate(ctx context.Context, r wazero.Runtime) error {
	if r.Module(Namespace) != nil {
		return errors.Collision(Namespace, "")
	}
	if _, err := wasi_snapshot_preview1.NewBuilder(r).Instantiate(ctx); err != nil {
		return errors.EnvironmentSetup(Namespace, "instantiate host module", err)
	}
	return nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
