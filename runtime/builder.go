package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/engine"
	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi"
)

// Builder assembles an engine, an import table and a Host Context, links
// capabilities into them and finally instantiates a guest. A Builder is
// single-use: Build consumes it. After any failed link step it is poisoned
// and every later call returns that failure.
type Builder struct {
	engine    *engine.Engine
	env       *wasi.Environment
	linker    *host.Linker
	hc        *host.Context
	resources *resource.Map
	metrics   *Metrics
	log       *zap.Logger
	err       error
	settings  []host.KeyValue
	modules   []subModule
	mu        sync.Mutex
	envLinked bool
	consumed  bool
}

type subModule struct {
	compiled wazero.CompiledModule
	name     string
	path     string
}

// New creates a builder with a fresh engine, an import table that allows
// shadowing, the inherited environment and an empty Host Context.
func New(ctx context.Context, opts ...Option) (*Builder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = Logger()
	}

	eng, err := engine.New(ctx, o.engineCfg)
	if err != nil {
		return nil, err
	}

	env, err := wasi.New(o.envCfg)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	b := &Builder{
		engine:    eng,
		env:       env,
		linker:    host.NewLinker(true),
		hc:        host.NewContext(env),
		resources: o.resources,
		settings:  append([]host.KeyValue(nil), o.settings...),
		log:       log,
	}

	if o.registerer != nil {
		m, err := NewMetrics(o.registerer)
		if err != nil {
			_ = eng.Close(ctx)
			return nil, hosterrors.EngineConfig(hosterrors.KindSetup, "register metrics", err)
		}
		b.metrics = m
		b.linker.SetCallObserver(m.Observe)
	}

	log.Debug("runtime builder created",
		zap.Int("settings", len(b.settings)),
		zap.Bool("resources_injected", b.resources != nil))
	return b, nil
}

// Context returns the Host Context being assembled.
func (b *Builder) Context() *host.Context {
	return b.hc
}

// Linker returns the import table being assembled.
func (b *Builder) Linker() *host.Linker {
	return b.linker
}

// usable must be called with mu held.
func (b *Builder) usable() error {
	if b.consumed {
		return hosterrors.Consumed()
	}
	if b.err != nil {
		return hosterrors.Poisoned(b.err)
	}
	return nil
}

// poison must be called with mu held.
func (b *Builder) poison(err error) error {
	b.err = err
	b.log.Warn("runtime builder poisoned", zap.Error(err))
	return err
}

// LinkEnvironment makes the inherited environment importable under
// wasi_snapshot_preview1.
func (b *Builder) LinkEnvironment() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return err
	}
	if err := b.linker.Reserve(wasi.Namespace); err != nil {
		return b.poison(err)
	}
	b.envLinked = true
	return nil
}

// LinkCapability builds c's state for cfg, stores it in the Host Context
// and lets c register its host functions. Linking the same cfg twice fails
// unless AllowOverride is given. A failure leaves earlier steps in place.
func (b *Builder) LinkCapability(ctx context.Context, c host.Capability, cfg host.ResourceConfig, opts ...LinkOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return err
	}
	if c == nil {
		return b.poison(hosterrors.New(hosterrors.PhaseLinking, hosterrors.KindInvalidInput).
			Resource(cfg.String()).
			Detail("capability is required").
			Build())
	}
	if err := cfg.Validate(); err != nil {
		return b.poison(hosterrors.New(hosterrors.PhaseLinking, hosterrors.KindInvalidInput).
			Resource(cfg.String()).
			Cause(err).
			Build())
	}

	var lo linkOptions
	for _, opt := range opts {
		opt(&lo)
	}

	if _, exists := b.hc.State(cfg); exists && !lo.override {
		return b.poison(hosterrors.Duplicate(cfg.String()))
	}

	state, err := c.Build(ctx, host.BuildContext{
		Config:      cfg,
		Options:     lo.options,
		Settings:    b.settings,
		Resources:   b.resources,
		Environment: b.env,
		Logger:      b.log,
	})
	if err == nil && state == nil {
		err = errors.New("capability returned no state")
	}
	if err != nil {
		return b.poison(hosterrors.CapabilityInit(cfg.String(), err))
	}

	replaced, err := b.hc.Insert(cfg, state, lo.override)
	if err != nil {
		_ = host.CloseState(state)
		return b.poison(err)
	}
	if replaced != nil {
		b.log.Debug("capability overridden", zap.Stringer("config", cfg))
		if err := host.CloseState(replaced); err != nil {
			b.log.Warn("close replaced capability state", zap.Stringer("config", cfg), zap.Error(err))
		}
	}

	if b.resources != nil {
		if err := state.AttachResources(b.resources.Clone()); err != nil {
			return b.poison(hosterrors.Linking(cfg.String(), err))
		}
	}

	if err := c.Link(b.linker, cfg); err != nil {
		return b.poison(asLinking(cfg.String(), err))
	}

	b.log.Debug("capability linked", zap.Stringer("config", cfg))
	return nil
}

// LinkResourceMap hands a clone of m to every state linked so far.
// Capabilities linked later do not receive it; use WithResourceMap to
// reach every capability.
func (b *Builder) LinkResourceMap(m *resource.Map) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return err
	}
	if m == nil {
		return b.poison(hosterrors.InvalidInput(hosterrors.PhaseLinking, "resource map is nil"))
	}

	err := b.hc.Each(func(cfg host.ResourceConfig, s host.State) error {
		if err := s.AttachResources(m.Clone()); err != nil {
			return hosterrors.Linking(cfg.String(), err)
		}
		return nil
	})
	if err != nil {
		return b.poison(err)
	}

	b.log.Debug("resource map linked", zap.Int("states", b.hc.Len()))
	return nil
}

// LinkModule compiles the module at path and makes its exports importable
// under name. It is instantiated before the guest.
func (b *Builder) LinkModule(ctx context.Context, name, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return err
	}
	if !b.engine.Config().ModuleLinking {
		return b.poison(hosterrors.New(hosterrors.PhaseLinking, hosterrors.KindUnsupported).
			Resource(name).
			Detail("module linking is disabled in the engine config").
			Build())
	}

	compiled, err := b.compile(ctx, path)
	if err != nil {
		return b.poison(err)
	}
	if err := b.linker.Reserve(name); err != nil {
		_ = compiled.Close(ctx)
		return b.poison(err)
	}

	b.modules = append(b.modules, subModule{compiled: compiled, name: name, path: path})
	b.log.Debug("module linked", zap.String("name", name), zap.String("path", path))
	return nil
}

func (b *Builder) compile(ctx context.Context, path string) (wazero.CompiledModule, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, hosterrors.LoadNotFound(path, err)
	}
	compiled, err := b.engine.CompileModule(ctx, wasm)
	if err != nil {
		return nil, hosterrors.Load(path, "compile module", err)
	}
	return compiled, nil
}

// Build loads the guest at path, checks that every function it imports is
// linked and instantiates it. The guest's start function is not run; use
// Instance.Run. Build consumes the builder whatever the outcome.
func (b *Builder) Build(ctx context.Context, path string) (*Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return nil, err
	}
	b.consumed = true

	inst, err := b.build(ctx, path)
	if err != nil {
		_ = b.hc.Close()
		_ = b.engine.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func (b *Builder) build(ctx context.Context, path string) (*Instance, error) {
	compiled, err := b.compile(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := b.checkImports(ctx, path, compiled); err != nil {
		return nil, err
	}

	r := b.engine.Runtime()
	if _, err := b.linker.Instantiate(ctx, r, b.hc); err != nil {
		return nil, err
	}

	if b.envLinked {
		if err := b.env.Instantiate(ctx, r); err != nil {
			return nil, err
		}
	}

	for _, sm := range b.modules {
		if _, err := r.InstantiateModule(ctx, sm.compiled, b.env.ModuleConfig(sm.name)); err != nil {
			return nil, hosterrors.Instantiation(sm.name, err)
		}
	}

	guest, err := r.InstantiateModule(ctx, compiled, b.env.ModuleConfig(guestName(path)))
	if err != nil {
		return nil, hosterrors.Instantiation(path, err)
	}

	inst := &Instance{
		id:      uuid.NewString(),
		path:    path,
		engine:  b.engine,
		hc:      b.hc,
		guest:   guest,
		metrics: b.metrics,
		log:     b.log,
	}
	b.log.Info("instance built",
		zap.String("id", inst.id),
		zap.String("path", path),
		zap.Int("capabilities", b.hc.Len()),
		zap.Int("modules", len(b.modules)))
	return inst, nil
}

// checkImports reports a guest whose module name is already taken and
// every function import that nothing linked provides.
func (b *Builder) checkImports(ctx context.Context, path string, compiled wazero.CompiledModule) error {
	if err := b.checkGuestName(guestName(path)); err != nil {
		return err
	}

	var wasiExports map[string]bool
	if b.envLinked {
		names, err := b.env.Exports(ctx, b.engine.Runtime())
		if err != nil {
			return hosterrors.Instantiation(wasi.Namespace, err)
		}
		wasiExports = make(map[string]bool, len(names))
		for _, n := range names {
			wasiExports[n] = true
		}
	}

	var missing []hosterrors.MissingImport
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if !b.provides(module, name, wasiExports) {
			missing = append(missing, hosterrors.MissingImport{Module: module, Function: name})
		}
	}
	if len(missing) > 0 {
		return hosterrors.Instantiation(path, hosterrors.NewMissingImportsError(missing))
	}
	return nil
}

func (b *Builder) provides(module, name string, wasiExports map[string]bool) bool {
	if b.linker.Has(module, name) {
		return true
	}
	if module == wasi.Namespace && b.envLinked {
		return wasiExports[name]
	}
	for _, sm := range b.modules {
		if sm.name == module {
			_, ok := sm.compiled.ExportedFunctions()[name]
			return ok
		}
	}
	return false
}

// checkGuestName fails when name is already owned by a host namespace or a
// linked module, since the guest is instantiated under it.
func (b *Builder) checkGuestName(name string) error {
	taken := len(b.linker.Funcs(name)) > 0 || b.linker.Reserved(name) ||
		(b.envLinked && name == wasi.Namespace)
	if !taken {
		return nil
	}
	return hosterrors.New(hosterrors.PhaseLinking, hosterrors.KindCollision).
		Resource(name).
		Detail("guest module name %q is already linked; rename the guest file", name).
		Build()
}

func guestName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func asLinking(resource string, err error) error {
	var herr *hosterrors.Error
	if errors.As(err, &herr) && herr.Phase == hosterrors.PhaseLinking {
		return err
	}
	return hosterrors.Linking(resource, err)
}

// Close releases a builder that will not be built. It consumes the builder.
func (b *Builder) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumed {
		return nil
	}
	b.consumed = true
	for _, sm := range b.modules {
		_ = sm.compiled.Close(ctx)
	}
	return errors.Join(b.hc.Close(), b.engine.Close(ctx))
}
