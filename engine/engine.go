package engine

import (
	"context"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// CacheDir enables wazero's on-disk compilation cache when non-empty.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Diagnostics keeps DWARF and custom sections so traps carry
	// source-level backtraces.
	Diagnostics bool

	// MultiMemory allows a guest module to declare more than one linear memory.
	// wazero does not implement the proposal, so requesting it fails.
	MultiMemory bool

	// ModuleLinking allows a guest to be composed of named sub-modules that
	// it imports from.
	ModuleLinking bool

	// CloseOnContextDone aborts running guest code when the call context is
	// canceled.
	CloseOnContextDone bool
}

// DefaultConfig returns the configuration every runtime builder starts from.
func DefaultConfig() Config {
	return Config{
		Diagnostics:   true,
		ModuleLinking: true,
	}
}

// Engine owns a configured wazero runtime and its compilation cache.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	cfg     Config
}

// New creates an engine. It fails only when the configuration asks for
// something wazero cannot provide.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.MultiMemory {
		return nil, errors.EngineConfig(errors.KindUnsupported, "multi-memory is not supported by wazero", nil)
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCoreFeatures(api.CoreFeaturesV2).
		WithDebugInfoEnabled(cfg.Diagnostics).
		WithCustomSections(cfg.Diagnostics).
		WithCloseOnContextDone(cfg.CloseOnContextDone)

	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, errors.EngineConfig(errors.KindSetup, "create compilation cache dir", err)
		}
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.EngineConfig(errors.KindSetup, "open compilation cache", err)
		}
		cache = c
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	Logger().Debug("engine created",
		zap.Bool("diagnostics", cfg.Diagnostics),
		zap.Bool("module_linking", cfg.ModuleLinking),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.String("cache_dir", cfg.CacheDir))

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		cfg:     cfg,
	}, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config {
	return e.cfg
}

// CompileModule validates and compiles a core module.
func (e *Engine) CompileModule(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	return e.runtime.CompileModule(ctx, wasm)
}

// Close releases the runtime and every module instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
