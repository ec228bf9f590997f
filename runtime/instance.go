package runtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/engine"
	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
)

// StartFunction is the export Run calls.
const StartFunction = "_start"

// Instance is a built guest together with the engine and Host Context it
// runs against. It owns both and releases them on Close.
type Instance struct {
	engine    *engine.Engine
	hc        *host.Context
	guest     api.Module
	metrics   *Metrics
	log       *zap.Logger
	closeErr  error
	id        string
	path      string
	closeOnce sync.Once
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string {
	return i.id
}

// Path returns the guest path the instance was built from.
func (i *Instance) Path() string {
	return i.path
}

// Context returns the Host Context.
func (i *Instance) Context() *host.Context {
	return i.hc
}

// Module returns the instantiated guest.
func (i *Instance) Module() api.Module {
	return i.guest
}

// Metrics returns the host call metrics, or nil when none were configured.
func (i *Instance) Metrics() *Metrics {
	return i.metrics
}

// Export describes an exported guest function.
type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Exports lists the guest's exported functions sorted by name.
func (i *Instance) Exports() []Export {
	defs := i.guest.ExportedFunctionDefinitions()
	out := make([]Export, 0, len(defs))
	for name, def := range defs {
		out = append(out, Export{
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Call invokes an exported function with raw wasm values. A guest that
// exits with code 0 returns no results and no error.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.guest.ExportedFunction(name)
	if fn == nil {
		return nil, hosterrors.NotFound(hosterrors.PhaseRuntime, "export", name)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, i.callError(name, err)
	}
	return results, nil
}

// Run calls the guest's _start function.
func (i *Instance) Run(ctx context.Context) error {
	i.log.Debug("running guest", zap.String("id", i.id), zap.String("path", i.path))
	_, err := i.Call(ctx, StartFunction)
	return err
}

func (i *Instance) callError(name string, err error) error {
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		if exit.ExitCode() == 0 {
			return nil
		}
		return hosterrors.Exit(exit.ExitCode(), err)
	}

	var herr *hosterrors.Error
	if errors.As(err, &herr) && herr.Kind == hosterrors.KindTrap {
		return err
	}
	return hosterrors.New(hosterrors.PhaseRuntime, hosterrors.KindTrap).
		Resource(name).
		Detail("guest call failed").
		Cause(err).
		Build()
}

// Close releases the Host Context states and the engine, including every
// module instantiated in it. Close is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.closeErr = errors.Join(i.hc.Close(), i.engine.Close(ctx))
		i.log.Debug("instance closed", zap.String("id", i.id))
	})
	return i.closeErr
}
