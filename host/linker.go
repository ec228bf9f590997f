package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	hosterrors "github.com/wippyai/wasm-host/errors"
)

// HostFunc is a host function bound to a Host Context. Parameters arrive on
// stack and results are written back to it, as with api.GoModuleFunc.
type HostFunc func(ctx context.Context, hc *Context, mod api.Module, stack []uint64)

// Func defines a host function.
type Func struct {
	Handler HostFunc
	Params  []api.ValueType
	Results []api.ValueType
}

// CallStatus is the outcome of a host call reported to a CallObserver.
type CallStatus string

const (
	CallOK    CallStatus = "ok"
	CallPanic CallStatus = "panic"
)

// CallObserver is notified after every host call.
type CallObserver func(module, function string, elapsed time.Duration, status CallStatus)

// Linker is the import table: host functions grouped by namespace plus
// namespaces reserved for modules instantiated by other means.
// Thread-safe.
type Linker struct {
	funcs          map[string]map[string]Func
	reserved       map[string]bool
	observer       CallObserver
	mu             sync.RWMutex
	allowShadowing bool
}

// NewLinker creates an empty import table. With allowShadowing, a later
// definition of the same module.name replaces the earlier one.
func NewLinker(allowShadowing bool) *Linker {
	return &Linker{
		funcs:          make(map[string]map[string]Func),
		reserved:       make(map[string]bool),
		allowShadowing: allowShadowing,
	}
}

// AllowShadowing reports whether redefinition is permitted.
func (l *Linker) AllowShadowing() bool {
	return l.allowShadowing
}

// Define registers fn as module.name.
func (l *Linker) Define(module, name string, fn Func) error {
	if module == "" || name == "" {
		return hosterrors.InvalidInput(hosterrors.PhaseLinking, "module and function name are required")
	}
	if fn.Handler == nil {
		return hosterrors.InvalidInput(hosterrors.PhaseLinking, fmt.Sprintf("%s.%s: nil handler", module, name))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reserved[module] {
		return hosterrors.Collision(module, "")
	}
	ns := l.funcs[module]
	if ns == nil {
		ns = make(map[string]Func)
		l.funcs[module] = ns
	}
	if _, exists := ns[name]; exists {
		if !l.allowShadowing {
			return hosterrors.Collision(module, name)
		}
		Logger().Debug("host function shadowed",
			zap.String("module", module),
			zap.String("function", name))
	}
	ns[name] = fn
	return nil
}

// Reserve claims a whole namespace for a module that is instantiated
// outside the import table.
func (l *Linker) Reserve(module string) error {
	if module == "" {
		return hosterrors.InvalidInput(hosterrors.PhaseLinking, "module name is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reserved[module] || len(l.funcs[module]) > 0 {
		return hosterrors.Collision(module, "")
	}
	l.reserved[module] = true
	return nil
}

// Reserved reports whether module was claimed with Reserve.
func (l *Linker) Reserved(module string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reserved[module]
}

// Has reports whether module.name is defined.
func (l *Linker) Has(module, name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.funcs[module][name]
	return ok
}

// Namespaces returns every namespace with definitions, sorted.
// Reserved namespaces are not included.
func (l *Linker) Namespaces() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.funcs))
	for ns := range l.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Funcs returns the function names defined in module, sorted.
func (l *Linker) Funcs(module string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ns := l.funcs[module]
	out := make([]string, 0, len(ns))
	for name := range ns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetCallObserver installs o to be notified after every host call.
func (l *Linker) SetCallObserver(o CallObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = o
}

// Instantiate builds one host module per namespace in r, binding every
// handler to hc. Modules created before a failure are closed.
func (l *Linker) Instantiate(ctx context.Context, r wazero.Runtime, hc *Context) ([]api.Module, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	namespaces := make([]string, 0, len(l.funcs))
	for ns := range l.funcs {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var mods []api.Module
	fail := func(err error) ([]api.Module, error) {
		for _, m := range mods {
			_ = m.Close(ctx)
		}
		return nil, err
	}

	for _, ns := range namespaces {
		if r.Module(ns) != nil {
			return fail(hosterrors.Collision(ns, ""))
		}

		builder := r.NewHostModuleBuilder(ns)
		names := make([]string, 0, len(l.funcs[ns]))
		for name := range l.funcs[ns] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fn := l.funcs[ns][name]
			builder.NewFunctionBuilder().
				WithGoModuleFunction(l.bind(ns, name, fn.Handler, hc), fn.Params, fn.Results).
				WithName(name).
				Export(name)
		}

		mod, err := builder.Instantiate(ctx)
		if err != nil {
			return fail(hosterrors.Instantiation(ns, err))
		}
		mods = append(mods, mod)
		Logger().Debug("host module instantiated",
			zap.String("module", ns),
			zap.Int("functions", len(names)))
	}

	return mods, nil
}

// bind closes a handler over hc and wraps it with the call observer and
// panic recovery. A panicking handler traps the guest with a KindTrap error.
func (l *Linker) bind(module, name string, h HostFunc, hc *Context) api.GoModuleFunc {
	observer := l.observer
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		start := time.Now()
		status := CallOK
		defer func() {
			if rec := recover(); rec != nil {
				status = CallPanic
				if observer != nil {
					observer(module, name, time.Since(start), status)
				}
				panic(trapFor(module, name, rec))
			}
			if observer != nil {
				observer(module, name, time.Since(start), status)
			}
		}()
		h(ctx, hc, mod, stack)
	}
}

func trapFor(module, name string, rec any) any {
	// proc_exit style unwinding must reach the caller unchanged
	if exit, ok := rec.(*sys.ExitError); ok {
		return exit
	}

	var cause error
	if err, ok := rec.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("%v", rec)
	}

	Logger().Warn("host function panicked",
		zap.String("module", module),
		zap.String("function", name),
		zap.Error(cause))
	return hosterrors.Trap(module+"."+name, cause)
}
