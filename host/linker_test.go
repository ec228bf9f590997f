package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/wasmtest"
)

func constFunc(v int32) Func {
	return Func{
		Results: wasmtest.I32,
		Handler: func(_ context.Context, _ *Context, _ api.Module, stack []uint64) {
			stack[0] = I32(v)
		},
	}
}

func requireLinkKind(t *testing.T, err error, kind hosterrors.Kind) {
	t.Helper()
	var herr *hosterrors.Error
	require.True(t, errors.As(err, &herr), "expected *errors.Error, got %T: %v", err, err)
	assert.Equal(t, hosterrors.PhaseLinking, herr.Phase)
	assert.Equal(t, kind, herr.Kind)
}

// guestCalling returns a guest that exports "run" returning the result of
// module.name.
func guestCalling(module, name string) []byte {
	m := wasmtest.New()
	fn := m.Import(module, name, nil, wasmtest.I32)
	run := m.Func(nil, wasmtest.I32, wasmtest.Call(fn))
	return m.ExportFunc("run", run).Bytes()
}

func instantiateAndRun(t *testing.T, l *Linker, hc *Context, guest []byte) (uint64, error) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })

	_, err := l.Instantiate(ctx, r, hc)
	require.NoError(t, err)

	mod, err := r.Instantiate(ctx, guest)
	require.NoError(t, err)

	res, err := mod.ExportedFunction("run").Call(ctx)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

func TestLinker_DefineCollision(t *testing.T) {
	l := NewLinker(false)
	require.NoError(t, l.Define("env", "f", constFunc(1)))

	err := l.Define("env", "f", constFunc(2))
	requireLinkKind(t, err, hosterrors.KindCollision)
	assert.True(t, l.Has("env", "f"))
	assert.False(t, l.Has("env", "g"))
}

func TestLinker_DefineInvalid(t *testing.T) {
	l := NewLinker(true)
	requireLinkKind(t, l.Define("", "f", constFunc(1)), hosterrors.KindInvalidInput)
	requireLinkKind(t, l.Define("env", "f", Func{}), hosterrors.KindInvalidInput)
}

func TestLinker_Shadowing(t *testing.T) {
	l := NewLinker(true)
	require.NoError(t, l.Define("env", "value", constFunc(1)))
	require.NoError(t, l.Define("env", "value", constFunc(2)))

	got, err := instantiateAndRun(t, l, NewContext(nil), guestCalling("env", "value"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.DecodeI32(got))
}

func TestLinker_Reserve(t *testing.T) {
	l := NewLinker(true)
	require.NoError(t, l.Reserve("wasi_snapshot_preview1"))
	assert.True(t, l.Reserved("wasi_snapshot_preview1"))

	requireLinkKind(t, l.Reserve("wasi_snapshot_preview1"), hosterrors.KindCollision)
	requireLinkKind(t, l.Define("wasi_snapshot_preview1", "fd_write", constFunc(0)), hosterrors.KindCollision)

	require.NoError(t, l.Define("env", "f", constFunc(0)))
	requireLinkKind(t, l.Reserve("env"), hosterrors.KindCollision)
	requireLinkKind(t, l.Reserve(""), hosterrors.KindInvalidInput)

	// reserved namespaces are instantiated elsewhere
	assert.Equal(t, []string{"env"}, l.Namespaces())
}

func TestLinker_Listing(t *testing.T) {
	l := NewLinker(false)
	require.NoError(t, l.Define("b", "y", constFunc(0)))
	require.NoError(t, l.Define("b", "x", constFunc(0)))
	require.NoError(t, l.Define("a", "z", constFunc(0)))

	assert.Equal(t, []string{"a", "b"}, l.Namespaces())
	assert.Equal(t, []string{"x", "y"}, l.Funcs("b"))
	assert.Empty(t, l.Funcs("missing"))
}

func TestLinker_HandlerSeesHostContext(t *testing.T) {
	cfg := ResourceConfig{Resource: "counter", Name: "c"}
	hc := NewContext(nil)
	_, err := hc.Insert(cfg, &counterState{n: 41}, false)
	require.NoError(t, err)

	l := NewLinker(false)
	require.NoError(t, l.Define("counter", "next", Func{
		Results: wasmtest.I32,
		Handler: func(_ context.Context, hc *Context, _ api.Module, stack []uint64) {
			st, ok := StateAs[*counterState](hc, cfg)
			if !ok {
				stack[0] = I32(StatusNotFound)
				return
			}
			st.n++
			stack[0] = I32(st.n)
		},
	}))

	got, err := instantiateAndRun(t, l, hc, guestCalling("counter", "next"))
	require.NoError(t, err)
	assert.Equal(t, int32(42), api.DecodeI32(got))
}

type counterState struct {
	Resources
	n int32
}

func TestLinker_PanicBecomesTrap(t *testing.T) {
	var mu sync.Mutex
	var statuses []CallStatus

	l := NewLinker(false)
	l.SetCallObserver(func(module, function string, elapsed time.Duration, status CallStatus) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "env", module)
		assert.Equal(t, "boom", function)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		statuses = append(statuses, status)
	})
	require.NoError(t, l.Define("env", "boom", Func{
		Results: wasmtest.I32,
		Handler: func(context.Context, *Context, api.Module, []uint64) {
			panic("kaboom")
		},
	}))

	_, err := instantiateAndRun(t, l, NewContext(nil), guestCalling("env", "boom"))
	require.Error(t, err)

	var herr *hosterrors.Error
	require.True(t, errors.As(err, &herr), "got %v", err)
	assert.Equal(t, hosterrors.KindTrap, herr.Kind)
	assert.Equal(t, "env.boom", herr.Resource)
	assert.Contains(t, herr.Error(), "kaboom")
	assert.Equal(t, []CallStatus{CallPanic}, statuses)
}

func TestLinker_ObserverOK(t *testing.T) {
	var statuses []CallStatus
	l := NewLinker(false)
	l.SetCallObserver(func(_, _ string, _ time.Duration, status CallStatus) {
		statuses = append(statuses, status)
	})
	require.NoError(t, l.Define("env", "one", constFunc(1)))

	_, err := instantiateAndRun(t, l, NewContext(nil), guestCalling("env", "one"))
	require.NoError(t, err)
	assert.Equal(t, []CallStatus{CallOK}, statuses)
}

func TestLinker_InstantiateCollision(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := r.NewHostModuleBuilder("env").Instantiate(ctx)
	require.NoError(t, err)

	l := NewLinker(false)
	require.NoError(t, l.Define("aaa", "f", constFunc(0)))
	require.NoError(t, l.Define("env", "f", constFunc(0)))

	_, err = l.Instantiate(ctx, r, NewContext(nil))
	requireLinkKind(t, err, hosterrors.KindCollision)

	// modules created before the failure are closed
	assert.Nil(t, r.Module("aaa"))
}
