package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/internal/wasmtest"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/wasi"
)

// Guest memory layout.
const (
	namePtr = 0  // "orders"
	keyPtr  = 16 // "k"
	valPtr  = 32 // "v1"
	outPtr  = 64
	outCap  = 16
)

// kvGuest exports thin wrappers around every slight:kv import. Functions
// that need a handle take it as their only parameter.
func kvGuest(name string) []byte {
	m := wasmtest.New()
	i32 := wasmtest.I32
	open := m.Import(Namespace, "open", wasmtest.Types(i32, i32), i32)
	get := m.Import(Namespace, "get", wasmtest.Types(i32, i32, i32, i32, i32), i32)
	set := m.Import(Namespace, "set", wasmtest.Types(i32, i32, i32, i32, i32), i32)
	del := m.Import(Namespace, "delete", wasmtest.Types(i32, i32, i32), i32)
	closeFn := m.Import(Namespace, "close", i32, i32)

	m.ExportFunc("open", m.Func(nil, i32,
		wasmtest.I32Const(namePtr), wasmtest.I32Const(int32(len(name))), wasmtest.Call(open)))
	m.ExportFunc("set", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(keyPtr), wasmtest.I32Const(1),
		wasmtest.I32Const(valPtr), wasmtest.I32Const(2), wasmtest.Call(set)))
	m.ExportFunc("get", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(keyPtr), wasmtest.I32Const(1),
		wasmtest.I32Const(outPtr), wasmtest.I32Const(outCap), wasmtest.Call(get)))
	m.ExportFunc("get_small", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(keyPtr), wasmtest.I32Const(1),
		wasmtest.I32Const(outPtr), wasmtest.I32Const(1), wasmtest.Call(get)))
	m.ExportFunc("delete", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(keyPtr), wasmtest.I32Const(1), wasmtest.Call(del)))
	m.ExportFunc("close", m.Func(i32, i32, wasmtest.LocalGet(0), wasmtest.Call(closeFn)))

	return m.Memory(1).
		Data(namePtr, []byte(name)).
		Data(keyPtr, []byte("k")).
		Data(valPtr, []byte("v1")).
		Bytes()
}

func call(t *testing.T, inst *runtime.Instance, name string, params ...uint64) int32 {
	t.Helper()
	res, err := inst.Call(context.Background(), name, params...)
	require.NoError(t, err)
	return api.DecodeI32(res[0])
}

func buildKV(t *testing.T, guestName string, opts ...runtime.Option) (*runtime.Instance, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	opts = append([]runtime.Option{runtime.WithEnvironmentConfig(wasi.Config{})}, opts...)
	b, err := runtime.New(ctx, opts...)
	require.NoError(t, err)

	cfg := host.ResourceConfig{Resource: Kind, Name: "orders"}
	require.NoError(t, b.LinkCapability(ctx, New(), cfg,
		runtime.WithOptions(host.KeyValue{Key: "dir", Value: dir})))

	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, kvGuest(guestName), 0o644))

	inst, err := b.Build(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst, dir
}

func TestKV_GuestRoundTrip(t *testing.T) {
	inst, dir := buildKV(t, "orders")

	h := call(t, inst, "open")
	require.Greater(t, h, int32(0))
	hp := api.EncodeI32(h)

	assert.Equal(t, host.StatusNotFound, call(t, inst, "get", hp))
	assert.Equal(t, host.StatusOK, call(t, inst, "set", hp))

	n := call(t, inst, "get", hp)
	require.Equal(t, int32(2), n)
	got, ok := inst.Module().Memory().Read(outPtr, uint32(n))
	require.True(t, ok)
	assert.Equal(t, "v1", string(got))

	assert.Equal(t, host.StatusTooSmall, call(t, inst, "get_small", hp))

	// the value is a plain file in the configured directory
	data, err := os.ReadFile(filepath.Join(dir, "k"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	assert.Equal(t, host.StatusOK, call(t, inst, "delete", hp))
	assert.Equal(t, host.StatusNotFound, call(t, inst, "get", hp))

	assert.Equal(t, host.StatusOK, call(t, inst, "close", hp))
	assert.Equal(t, host.StatusInvalid, call(t, inst, "close", hp))
	assert.Equal(t, host.StatusInvalid, call(t, inst, "get", hp))
}

func TestKV_OpenUnknownStore(t *testing.T) {
	inst, _ := buildKV(t, "nope")
	assert.Equal(t, host.StatusNotFound, call(t, inst, "open"))
}

func TestKV_PublishesStore(t *testing.T) {
	m := resource.NewMap()
	inst, dir := buildKV(t, "orders", runtime.WithResourceMap(m))

	store, ok := resource.LookupAs[*Store](m, "kv.filesystem/orders")
	require.True(t, ok)
	assert.Equal(t, dir, store.Dir())

	st, ok := Lookup(inst.Context(), "orders")
	require.True(t, ok)
	assert.Same(t, store, st.Store())

	require.NoError(t, inst.Close(context.Background()))
	_, ok = m.Lookup("kv.filesystem/orders")
	assert.False(t, ok)
}

func TestKV_DefaultDirUnderCache(t *testing.T) {
	cache := t.TempDir()
	env, err := wasi.New(wasi.Config{Preopens: []wasi.Preopen{{HostDir: cache, GuestPath: wasi.CacheGuestPath}}})
	require.NoError(t, err)

	st, err := New().Build(context.Background(), host.BuildContext{
		Config:      host.ResourceConfig{Resource: Kind, Name: "users"},
		Environment: env,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "kv", "users"), st.(*State).Store().Dir())
}

func TestKV_DefaultDirStaysUnderCache(t *testing.T) {
	cache := t.TempDir()
	env, err := wasi.New(wasi.Config{Preopens: []wasi.Preopen{{HostDir: cache, GuestPath: wasi.CacheGuestPath}}})
	require.NoError(t, err)

	for _, name := range []string{"..", "../escape", "a/b"} {
		_, err := New().Build(context.Background(), host.BuildContext{
			Config:      host.ResourceConfig{Resource: Kind, Name: name},
			Environment: env,
		})
		require.Error(t, err, name)
	}
	_, err = os.Stat(filepath.Join(filepath.Dir(cache), "escape"))
	assert.True(t, os.IsNotExist(err))
}
