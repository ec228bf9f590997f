package pubsub

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/capabilities/kv"
	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/internal/wasmtest"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/wasi"
)

const (
	namePtr  = 0  // "events"
	topicPtr = 16 // "t"
	msgPtr   = 32 // "hello"
	outPtr   = 64
)

func pubsubGuest() []byte {
	m := wasmtest.New()
	i32 := wasmtest.I32
	open := m.Import(Namespace, "open", wasmtest.Types(i32, i32), i32)
	pub := m.Import(Namespace, "publish", wasmtest.Types(i32, i32, i32, i32, i32), i32)
	sub := m.Import(Namespace, "subscribe", wasmtest.Types(i32, i32, i32), i32)
	recv := m.Import(Namespace, "receive", wasmtest.Types(i32, i32, i32), i32)
	unsub := m.Import(Namespace, "unsubscribe", i32, i32)

	m.ExportFunc("open", m.Func(nil, i32,
		wasmtest.I32Const(namePtr), wasmtest.I32Const(6), wasmtest.Call(open)))
	m.ExportFunc("subscribe", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(topicPtr), wasmtest.I32Const(1), wasmtest.Call(sub)))
	m.ExportFunc("publish", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(topicPtr), wasmtest.I32Const(1),
		wasmtest.I32Const(msgPtr), wasmtest.I32Const(5), wasmtest.Call(pub)))
	m.ExportFunc("receive", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(outPtr), wasmtest.I32Const(16), wasmtest.Call(recv)))
	m.ExportFunc("receive_small", m.Func(i32, i32,
		wasmtest.LocalGet(0), wasmtest.I32Const(outPtr), wasmtest.I32Const(2), wasmtest.Call(recv)))
	m.ExportFunc("unsubscribe", m.Func(i32, i32, wasmtest.LocalGet(0), wasmtest.Call(unsub)))

	return m.Memory(1).
		Data(namePtr, []byte("events")).
		Data(topicPtr, []byte("t")).
		Data(msgPtr, []byte("hello")).
		Bytes()
}

func call(t *testing.T, inst *runtime.Instance, name string, params ...uint64) int32 {
	t.Helper()
	res, err := inst.Call(context.Background(), name, params...)
	require.NoError(t, err)
	return api.DecodeI32(res[0])
}

func build(t *testing.T, b *runtime.Builder) *runtime.Instance {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, pubsubGuest(), 0o644))
	inst, err := b.Build(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst
}

func TestPubSub_Guest(t *testing.T) {
	ctx := context.Background()
	b, err := runtime.New(ctx, runtime.WithEnvironmentConfig(wasi.Config{}))
	require.NoError(t, err)
	require.NoError(t, b.LinkCapability(ctx, New(), host.ResourceConfig{Resource: Kind, Name: "events"}))
	inst := build(t, b)

	h := api.EncodeI32(call(t, inst, "open"))
	sub := api.EncodeI32(call(t, inst, "subscribe", h))

	assert.Equal(t, host.StatusNotFound, call(t, inst, "receive", sub))
	assert.Equal(t, host.StatusOK, call(t, inst, "publish", h))

	assert.Equal(t, host.StatusTooSmall, call(t, inst, "receive_small", sub))
	n := call(t, inst, "receive", sub)
	require.Equal(t, int32(5), n)
	got, _ := inst.Module().Memory().Read(outPtr, uint32(n))
	assert.Equal(t, "hello", string(got))

	st, ok := Lookup(inst.Context(), "events")
	require.True(t, ok)
	assert.Equal(t, 1, st.Broker().Subscribers("t"))

	assert.Equal(t, host.StatusOK, call(t, inst, "unsubscribe", sub))
	assert.Equal(t, 0, st.Broker().Subscribers("t"))
	assert.Equal(t, host.StatusInvalid, call(t, inst, "receive", sub))

	// a subscription handle is not a broker handle
	assert.Equal(t, host.StatusInvalid, call(t, inst, "publish", sub))
}

func TestPubSub_ArchiveThroughRegistry(t *testing.T) {
	ctx := context.Background()
	archiveDir := t.TempDir()
	m := resource.NewMap()

	b, err := runtime.New(ctx, runtime.WithEnvironmentConfig(wasi.Config{}), runtime.WithResourceMap(m))
	require.NoError(t, err)
	require.NoError(t, b.LinkCapability(ctx, kv.New(), host.ResourceConfig{Resource: kv.Kind, Name: "archive"},
		runtime.WithOptions(host.KeyValue{Key: "dir", Value: archiveDir})))
	require.NoError(t, b.LinkCapability(ctx, New(), host.ResourceConfig{Resource: Kind, Name: "events"},
		runtime.WithOptions(host.KeyValue{Key: "archive", Value: "kv.filesystem/archive"})))
	inst := build(t, b)

	h := api.EncodeI32(call(t, inst, "open"))
	assert.Equal(t, host.StatusOK, call(t, inst, "publish", h))
	assert.Equal(t, host.StatusOK, call(t, inst, "publish", h))

	store, ok := resource.LookupAs[*kv.Store](m, "kv.filesystem/archive")
	require.True(t, ok)
	keys, err := store.Keys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	st, ok := Lookup(inst.Context(), "events")
	require.True(t, ok)
	assert.Equal(t, "t.events."+st.run+".00000000000000000001", keys[0])

	v, err := store.Get(keys[1])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(v))
}

func TestPubSub_ArchiveUnresolved(t *testing.T) {
	st, err := New().Build(context.Background(), host.BuildContext{
		Config:  host.ResourceConfig{Resource: Kind, Name: "events"},
		Options: []host.KeyValue{{Key: "archive", Value: "kv.filesystem/missing"}},
	})
	require.NoError(t, err)

	// no registry attached: delivery still works
	ps := st.(*State)
	sub := ps.Broker().Subscribe("t")
	assert.Equal(t, 1, ps.Publish("t", []byte("m")))
	assert.Equal(t, 1, sub.Pending())
	assert.Equal(t, "kv.filesystem/missing", ps.ArchiveName())
}

func TestPubSub_BadArchiveOption(t *testing.T) {
	_, err := New().Build(context.Background(), host.BuildContext{
		Config:  host.ResourceConfig{Resource: Kind, Name: "events"},
		Options: []host.KeyValue{{Key: "archive", Value: "no-slash"}},
	})
	var herr *hosterrors.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hosterrors.PhaseConfig, herr.Phase)
}

func TestPubSub_SharedArchiveKeepsEveryMessage(t *testing.T) {
	ctx := context.Background()
	store, err := kv.OpenStore(t.TempDir())
	require.NoError(t, err)
	m := resource.NewMap()
	_, err = m.Register("kv.filesystem/archive", kv.TypeStore, store)
	require.NoError(t, err)

	publish := func(name, msg string) {
		st, err := New().Build(ctx, host.BuildContext{
			Config:  host.ResourceConfig{Resource: Kind, Name: name},
			Options: []host.KeyValue{{Key: "archive", Value: "kv.filesystem/archive"}},
		})
		require.NoError(t, err)
		require.NoError(t, st.AttachResources(m.Clone()))
		st.(*State).Publish("t", []byte(msg))
	}

	publish("a", "from-a")
	publish("b", "from-b")
	// a later run of the same broker
	publish("a", "from-a-again")

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Len(t, keys, 3)

	var values []string
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "t."), k)
		v, err := store.Get(k)
		require.NoError(t, err)
		values = append(values, string(v))
	}
	assert.ElementsMatch(t, []string{"from-a", "from-b", "from-a-again"}, values)
}
