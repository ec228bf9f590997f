package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/capabilities/kv"
	"github.com/wippyai/wasm-host/config"
	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/wasmtest"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/wasi"
)

const slightfile = `
specversion = "0.1"

[[capability]]
resource = "kv.filesystem"
name = "orders"
	[capability.configs]
	dir = "store"

[[capability]]
resource = "configs.local"
name = "app"
`

// newApp writes a slightfile into a fresh working directory.
func newApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(slightfile), 0o644))
	return &app{cfgPath: path, log: zap.NewNop()}
}

func exitGuest(t *testing.T, code int32) string {
	t.Helper()
	m := wasmtest.New()
	i32 := wasmtest.I32
	exit := m.Import(wasi.Namespace, "proc_exit", i32, nil)
	open := m.Import(kv.Namespace, "open", wasmtest.Types(i32, i32), i32)
	m.ExportFunc("open", m.Func(nil, i32, wasmtest.I32Const(0), wasmtest.I32Const(6), wasmtest.Call(open)))
	m.ExportFunc(runtime.StartFunction, m.Func(nil, nil, wasmtest.I32Const(code), wasmtest.Call(exit)))
	m.Memory(1).Data(0, []byte("orders"))

	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, m.Bytes(), 0o644))
	return path
}

func TestRun_ExitCode(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	assert.NoError(t, a.run(ctx, []string{exitGuest(t, 0)}))

	err := a.run(ctx, []string{exitGuest(t, 4)})
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(err))
	assert.DirExists(t, wasi.CacheHostDir)
}

func TestBuild_LinksSlightfile(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	inst, err := a.build(ctx, exitGuest(t, 0), wasi.Config{})
	require.NoError(t, err)
	defer func() { _ = inst.Close(ctx) }()

	assert.Equal(t, 2, inst.Context().Len())
	st, ok := kv.Lookup(inst.Context(), "orders")
	require.True(t, ok)
	assert.Equal(t, "store", st.Store().Dir())

	res, err := inst.Call(ctx, "open")
	require.NoError(t, err)
	assert.Greater(t, int32(res[0]), int32(0))
}

func TestRun_Usage(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	assert.Error(t, a.run(ctx, nil))
	assert.Error(t, a.run(ctx, []string{"module.txt"}))

	err := a.run(ctx, []string{"missing.wasm"})
	var herr *hosterrors.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hosterrors.PhaseLoad, herr.Phase)
}

func TestSecret(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.secret([]string{"-k", "token", "-v", "s3cr3t"}))

	v, ok, err := config.OpenSecretStore(config.DefaultSecretStore).Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3cr3t", v)

	assert.Error(t, a.secret([]string{"-v", "x"}))
}

func TestNewProject_BadTemplate(t *testing.T) {
	a := newApp(t)
	err := a.newProject(context.Background(), []string{"-n", "demo@v0.2.0", "zig"})
	var herr *hosterrors.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hosterrors.KindNotFound, herr.Kind)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 7, exitCode(hosterrors.Exit(7, nil)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
