package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-host/capabilities"
	"github.com/wippyai/wasm-host/config"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/scaffold"
	"github.com/wippyai/wasm-host/wasi"
)

type app struct {
	cfgPath string
	log     *zap.Logger
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	interactive := fs.Bool("i", false, "Interactive mode with TUI")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("run: missing module path")
	}
	module := fs.Arg(0)
	if filepath.Ext(module) != ".wasm" {
		return fmt.Errorf("run: %q is not a .wasm file", module)
	}

	if *interactive && term.IsTerminal(int(os.Stdout.Fd())) {
		return runInteractive(ctx, a, module)
	}

	inst, err := a.build(ctx, module, wasi.DefaultConfig().WithArgs(fs.Args()...))
	if err != nil {
		return err
	}
	defer func() { _ = inst.Close(ctx) }()

	return inst.Run(ctx)
}

// build links every slightfile capability and the inherited environment,
// then builds module.
func (a *app) build(ctx context.Context, module string, env wasi.Config) (*runtime.Instance, error) {
	file, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(wasi.CacheHostDir, 0o755); err != nil {
		return nil, err
	}

	b, err := runtime.New(ctx,
		runtime.WithLogger(a.log),
		runtime.WithEnvironmentConfig(env),
		runtime.WithResourceMap(resource.NewMap()),
	)
	if err != nil {
		return nil, err
	}

	secrets := config.OpenSecretStore(file.SecretStorePath())
	if err := b.LinkEnvironment(); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	if err := capabilities.Default(secrets).LinkAll(ctx, b, file.Capabilities()); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	return b.Build(ctx, module)
}

func (a *app) secret(args []string) error {
	fs := flag.NewFlagSet("secret", flag.ContinueOnError)
	key := fs.String("k", "", "Secret key")
	value := fs.String("v", "", "Secret value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("secret: -k is required")
	}

	file, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	store := config.OpenSecretStore(file.SecretStorePath())
	if err := store.Put(*key, *value); err != nil {
		return err
	}
	a.log.Info("secret stored", zap.String("key", *key), zap.String("store", store.Path()))
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	dir := fs.String("d", ".", "Directory to download into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("add: expected one interface@release argument")
	}
	ref, err := scaffold.ParseInterfaceAtRelease(fs.Arg(0))
	if err != nil {
		return err
	}
	path, err := scaffold.NewFetcher("", a.log).Fetch(ctx, ref, *dir)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func (a *app) newProject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	name := fs.String("n", "", "Project name@release")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("new: expected a template (%s)", strings.Join(scaffold.Templates(), "|"))
	}
	ref, err := scaffold.ParseInterfaceAtRelease(*name)
	if err != nil {
		return err
	}

	project, err := scaffold.New(".", fs.Arg(0), ref)
	if err != nil {
		return err
	}

	// the kv interface the templates import
	kvRef := scaffold.InterfaceAtRelease{Name: "keyvalue", Release: ref.Release, Version: ref.Version}
	if _, err := scaffold.NewFetcher("", a.log).Fetch(ctx, kvRef, filepath.Join(project, "wit")); err != nil {
		a.log.Warn("interface download failed", zap.String("interface", kvRef.String()), zap.Error(err))
	}
	fmt.Println(project)
	return nil
}
