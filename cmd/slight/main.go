package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-host/config"
	"github.com/wippyai/wasm-host/engine"
	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/runtime"
)

const usage = `Usage: slight [-c slightfile] [-v] <command> [args]

Commands:
  run [-i] <module.wasm> [args...]   run a module against the slightfile's capabilities
  secret -k <key> -v <value>         add a secret to the application
  add <interface@release>            download an interface definition
  new -n <name@release> <c|rust>     start a new project
`

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		cfgPath = flag.String("c", config.DefaultFile, "Path to the slightfile")
		verbose = flag.Bool("v", false, "Verbose logging")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log)
	host.SetLogger(log)
	runtime.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &app{cfgPath: *cfgPath, log: log}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "run":
		err = app.run(ctx, args)
	case "secret":
		err = app.secret(args)
	case "add":
		err = app.add(ctx, args)
	case "new":
		err = app.newProject(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		return 2
	}

	if err != nil {
		return exitCode(err)
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// exitCode reports err and maps a guest exit to its own code.
func exitCode(err error) int {
	var herr *hosterrors.Error
	if errors.As(err, &herr) && herr.Kind == hosterrors.KindExit {
		if code, ok := herr.Value.(uint32); ok {
			return int(code)
		}
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
