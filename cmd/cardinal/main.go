// Command cardinal is Cardinal's proxy binary: it loads config, wires the
// Provider Container, Destination Resolver, Plugin Registry, Plugin
// Runner, and WASM Runtime into a proxy host, and serves until signalled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cardinal-rs/cardinal/internal/builtinfilters"
	"github.com/cardinal-rs/cardinal/internal/config"
	"github.com/cardinal-rs/cardinal/internal/destination"
	"github.com/cardinal-rs/cardinal/internal/metrics"
	"github.com/cardinal-rs/cardinal/internal/proxyhost"
	"github.com/cardinal-rs/cardinal/internal/provider"
	"github.com/cardinal-rs/cardinal/internal/registry"
	"github.com/cardinal-rs/cardinal/internal/runner"
	"github.com/cardinal-rs/cardinal/internal/wasmhost"
	"github.com/cardinal-rs/cardinal/pkg/cardinallog"
)

// exit codes per spec.md §6: 0 graceful, 2 config validation failure, 1 runtime fatal error.
const (
	exitOK            = 0
	exitConfigInvalid = 2
	exitRuntimeFatal  = 1
)

// configPaths collects repeated --config flags in the order they appear
// on the command line; internal/config.Load merges them in that order,
// later files overriding earlier ones.
type configPaths []string

func (p *configPaths) String() string { return fmt.Sprint([]string(*p)) }

func (p *configPaths) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var paths configPaths
	flag.Var(&paths, "config", "path to a TOML config file; repeatable, later files override earlier ones")
	dev := flag.Bool("dev", false, "use console logging instead of JSON")
	flag.Parse()

	logger, err := cardinallog.New(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardinal: building logger: %v\n", err)
		return exitRuntimeFatal
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load([]string(paths))
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return exitConfigInvalid
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wasmRuntime, err := wasmhost.NewRuntime(ctx)
	if err != nil {
		logger.Error("starting wasm runtime", zap.Error(err))
		return exitRuntimeFatal
	}
	defer wasmRuntime.Close(ctx)

	reg, err := registry.Build(cfg.Plugins, builtinfilters.New, wasmRuntime)
	if err != nil {
		logger.Error("building plugin registry", zap.Error(err))
		return exitConfigInvalid
	}

	resolver, err := destination.New(cfg)
	if err != nil {
		logger.Error("building destination resolver", zap.Error(err))
		return exitConfigInvalid
	}

	metricsReg := metrics.New()
	container := provider.NewContainer()
	run := runner.New(container, logger, metricsReg.Registerer)

	host, err := proxyhost.New(cfg, resolver, reg, run, logger)
	if err != nil {
		logger.Error("building proxy host", zap.Error(err))
		return exitConfigInvalid
	}
	host = host.WithMetrics(metricsReg)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("cardinal listening", zap.String("address", cfg.Server.Address))
		serveErr <- host.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("listener failed", zap.Error(err))
			return exitRuntimeFatal
		}
	case <-quit:
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := host.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return exitRuntimeFatal
		}
	}
	return exitOK
}
