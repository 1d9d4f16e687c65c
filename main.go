// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// bpfmetrics is a demo host agent driving the collector modules: it
// activates the configured modules, refreshes their instance domains
// on a fixed cycle and logs the collected values. A real monitoring
// agent embeds the module packages directly and speaks its own wire
// protocol instead.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/module"
	_ "github.com/tracekit/bpfmetrics/modules"
	"github.com/tracekit/bpfmetrics/periodiccaller"
	"github.com/tracekit/bpfmetrics/toolkit"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	args, err := parseArgs()
	if err != nil {
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.verboseMode {
		log.SetLevel(log.DebugLevel)
		args.dump()
	}

	if code := sanityCheck(); code != exitSuccess {
		return code
	}

	mainCtx, mainCancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM, unix.SIGABRT)
	defer mainCancel()

	tk := toolkit.New(toolkit.Config{
		ClangPath:        args.clangPath,
		VerifierLogLevel: uint32(args.bpfVerifierLogLevel),
	})

	// Construct and activate the configured modules. A module whose
	// activation fails is skipped; the agent continues without it.
	var mu sync.Mutex
	active := make([]module.Module, 0, len(args.moduleNames()))

	g, gctx := errgroup.WithContext(mainCtx)
	for _, name := range args.moduleNames() {
		g.Go(func() error {
			opts := config.MapOptions(args.moduleOptions[name])
			mod, err := module.New(name, opts, tk)
			if err != nil {
				log.Errorf("Failed to construct module %s: %v", name, err)
				return nil
			}

			hasInstances, items := mod.DeclareMetrics()
			log.Debugf("Module %s declares %d items (instanced: %v)",
				name, len(items), hasInstances)

			if err = mod.Compile(gctx); err != nil {
				// Already logged; the module is terminally inactive.
				return nil
			}

			mu.Lock()
			active = append(active, mod)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(active) == 0 {
		log.Error("No module could be activated")
		return exitFailure
	}
	metrics.Add(metrics.IDActiveModules, metrics.MetricValue(len(active)))
	log.Infof("Activated %d of %d modules", len(active), len(args.moduleNames()))

	// SIGUSR1 forces a refresh outside the regular cycle.
	refreshTrigger := make(chan bool, 1)
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, unix.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for range usr1 {
			select {
			case refreshTrigger <- true:
			default:
			}
		}
	}()

	stop := periodiccaller.StartWithManualTrigger(mainCtx, args.refreshInterval,
		refreshTrigger, func(manualTrigger bool) {
			for _, mod := range active {
				instances := mod.Refresh()
				log.Debugf("Refresh (manual: %v): %d instances",
					manualTrigger, len(instances))
			}
		})

	// Block waiting for a signal to indicate the program should terminate
	<-mainCtx.Done()

	log.Info("Stop processing ...")

	// Let any in-flight refresh drain before tearing the modules down.
	stop()
	for _, mod := range active {
		mod.Close()
	}

	log.Info("Exiting ...")
	return exitSuccess
}

func sanityCheck() exitCode {
	if err := toolkit.ProbeBPFSyscall(); err != nil {
		return failure("Failed to probe eBPF syscall: %v", err)
	}

	major, minor, patch, err := toolkit.KernelVersion()
	if err != nil {
		return failure("Failed to get kernel version: %v", err)
	}

	var minMajor, minMinor uint32
	switch runtime.GOARCH {
	case "amd64":
		minMajor, minMinor = 4, 15
	case "arm64":
		minMajor, minMinor = 5, 5
	default:
		return failure("Unsupported architecture: %s", runtime.GOARCH)
	}
	if major < minMajor || (major == minMajor && minor < minMinor) {
		return failure("Host agent requires kernel version "+
			"%d.%d or newer but got %d.%d.%d", minMajor, minMinor, major, minor, patch)
	}

	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
