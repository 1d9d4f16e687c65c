// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// Default values for CLI flags
	defaultArgModules         = "tcplife,biolatency,runqlat,syscount"
	defaultArgRefreshInterval = 5 * time.Second
	defaultArgClangPath       = "clang"
)

// Help strings for command line arguments
var (
	modulesHelp             = "Comma-separated list of collector modules to activate."
	refreshIntervalHelp     = "Interval between refresh cycles of the instance domains."
	clangPathHelp           = "Path to the clang binary used to compile program text."
	verboseModeHelp         = "Enable verbose logging and debugging capabilities."
	bpfVerifierLogLevelHelp = "Log level of the eBPF verifier output (0,1,2). Default is 0."
	moduleOptionHelp        = "Per-module option in the form module.key=value. May be repeated."
)

type arguments struct {
	modules             string
	refreshInterval     time.Duration
	clangPath           string
	verboseMode         bool
	bpfVerifierLogLevel uint

	moduleOptions moduleOptionsFlag

	fs *flag.FlagSet
}

// moduleOptionsFlag accumulates repeated module.key=value options into
// per-module sections.
type moduleOptionsFlag map[string]map[string]string

func (m moduleOptionsFlag) String() string {
	parts := make([]string, 0, len(m))
	for section, opts := range m {
		for k, v := range opts {
			parts = append(parts, fmt.Sprintf("%s.%s=%s", section, k, v))
		}
	}
	return strings.Join(parts, ",")
}

func (m moduleOptionsFlag) Set(value string) error {
	key, val, found := strings.Cut(value, "=")
	if !found {
		return fmt.Errorf("option %q is not of the form module.key=value", value)
	}
	section, name, found := strings.Cut(key, ".")
	if !found {
		return fmt.Errorf("option %q is not of the form module.key=value", value)
	}
	if m[section] == nil {
		m[section] = make(map[string]string)
	}
	m[section][name] = val
	return nil
}

func parseArgs() (*arguments, error) {
	var args arguments
	args.moduleOptions = make(moduleOptionsFlag)

	fs := flag.NewFlagSet("bpfmetrics", flag.ContinueOnError)
	fs.Usage = func() {
		fs.PrintDefaults()
	}

	fs.StringVar(&args.modules, "modules", defaultArgModules, modulesHelp)
	fs.DurationVar(&args.refreshInterval, "refresh-interval",
		defaultArgRefreshInterval, refreshIntervalHelp)
	fs.StringVar(&args.clangPath, "clang", defaultArgClangPath, clangPathHelp)
	fs.BoolVar(&args.verboseMode, "verbose", false, verboseModeHelp)
	fs.UintVar(&args.bpfVerifierLogLevel, "bpf-log-level", 0, bpfVerifierLogLevelHelp)
	fs.Var(&args.moduleOptions, "opt", moduleOptionHelp)

	args.fs = fs
	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BPFMETRICS"),
	)
}

// moduleNames splits the -modules flag.
func (args *arguments) moduleNames() []string {
	var names []string
	for _, name := range strings.Split(args.modules, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (args *arguments) dump() {
	log.Debug("Config:")
	args.fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}
