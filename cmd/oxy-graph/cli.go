package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Carmen-Shannon/oxy-graph/engine/config"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/node"
)

// ExitError carries the process exit code for a command-line failure.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// options are the parsed command-line settings.
type options struct {
	cfg      config.Config
	headless bool
	frames   uint64
	cubes    int
	profile  bool
}

// parseArgs turns args into options. The bool result is true when the program should exit
// cleanly, as after -h.
func parseArgs(args []string, output io.Writer) (options, bool, error) {
	fs := flag.NewFlagSet("oxy-graph", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
oxy-graph - renders a deferred scene through the render graph and frame scheduler.

Usage:
  oxy-graph [options]

Options:
`)
		fs.PrintDefaults()
	}

	configFlag := fs.String("config", "", "Path to an HCL engine configuration file.")
	headlessFlag := fs.Bool("headless", false, "Render without a window on the in-memory backend.")
	framesFlag := fs.Uint64("frames", 0, "Stop after this many frames. 0 runs until the window closes.")
	cubesFlag := fs.Int("cubes", 64, "Number of cubes in the demo grid.")
	profileFlag := fs.Bool("profile", false, "Log frame and memory statistics every second.")
	logLevelFlag := fs.String("log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'. Overrides the config file.")
	logFormatFlag := fs.String("log-format", "", "Log output format: 'text' or 'json'. Overrides the config file.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return options{}, true, nil
		}
		return options{}, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return options{}, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", fs.Arg(0))}
	}

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.LoadFile(*configFlag); err != nil {
			return options{}, false, &ExitError{Code: 1, Message: err.Error()}
		}
	}

	if lvl := strings.ToLower(*logLevelFlag); lvl != "" {
		switch lvl {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = lvl
		default:
			return options{}, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
		}
	}
	if format := strings.ToLower(*logFormatFlag); format != "" {
		if format != "text" && format != "json" {
			return options{}, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
		}
		cfg.LogFormat = format
	}

	if err := cfg.Validate(); err != nil {
		return options{}, false, &ExitError{Code: 2, Message: err.Error()}
	}
	// the floor plane takes one object slot
	if limit := node.DefaultObjectCapacity*cfg.Kernels - 1; *cubesFlag < 1 || *cubesFlag > limit {
		return options{}, false, &ExitError{Code: 2, Message: fmt.Sprintf("cubes must be between 1 and %d with %d kernels", limit, cfg.Kernels)}
	}

	return options{
		cfg:      cfg,
		headless: *headlessFlag,
		frames:   *framesFlag,
		cubes:    *cubesFlag,
		profile:  *profileFlag,
	}, false, nil
}
