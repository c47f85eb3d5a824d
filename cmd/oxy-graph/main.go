package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine"
)

func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args, installs the logger and drives the engine until it stops.
func run(outW, logW io.Writer, args []string) error {
	opts, shouldExit, err := parseArgs(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	common.SetLogger(common.NewLogger(opts.cfg.LogLevel, opts.cfg.LogFormat, logW))

	eng, err := engine.NewEngine(opts.cfg,
		engine.WithHeadless(opts.headless),
		engine.WithMaxFrames(opts.frames),
		engine.WithProfiling(opts.profile),
		engine.WithTickRate(60),
	)
	if err != nil {
		return err
	}

	d, err := newDemo(eng.Renderer().Buffers(), opts.cubes, float32(opts.cfg.Width)/float32(opts.cfg.Height))
	if err != nil {
		eng.Quit()
		return errors.Join(err, eng.Run())
	}
	eng.SetView(d.view)
	eng.SetTickCallback(d.tick)
	if w := eng.Window(); w != nil {
		w.SetKeyDownCallback(d.keyDown)
	}

	if err := eng.Run(); err != nil {
		return err
	}
	fmt.Fprintf(outW, "rendered %d frames\n", eng.Frames())
	return nil
}
