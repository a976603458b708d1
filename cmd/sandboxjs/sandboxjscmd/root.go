// Package sandboxjs is a small cobra-based CLI demonstrating the
// embeddable evaluator (spec §4.J): `run <file>` executes a script or
// module, `eval <expr>` evaluates one expression and prints its value.
// Grounded on the teacher's cmd/root.go globalState pattern: process
// state (args, env, std streams) is gathered once into a struct so the
// rest of the command tree never reaches into the os package directly.
package sandboxjscmd

import (
	"context"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// globalState mirrors the teacher's globalState: the single place that
// touches the real os package, so tests can substitute a fake one.
type globalState struct {
	ctx context.Context
	fs  afero.Fs
	cwd string

	stdOut, stdErr *consoleWriter

	cfg config
}

func newGlobalState(ctx context.Context) (*globalState, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	outMutex := &sync.Mutex{}
	isDumbTerm := os.Getenv("TERM") == "dumb"
	stdoutTTY := !isDumbTerm && isatty.IsTerminal(os.Stdout.Fd())
	stderrTTY := !isDumbTerm && isatty.IsTerminal(os.Stderr.Fd())

	gs := &globalState{
		ctx:    ctx,
		fs:     afero.NewOsFs(),
		cwd:    cwd,
		stdOut: &consoleWriter{Writer: colorable.NewColorable(os.Stdout), IsTTY: stdoutTTY, Mutex: outMutex},
		stdErr: &consoleWriter{Writer: colorable.NewColorable(os.Stderr), IsTTY: stderrTTY, Mutex: outMutex},
	}

	cfg, err := loadConfig(os.Getenv("SANDBOXJS_CONFIG"))
	if err != nil {
		return nil, err
	}
	gs.cfg = cfg
	return gs, nil
}

// Execute builds and runs the root command against os.Args; it is the
// whole of main().
func Execute(ctx context.Context) error {
	gs, err := newGlobalState(ctx)
	if err != nil {
		return err
	}
	return newRootCommand(gs).Execute()
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "sandboxjs",
		Short:         "Run scripts against the embeddable sandboxed JS evaluator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&gs.cfg.FeaturePreset, "feature-preset", gs.cfg.FeaturePreset,
		"named feature-gate preset (2019, 2020, strict-data)")
	root.PersistentFlags().BoolVar(&gs.cfg.Verbose, "verbose", gs.cfg.Verbose, "debug-level logging")
	root.PersistentFlags().BoolVar(&gs.cfg.NoColor, "no-color", gs.cfg.NoColor, "disable colored output")
	root.PersistentFlags().StringVar(&gs.cfg.LogFormat, "log-format", gs.cfg.LogFormat, "text or json")
	root.PersistentFlags().BoolVar(&gs.cfg.SanitizeErrors, "sanitize-errors", gs.cfg.SanitizeErrors, "sanitize stack traces in reported errors")

	root.AddCommand(newRunCommand(gs))
	root.AddCommand(newEvalCommand(gs))
	return root
}
