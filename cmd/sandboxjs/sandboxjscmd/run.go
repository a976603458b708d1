package sandboxjscmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	sbmodule "github.com/grafana/jsvm/internal/sandbox/module"
	"github.com/grafana/jsvm/internal/sandbox/value"
	"github.com/grafana/jsvm/pkg/sandbox"
)

func newRunCommand(gs *globalState) *cobra.Command {
	var asModule bool
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a script (or, with --module, an ES module) file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runFile(gs, args[0], asModule)
		},
	}
	cmd.Flags().BoolVar(&asModule, "module", false, "parse and evaluate the file as an ES module, resolving its imports")
	return cmd
}

func runFile(gs *globalState, path string, asModule bool) error {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(gs.cwd, abs)
	}
	src, err := afero.ReadFile(gs.fs, abs)
	if err != nil {
		return err
	}

	logger := newLogger(gs.stdErr, gs.cfg.LogFormat, gs.cfg.Verbose)
	sanitize := gs.cfg.SanitizeErrors

	opts := sandbox.Options{
		Security:       sandbox.SecurityOptions{SanitizeErrors: &sanitize},
		FeatureControl: sandbox.FeatureControlOptions{Preset: gs.cfg.FeaturePreset},
		Filename:       abs,
		Logger:         logger,
	}
	if asModule {
		opts.Modules = sandbox.ModuleOptions{
			Enabled:      true,
			Resolver:     sbmodule.NewFileResolver(gs.fs, filepath.Dir(abs)),
			CacheEnabled: true,
		}
	}

	ev, err := sandbox.New(opts)
	if err != nil {
		return err
	}

	if asModule {
		exports, err := ev.EvaluateModuleAsync(gs.ctx, string(src), abs)
		if err != nil {
			return err
		}
		for name, v := range exports {
			fmt.Fprintf(gs.stdOut, "%s = %s\n", name, value.ToString(v))
		}
		return nil
	}

	v, err := ev.Evaluate(gs.ctx, string(src))
	if err != nil {
		return err
	}
	fmt.Fprintln(gs.stdOut, value.ToString(v))
	return nil
}
