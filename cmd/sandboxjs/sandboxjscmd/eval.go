package sandboxjscmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/grafana/jsvm/internal/sandbox/value"
	"github.com/grafana/jsvm/pkg/sandbox"
)

func newEvalCommand(gs *globalState) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a single expression and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return evalExpr(gs, args[0], query)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "after JSON-serializing the result, print only the gjson path given here")
	return cmd
}

func evalExpr(gs *globalState, expr, query string) error {
	logger := newLogger(gs.stdErr, gs.cfg.LogFormat, gs.cfg.Verbose)
	sanitize := gs.cfg.SanitizeErrors

	ev, err := sandbox.New(sandbox.Options{
		Security:       sandbox.SecurityOptions{SanitizeErrors: &sanitize},
		FeatureControl: sandbox.FeatureControlOptions{Preset: gs.cfg.FeaturePreset},
		Filename:       "<eval>",
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if query != "" {
		// Route the result through JSON.stringify so a host can pull one
		// field out of a large object without decoding the whole thing
		// into a Go value first.
		js, err := ev.Evaluate(gs.ctx, "JSON.stringify("+expr+")")
		if err != nil {
			return err
		}
		result := gjson.Get(value.ToString(js), query)
		fmt.Fprintln(gs.stdOut, result.String())
		return nil
	}

	v, err := ev.Evaluate(gs.ctx, expr)
	if err != nil {
		return err
	}
	fmt.Fprintln(gs.stdOut, value.ToString(v))
	return nil
}
