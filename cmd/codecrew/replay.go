package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codecrew/internal/render"
	"github.com/dshills/codecrew/workflow"
	"github.com/dshills/codecrew/workflow/store"
)

func newReplayCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Re-run a stored run from its transcript and verify it reproduces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			e, err := setupEnv(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			runID := args[0]
			rec, err := e.store.LoadRun(cmd.Context(), runID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %s not found", runID)
			}
			if err != nil {
				return fmt.Errorf("load run: %w", err)
			}
			turns, err := e.store.LoadTranscript(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("load transcript: %w", err)
			}
			recorded := render.FromTurns(turns)

			// A model-driven selector would consult the live model, so the
			// linear policy stands in for it.
			sel := e.selector
			if cfg.Selector.Kind == "model" {
				sel = workflow.LinearSelector{}
			}
			c, err := workflow.New(e.registry, workflow.NewReplayInvoker(recorded),
				workflow.WithMaxIterations(rec.MaxIterations),
				workflow.WithCompletionToken(cfg.Workflow.CompletionToken),
				workflow.WithSelector(sel),
				workflow.WithLogger(e.logger),
			)
			if err != nil {
				return err
			}

			out, err := c.Run(cmd.Context(), rec.Requirement)
			if err != nil {
				return err
			}
			console := render.NewConsole(cmd.OutOrStdout())
			for _, m := range out.Conversation {
				console.Message(m)
			}
			console.Outcome(out)

			if err := workflow.VerifyReplay(recorded, out.Conversation); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replay matches recording (%s)\n", workflow.Digest(recorded))
			return nil
		},
	}
}
