package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codecrew/internal/render"
	"github.com/dshills/codecrew/workflow/store"
)

func newRunsCommand(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
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

			runs, err := e.store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			render.NewConsole(cmd.OutOrStdout()).Runs(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	return cmd
}

func newShowCommand(flags *globalFlags) *cobra.Command {
	var asText bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored transcript",
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
			turns, err := e.store.LoadTranscript(cmd.Context(), runID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %s not found", runID)
			}
			if err != nil {
				return fmt.Errorf("load transcript: %w", err)
			}

			msgs := render.FromTurns(turns)
			if asText {
				return render.Export(cmd.OutOrStdout(), msgs)
			}
			console := render.NewConsole(cmd.OutOrStdout())
			for _, m := range msgs {
				console.Message(m)
			}
			if rec, err := e.store.LoadRun(cmd.Context(), runID); err == nil && rec.Finished() {
				console.Runs([]store.RunRecord{rec})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "print in the plain-text export format")
	return cmd
}
