package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/codecrew/internal/render"
)

// fibonacciRequirement is the sample requirement used when none is given.
const fibonacciRequirement = `Create a Python function that calculates the Fibonacci sequence up to n numbers.
The function should be efficient, handle edge cases (n <= 0, n = 1, n = 2),
and include input validation. It should return a list of Fibonacci numbers.`

func newRunCommand(flags *globalFlags) *cobra.Command {
	var requirement string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workflow once and print the transcript",
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

			c, err := e.coordinator(0)
			if err != nil {
				return err
			}
			run, err := c.NewRun(requirement)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			console := render.NewConsole(cmd.OutOrStdout())
			for msg := range run.Stream(ctx) {
				console.Message(msg)
			}

			out := run.Outcome()
			console.Outcome(out)
			if cost := e.costs.RunCost(out.RunID); cost > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "estimated cost: $%.4f\n", cost)
			}
			if !out.Completed() && out.Err != nil {
				return out.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requirement, "requirement", "r", fibonacciRequirement, "requirement to hand to the team")
	return cmd
}
