// Command codecrew runs a team of LLM roles that turn a requirement into
// code, review, documentation, tests, deployment config and a UI.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags override configuration values when set.
type globalFlags struct {
	configPath    string
	maxIterations int
	provider      string
	model         string
	metricsAddr   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "codecrew",
		Short:        "Multi-agent development team",
		Long:         "codecrew hands a requirement through analysis, coding, review, documentation, tests, deployment and UI generation roles.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, flags, "")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	pf.IntVar(&flags.maxIterations, "max-iterations", 0, "conversation message cap (overrides workflow.max_iterations)")
	pf.StringVar(&flags.provider, "provider", "", "model provider: ollama, openai, gemini, anthropic or google")
	pf.StringVar(&flags.model, "model", "", "model name (provider default when empty)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(newTUICommand(flags))
	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newRunsCommand(flags))
	root.AddCommand(newShowCommand(flags))
	root.AddCommand(newReplayCommand(flags))
	return root
}
