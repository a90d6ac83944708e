package main

import (
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dshills/codecrew/internal/tui"
	"github.com/dshills/codecrew/workflow"
)

func newTUICommand(flags *globalFlags) *cobra.Command {
	var exportDir string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive interface (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, flags, exportDir)
		},
	}
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "directory for saved transcripts (default: current directory)")
	return cmd
}

func runTUI(cmd *cobra.Command, flags *globalFlags, exportDir string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// The alternate screen owns the terminal; logs go to a file next to
	// the exports, or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.Log.Level == "debug" {
		f, err := os.OpenFile(filepath.Join(exportDir, "codecrew.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}

	e, err := setupEnv(cfg, logOut)
	if err != nil {
		return err
	}
	defer e.Close()

	runner := func(requirement string, maxIterations int) (*workflow.Run, error) {
		c, err := e.coordinator(maxIterations)
		if err != nil {
			return nil, err
		}
		return c.NewRun(requirement)
	}

	opts := []tui.Option{}
	if exportDir != "" {
		opts = append(opts, tui.WithExportDir(exportDir))
	}
	app := tui.NewApp(cmd.Context(), runner, opts...)
	_, err = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
