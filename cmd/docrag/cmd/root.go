// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/logging"
	"github.com/SakshamDixitSBH/docrag/pkg/version"
)

var (
	// configDir overrides project root discovery.
	configDir string

	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Lexical retrieval over PDFs and email",
		Long: `docrag indexes PDF pages and email messages into overlapping chunks
and ranks them against keyword queries with BM25.

Ingest a folder, then search it or ask questions answered from the
retrieved passages:

  docrag ingest ./policies ./mail/inbox.mbox
  docrag search "late payment fee" --kind pdf
  docrag ask "When are invoices due?"`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"Project directory holding .docrag.yaml and the .docrag data directory (default: discovered from the working directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docrag/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging sends structured logs to the rotating log file. The MCP
// server sets up its own logging since stdout carries the protocol.
func startLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "serve" {
		return nil
	}

	level := "info"
	if env := os.Getenv("DOCRAG_LOG_LEVEL"); env != "" {
		level = strings.ToLower(env)
	}
	if debugMode {
		level = "debug"
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		// Logging is best effort for CLI commands.
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: file logging disabled: %v\n", err)
		return nil
	}
	loggingCleanup = cleanup
	slog.Debug("command_started", "command", cmd.CommandPath(), "version", version.Short())
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		// Post-run hooks are skipped when RunE fails.
		_ = stopLogging(nil, nil)
		_, _ = fmt.Fprint(root.ErrOrStderr(), errors.FormatForCLI(err))
	}
	return err
}
