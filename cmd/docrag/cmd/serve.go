package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/logging"
	"github.com/SakshamDixitSBH/docrag/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var noAnswer bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start a Model Context Protocol server on stdio exposing the index to
MCP clients.

Tools:
  search        rank chunks against a query
  index_status  report index state and size
  ask           answer from retrieved chunks (only when a model is configured)

Logs go to ~/.docrag/logs/ since stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			proj, err := loadProject()
			if err != nil {
				return err
			}

			level := proj.Config.LogLevel
			if debugMode {
				level = "debug"
			}
			cleanup, err := logging.SetupServerMode(level)
			if err == nil {
				defer cleanup()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ix, err := proj.openIndex(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = ix.Close() }()

			opts := []mcp.Option{mcp.WithLogger(slog.Default())}
			if !noAnswer {
				svc, err := proj.answerService(ix)
				if err != nil {
					slog.Info("mcp_ask_disabled", errors.LogAttrs(err)...)
				} else {
					opts = append(opts, mcp.WithAnswerService(svc))
				}
			}

			srv, err := mcp.NewServer(ix, proj.Config, opts...)
			if err != nil {
				return err
			}
			return srv.Serve(ctx, proj.Config.Server.Transport)
		},
	}

	cmd.Flags().BoolVar(&noAnswer, "no-answer", false, "Do not register the ask tool")

	return cmd
}
