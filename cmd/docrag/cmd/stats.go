package cmd

import (
	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Show the number of indexed chunks per source kind, the average chunk length and where the index is stored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			proj, err := loadProject()
			if err != nil {
				return err
			}
			ix, err := proj.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = ix.Close() }()

			out := output.New(cmd.OutOrStdout())
			stats := ix.Stats()
			if jsonOutput {
				return out.JSON(stats)
			}
			out.Stats(stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}
