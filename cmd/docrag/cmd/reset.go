package cmd

import (
	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/output"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed chunk",
		Long: `Empty the index and remove its persisted state. This cannot be undone;
re-run 'docrag ingest' to rebuild.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.ValidationError("refusing to reset without confirmation", nil).
					WithSuggestion("re-run with --yes to delete the index")
			}

			proj, err := loadProject()
			if err != nil {
				return err
			}
			ix, err := proj.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = ix.Close() }()

			removed := ix.Len()
			if err := ix.Reset(cmd.Context()); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Index reset (%d entries removed)", removed)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
