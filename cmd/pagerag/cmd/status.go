package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclens/pagerag/internal/config"
	"github.com/doclens/pagerag/internal/output"
)

func newStatusCmd() *cobra.Command {
	var fileID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a document is indexed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), fileID)
		},
	}

	cmd.Flags().StringVar(&fileID, "file", "", "Document identifier")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// runStatus opens the store directly: status is a local read and must not
// require API credentials.
func runStatus(ctx context.Context, fileID string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	count, err := st.CountChunks(ctx, fileID)
	if err != nil {
		return err
	}

	w := output.New(os.Stdout)
	if count == 0 {
		w.Warningf("%s: not indexed", fileID)
		return nil
	}
	w.Successf("%s: indexed (%d chunks)", fileID, count)
	return nil
}
