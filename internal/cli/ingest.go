package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var ingestRebuild bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Populate the review index",
	Long: `Loads the configured review source into the vector store. An index that
already holds reviews is reused unless --rebuild is given.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRebuild, "rebuild", false, "drop the stored index and load the source again")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	start := time.Now()
	if ingestRebuild {
		err = a.Index.Reindex(ctx)
	} else {
		err = a.Index.EnsureReady(ctx)
	}
	if err != nil {
		return err
	}
	stats, err := a.Index.Stats(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Indexed %d reviews from %s into %s (%s) in %s\n",
		stats.Count, stats.Source, stats.Backend, stats.Embedder, time.Since(start).Round(time.Millisecond))
	return nil
}
