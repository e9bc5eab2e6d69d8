package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"genie/internal/app"
	"genie/internal/domain"
	"genie/internal/ingest"
	"genie/internal/summarizer"
)

var (
	inspectSentences int
	inspectTerms     int
	inspectRating    string
	inspectDate      string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [question]",
	Short: "Show what the index holds and what it retrieves",
	Long: `Prints the vector store size and a frequency summary of the review source.
With a question, also prints the reviews retrieved for it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectSentences, "sentences", 3, "highlight sentences in the summary")
	inspectCmd.Flags().IntVar(&inspectTerms, "terms", 10, "most used terms to list")
	inspectCmd.Flags().StringVar(&inspectRating, "rating", "", "only retrieve reviews with this rating")
	inspectCmd.Flags().StringVar(&inspectDate, "date", "", "only retrieve reviews from this date")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	stats, err := a.Index.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Vector store : %s (%s)\n", stats.Backend, stats.Embedder)
	fmt.Fprintf(out, "Number of documents in vector store : %d\n", stats.Count)
	fmt.Fprintf(out, "Source : %s\n", stats.Source)

	units, _, err := ingest.Load(stats.Source, app.IngestOptions(a.Config))
	if err != nil {
		fmt.Fprintf(out, "Source unreadable: %v\n", err)
	} else {
		printDigest(out, summarizer.NewFrequencySummarizer().Digest(units, inspectSentences, inspectTerms))
	}

	if len(args) == 0 {
		return nil
	}
	opts := a.RetrievalOptions()
	opts.Filter = domain.Filter{Rating: inspectRating, Date: inspectDate}
	docs, err := a.Index.Retrieve(ctx, args[0], opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nRetrieved docs for %q:\n", args[0])
	if len(docs) == 0 {
		fmt.Fprintln(out, "No relevant reviews found.")
	}
	for i, d := range docs {
		fmt.Fprintf(out, "\n--- Document %d ---\n", i+1)
		fmt.Fprintf(out, "Content : %s\n", d.Content)
		fmt.Fprintf(out, "Metadata : %s\n", formatMetadata(d.Metadata))
	}
	return nil
}

func printDigest(out io.Writer, d summarizer.Digest) {
	fmt.Fprintf(out, "\nReviews : %d across %d restaurants\n", d.Reviews, d.Restaurant)
	if d.Rated > 0 {
		fmt.Fprintf(out, "Average rating : %.2f (%d rated)\n", d.AverageRating, d.Rated)
	}
	if len(d.TopTerms) > 0 {
		terms := make([]string, len(d.TopTerms))
		for i, t := range d.TopTerms {
			terms[i] = fmt.Sprintf("%s (%d)", t.Term, t.Count)
		}
		fmt.Fprintf(out, "Top terms : %s\n", strings.Join(terms, ", "))
	}
	if d.Highlights != "" {
		fmt.Fprintf(out, "Highlights :\n%s\n", d.Highlights)
	}
}

func formatMetadata(m domain.Metadata) string {
	fields := m.Map()
	keys := slices.Sorted(maps.Keys(fields))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fields[k]
	}
	return strings.Join(parts, " ")
}
