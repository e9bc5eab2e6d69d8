package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genie/internal/app"
)

// benchQuestions are asked in order by the bench command.
var benchQuestions = []string{
	"What are the best pizza places?",
	"Show me restaurants with 5-star ratings",
	"Which restaurants have the worst reviews?",
	"Tell me about Italian restaurants",
	"What do people say about the service?",
}

var (
	benchIterations int
	benchQuestionN  int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time retrieval and generation for fixed questions",
	Args:  cobra.NoArgs,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchIterations, "iterations", "i", 1, "runs per question")
	benchCmd.Flags().IntVarP(&benchQuestionN, "questions", "n", 2, "number of test questions to run")
	rootCmd.AddCommand(benchCmd)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchIterations < 1 {
		return fmt.Errorf("--iterations must be at least 1")
	}
	n := min(max(benchQuestionN, 1), len(benchQuestions))

	a, err := newApp(false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nQuick benchmark (%s)\n%s\n", a.ModelID(), strings.Repeat("-", 50))

	var overall time.Duration
	for i, q := range benchQuestions[:n] {
		fmt.Fprintf(out, "\nTest %d/%d\n", i+1, n)
		var sum time.Duration
		for range benchIterations {
			sum += benchOnce(ctx, out, a, q)
		}
		avg := sum / time.Duration(benchIterations)
		overall += avg
		fmt.Fprintf(out, "Average time : %s\n", seconds(avg))
	}
	fmt.Fprintf(out, "\nOverall average : %s\n", seconds(overall/time.Duration(n)))
	return nil
}

// benchOnce asks q once and prints the phase timings.
func benchOnce(ctx context.Context, out io.Writer, a *app.App, q string) time.Duration {
	label := q
	if r := []rune(q); len(r) > 50 {
		label = string(r[:50])
	}
	fmt.Fprintf(out, "\nBenchmarking : %s\n%s\n", label, strings.Repeat("=", 60))

	start := time.Now()
	_, tr := a.Ask(ctx, q)
	elapsed := time.Since(start)

	fmt.Fprintf(out, "Document Retrieval : %s\n", seconds(tr.Retrieval))
	fmt.Fprintf(out, "Context Preparation : %s\n", seconds(tr.Context))
	fmt.Fprintf(out, "LLM Generation : %s\n", seconds(tr.Generation))
	if tr.Err != nil {
		fmt.Fprintf(out, "Error : %v\n", tr.Err)
	}
	fmt.Fprintf(out, "Total time : %s\n", seconds(elapsed))
	fmt.Fprintf(out, "Retrieved %d documents\n", tr.Documents)
	fmt.Fprintf(out, "Context length: %d characters\n", tr.ContextLength)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	return elapsed
}
