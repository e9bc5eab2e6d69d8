package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genie/internal/service"
)

const brewing = "🧞‍♂️✨ Genie is brewing your solution... 🧪"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions at a line prompt",
	Long: `Reads questions from standard input and prints the Genie's answers.
Type bye, quit or kill to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func isExitWord(s string) bool {
	switch strings.ToLower(s) {
	case "bye", "quit", "kill":
		return true
	}
	return service.IsFarewell(s)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nAsk your question : ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		fmt.Fprintln(out)
		if isExitWord(question) {
			fmt.Fprintln(out, service.Farewell)
			return nil
		}
		if question == "" {
			fmt.Fprintln(out, service.PromptForInput)
			continue
		}
		fmt.Fprintf(out, "%s\n\n", brewing)
		fmt.Fprintln(out, a.Answer(ctx, question))
		fmt.Fprintln(out, "\n------")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
