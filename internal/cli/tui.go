package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"genie/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch the full-screen chat.

Controls:
  Enter        - Ask
  ↑/↓          - Browse earlier answers
  PgUp/PgDown  - Scroll the answer
  Ctrl+C, bye  - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	cmd.Println("Preparing the review index...")
	if err := a.Start(cmd.Context()); err != nil {
		return err
	}
	p := tea.NewProgram(tui.New(a, "Restaurant Genie"), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
