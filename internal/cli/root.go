// Package cli is the genie command tree.
package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"genie/internal/app"
	"genie/internal/config"
	"genie/internal/logging"
)

var (
	cfgPath    string
	modelName  string
	promptName string

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "genie",
	Short: "Answer questions about pizza restaurants from their reviews",
	Long: `Restaurant Genie indexes restaurant reviews into a vector store and answers
questions about them with a local language model.

Run "genie chat" for a line prompt, "genie tui" for the terminal UI or
"genie serve" for the web chat.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config (default ./config.yaml or ~/.config/genie/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "model alias or full model id")
	rootCmd.PersistentFlags().StringVarP(&promptName, "prompt", "p", "", "prompt template name")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()
	if cfgPath == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(cfgPath)
}

// newApp wires the application from flags and config. Quiet apps log nothing,
// which keeps full-screen views intact.
func newApp(quiet bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)
	if quiet {
		logger = logging.Discard()
	}
	return app.New(cfg, logger, app.Options{Model: modelName, Prompt: promptName})
}
