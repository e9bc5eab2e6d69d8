package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/banner"

	"genie/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web chat",
	Long: `Starts the HTTP chat page with its JSON API and websocket endpoint.
The review index is prepared before the listener opens.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides web.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	banner.Print("Restaurant Genie", version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	wc := a.Config.Web
	addr := wc.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv, err := web.NewServer(web.Config{
		Addr:           addr,
		Title:          "Restaurant Genie",
		Model:          a.ModelID(),
		EmbeddingModel: a.Embedder.Name(),
		HistorySize:    wc.HistorySize,
		HistoryView:    wc.HistoryView,
		RatePerSec:     wc.RatePerSec,
		Burst:          wc.Burst,
	}, a, a.Logger)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("url", "http://"+addr).Msg("Server ready - press Ctrl+C to stop")
	return srv.Run(ctx)
}
