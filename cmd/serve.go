package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/logger"
	"github.com/ziadkadry99/siterag/internal/rag"
	"github.com/ziadkadry99/siterag/internal/render"
	"github.com/ziadkadry99/siterag/internal/server"
)

var (
	servePort     int
	serveLoad     bool
	serveIngest   bool
	serveAllowAll bool
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	Long: `Starts the siterag HTTP server exposing /rag/ingest, /rag/ask-query, /rag/search,
snapshot endpoints, a WebSocket at /rag/ws and Prometheus metrics at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := logger.FromContext(ctx)

		a, err := newApp(ctx, appOptions{needGenerator: true})
		if err != nil {
			return err
		}

		if serveLoad || a.cfg.Snapshot.LoadOnStart {
			loaded, err := a.loadSnapshot(ctx)
			switch {
			case err != nil:
				log.Warn("Could not load snapshot, starting empty", "err", err)
			case !loaded:
				log.Info("No snapshot found, starting empty")
			}
		}
		if serveIngest {
			if a.cfg.SitemapURL == "" {
				return fmt.Errorf("--ingest needs sitemap_url in %s", cfgFile)
			}
			if _, err := a.svc.StartIngest(ctx, rag.IngestRequest{SitemapURL: a.cfg.SitemapURL}); err != nil {
				return fmt.Errorf("starting ingest: %w", err)
			}
		}

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv := server.New(server.Config{
			Port:           port,
			AllowAll:       serveAllowAll || a.cfg.Server.AllowAllOrigins,
			RequestTimeout: a.cfg.Server.RequestTimeout,
		}, a.metrics)
		rag.RegisterRoutes(srv.Router(), a.svc, render.New(""))

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			log.Info("Shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn("HTTP shutdown incomplete", "err", err)
			}
		}()

		st := a.svc.Status(ctx)
		fmt.Fprintf(os.Stderr, "siterag server %s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", a.cfg.DBPath())
		fmt.Fprintf(os.Stderr, "  Knowledge base: %s (%d documents)\n", st.State, st.Documents)

		serveErr := srv.Start(ctx)

		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(cctx); err != nil {
			log.Warn("Service shutdown incomplete", "err", err)
		}
		return serveErr
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveLoad, "load-snapshot", false, "restore the saved knowledge base before serving")
	serveCmd.Flags().BoolVar(&serveIngest, "ingest", false, "ingest the configured sitemap_url in the background on start")
	serveCmd.Flags().BoolVar(&serveAllowAll, "allow-all-origins", false, "allow every CORS origin")
	rootCmd.AddCommand(serveCmd)
}
