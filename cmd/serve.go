package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/httpapi"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP search API and the inventory watcher",
	Long: `Start the HTTP API (POST /upload, POST /search, POST /admin/reindex,
GET /healthz) and, unless watch.disabled is set, the inventory watcher that
rebuilds the indices when the collection changes.

The object store is probed first; an unreachable store is fatal.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.probe(ctx); err != nil {
		return err
	}

	addr := a.cfg.Server.Addr
	if flagServeAddr != "" {
		addr = flagServeAddr
	}
	srv := httpapi.New(a.finder, a.index, a.catalog, httpapi.Options{
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(gctx, addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.cfg.Watch.Disabled {
		a.logger.Info("inventory watcher disabled")
	} else {
		w := a.newWatcher()
		g.Go(func() error { return w.Run(gctx) })
	}

	err = g.Wait()
	a.logger.Info("shutdown complete", zap.Error(err))
	return err
}
