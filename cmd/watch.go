package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flagWatchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the inventory watcher without the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchOnce, "once", false, "Run a single check cycle and exit")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
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
	w := a.newWatcher()
	if flagWatchOnce {
		if w.Cycle(ctx) {
			printOK("", "indices rebuilt")
		} else {
			printSkip("", "no rebuild needed (or rebuild failed, see log)")
		}
		return nil
	}
	return w.Run(ctx)
}
