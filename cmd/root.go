package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "tilematch",
	Short:        "tilematch: visual and text search over a tile catalog",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `tilematch indexes a remote tile image collection and answers
"find tiles like this picture" and "find tiles matching this description"
queries, joined with product metadata from the catalog spreadsheet.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.tilematch/tilematch.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
