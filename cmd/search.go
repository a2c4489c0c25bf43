package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/finder"
)

var (
	flagSearchK        int
	flagSearchMinScore float64
	flagSearchNoCrop   bool
	flagSearchTimeout  time.Duration
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query the indices from the command line",
}

var searchImageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Find tiles visually similar to an image file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearchImage,
}

var searchTextCmd = &cobra.Command{
	Use:   "text <query...>",
	Short: "Find tiles matching a free-text description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearchText,
}

func init() {
	for _, c := range []*cobra.Command{searchImageCmd, searchTextCmd} {
		c.Flags().IntVar(&flagSearchK, "k", 0, "Number of results to show (overrides search.*.top_k)")
		c.Flags().Float64Var(&flagSearchMinScore, "min-score", 0, "Minimum cosine similarity (overrides search.*.min_threshold)")
		c.Flags().DurationVar(&flagSearchTimeout, "timeout", 10*time.Minute, "Overall timeout, including a cold-start index build")
	}
	searchImageCmd.Flags().BoolVar(&flagSearchNoCrop, "no-crop", false, "Do not centre-crop the query image")
	searchCmd.AddCommand(searchImageCmd, searchTextCmd)
	rootCmd.AddCommand(searchCmd)
}

// applySearchFlags folds explicitly set flags into p.
func applySearchFlags(cmd *cobra.Command, p *config.SearchParams) {
	if cmd.Flags().Changed("k") {
		p.TopK = flagSearchK
	}
	if cmd.Flags().Changed("min-score") {
		p.MinThreshold = flagSearchMinScore
	}
	if cmd.Flags().Changed("no-crop") {
		p.CropToCenter = !flagSearchNoCrop
	}
}

func runSearchImage(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", args[0], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagSearchTimeout)
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	applySearchFlags(cmd, &a.cfg.Search.Image)
	if err := a.rebuildFinder(); err != nil {
		return err
	}

	matches, err := a.finder.FindByImage(ctx, data)
	if err != nil {
		return err
	}
	printMatches(fmt.Sprintf("tilematch search image %q", args[0]), matches)
	return nil
}

func runSearchText(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), flagSearchTimeout)
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	applySearchFlags(cmd, &a.cfg.Search.Text)
	if err := a.rebuildFinder(); err != nil {
		return err
	}

	matches, err := a.finder.FindByText(ctx, query)
	if err != nil {
		return err
	}
	printMatches(fmt.Sprintf("tilematch search text %q", query), matches)
	return nil
}

func printMatches(title string, matches []finder.Match) {
	fmt.Printf("\n%s\n\n", title)
	fmt.Printf("Results (%d found):\n", len(matches))
	if len(matches) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, m := range matches {
		fmt.Fprintf(w, "  %d.\t[%.3f]\t%s\n", i+1, m.Score, m.Filename)
		if m.Product != nil {
			fmt.Fprintf(w, "  - %s (%s)", m.Product.Title, m.Product.Slug)
			if m.Product.Category != "" {
				fmt.Fprintf(w, " · %s", m.Product.Category)
			}
			if m.Product.Sizes != "" {
				fmt.Fprintf(w, " · %s", m.Product.Sizes)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "  - %s\n", m.URL)
	}
	_ = w.Flush()
}
