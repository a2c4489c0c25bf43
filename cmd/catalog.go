package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flagCatalogForce bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Load and query the products spreadsheet",
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the products table when the spreadsheet changed",
	Long: `Compare the spreadsheet's version token with the cached one and reload
the reverse mapping when they differ. --force always reloads.`,
	Args: cobra.NoArgs,
	RunE: runCatalogRefresh,
}

var catalogLookupCmd = &cobra.Command{
	Use:   "lookup <image-name>",
	Short: "Show the product an image file name belongs to",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogLookup,
}

func init() {
	catalogRefreshCmd.Flags().BoolVar(&flagCatalogForce, "force", false, "Reload even if the spreadsheet has not changed")
	catalogCmd.AddCommand(catalogRefreshCmd, catalogLookupCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogRefresh(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	changed, err := a.catalog.Refresh(ctx, flagCatalogForce)
	if err != nil {
		return fmt.Errorf("catalog refresh failed: %w", err)
	}
	if changed {
		printOK("", fmt.Sprintf("catalog reloaded: %d image name(s), version %s", a.catalog.Len(), a.catalog.Version()))
	} else {
		printSkip("", fmt.Sprintf("catalog unchanged: %d image name(s), version %s", a.catalog.Len(), a.catalog.Version()))
	}
	return nil
}

func runCatalogLookup(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, ok := a.catalog.Lookup(ctx, args[0])
	if !ok {
		printMiss("", fmt.Sprintf("no product for %s", args[0]))
		return nil
	}
	fmt.Printf("Image:    %s\n", p.Basename)
	fmt.Printf("Title:    %s\n", p.Title)
	fmt.Printf("Slug:     %s\n", p.Slug)
	fmt.Printf("Sizes:    %s\n", emptyAsNA(p.Sizes))
	fmt.Printf("Category: %s\n", emptyAsNA(p.Category))
	return nil
}
