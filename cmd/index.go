package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
)

var flagIndexVariant string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or inspect the persisted similarity indices",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the indices from the full collection",
	Long: `List the whole collection, then fetch, hash and embed every distinct
image and atomically replace the snapshot of each variant.

An empty result leaves the existing snapshot in place.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the manifest of each persisted snapshot",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
}

func init() {
	indexBuildCmd.Flags().StringVar(&flagIndexVariant, "variant", "", "Rebuild only this variant (visual or joint)")
	indexCmd.AddCommand(indexBuildCmd, indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexBuild(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var variants []embeddings.Variant
	if flagIndexVariant != "" {
		v, err := embeddings.ParseVariant(flagIndexVariant)
		if err != nil {
			return err
		}
		variants = append(variants, v)
	}
	if err := a.probe(ctx); err != nil {
		return err
	}

	printSection("tilematch index build")
	res, err := a.index.Rebuild(ctx, variants...)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	printInfo("", fmt.Sprintf("%d image(s) listed", len(res.Listed)))
	for _, v := range a.index.Variants() {
		if len(variants) > 0 && variants[0] != v {
			continue
		}
		snap, ok := res.Snapshots[v]
		if !ok {
			printSkip(string(v), "no vectors produced, existing snapshot kept")
			continue
		}
		m := snap.Manifest
		printOK(string(v), fmt.Sprintf("%d vector(s), dim %d, skipped %d duplicate / %d empty / %d failed",
			m.Count, m.Dim, m.SkippedDuplicate, m.SkippedZero, m.SkippedError))
	}
	return nil
}

func runIndexStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printIndexStatus(cfg)
}

func printIndexStatus(cfg *config.Config) error {
	printSection("Index status")
	fmt.Printf("  dir: %s\n\n", cfg.IndexDir)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  VARIANT\tCOUNT\tDIM\tMODEL\tCREATED\tBUILD")
	var missing int
	for _, v := range embeddings.Variants() {
		m, err := index.ReadManifest(index.SnapshotPath(cfg.IndexDir, v))
		switch {
		case errors.Is(err, index.ErrNotFound):
			fmt.Fprintf(w, "  %s\t-\t-\t-\t-\tnot built\n", v)
			missing++
		case err != nil:
			fmt.Fprintf(w, "  %s\t-\t-\t-\t-\tunreadable: %v\n", v, err)
			missing++
		default:
			fmt.Fprintf(w, "  %s\t%d\t%d\t%s\t%s\t%s\n", v, m.Count, m.Dim, m.ModelID, m.CreatedAt, m.BuildID)
		}
	}
	_ = w.Flush()
	if missing > 0 {
		fmt.Println()
		printWarn("", "run 'tilematch index build' to build missing snapshots")
	}
	return nil
}
