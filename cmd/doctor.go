package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
)

var flagDoctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that the config, the object store, both model backends, the
persisted indices and the products spreadsheet are usable.
Run this command when something seems wrong, or before filing a bug report.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().DurationVar(&flagDoctorTimeout, "timeout", 30*time.Second, "Timeout for each network check")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}
	withTimeout := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), flagDoctorTimeout)
	}

	printSection("tilematch doctor")
	fmt.Println()

	// ── Check 1: config ───────────────────────────────────────────────────────
	fmt.Println("[ tilematch.yaml ]")
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath, _ = config.ConfigPath()
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		printWarn("", fmt.Sprintf("%s not found, using defaults (run 'tilematch init')", cfgPath))
	}
	ctx, cancel := withTimeout()
	a, loadErr := newApp(ctx)
	cancel()
	if loadErr != nil {
		failD("%v", loadErr)
		fmt.Println()
		fmt.Println("===================")
		fmt.Fprintln(os.Stderr, "✗  Cannot continue without a valid configuration.")
		return fmt.Errorf("doctor found issues")
	}
	defer a.Close()
	printOK("", fmt.Sprintf("valid, storage backend %s", a.cfg.Storage.Backend))
	fmt.Println()

	// ── Check 2: object store ─────────────────────────────────────────────────
	fmt.Println("[ Object store ]")
	ctx, cancel = withTimeout()
	if err := a.probe(ctx); err != nil {
		failD("%v", err)
	} else {
		printOK("", "reachable")
		keys, err := storage.ListImages(ctx, a.store, a.cfg.Storage.Prefix)
		if err != nil {
			failD("cannot list %q: %v", a.cfg.Storage.Prefix, err)
		} else if len(keys) == 0 {
			printWarn("", fmt.Sprintf("no images under %q", a.cfg.Storage.Prefix))
		} else {
			printOK("", fmt.Sprintf("%d image(s) under %q", len(keys), a.cfg.Storage.Prefix))
		}
	}
	cancel()
	fmt.Println()

	// ── Check 3: model backends ───────────────────────────────────────────────
	fmt.Println("[ Model backends ]")
	for _, v := range embeddings.Variants() {
		ex := a.extractors[v]
		ctx, cancel = withTimeout()
		info, err := ex.Handshake(ctx)
		cancel()
		if err != nil {
			failD("[%s] %v", v, err)
			continue
		}
		printOK(string(v), fmt.Sprintf("%s, dim %d, modalities %v", info.Model, info.Dim, info.Modalities))
	}
	fmt.Println()

	// ── Check 4: persisted indices ────────────────────────────────────────────
	fmt.Println("[ Indices ]")
	for _, v := range a.index.Variants() {
		m, err := a.index.Stat(v)
		switch {
		case errors.Is(err, index.ErrNotFound):
			printWarn(string(v), "not built yet; the first query will build it (or run 'tilematch index build')")
		case err != nil:
			failD("[%s] %v", v, err)
		case m.ModelID != a.extractors[v].ModelID():
			printWarn(string(v), fmt.Sprintf("built with %s, backend now reports %s; rebuild recommended", m.ModelID, a.extractors[v].ModelID()))
		default:
			printOK(string(v), fmt.Sprintf("%d vector(s), built %s", m.Count, m.CreatedAt))
		}
	}
	fmt.Println()

	// ── Check 5: products spreadsheet ─────────────────────────────────────────
	fmt.Println("[ Catalog ]")
	ctx, cancel = withTimeout()
	if _, err := a.catalog.Refresh(ctx, true); err != nil {
		failD("%v", err)
	} else if a.catalog.Len() == 0 {
		printWarn("", fmt.Sprintf("%s loaded but maps no image names (is there an 'images' column?)", a.cfg.Catalog.Key))
	} else {
		printOK("", fmt.Sprintf("%d image name(s) mapped from %s", a.catalog.Len(), a.cfg.Catalog.Key))
	}
	cancel()
	fmt.Println()

	// ── Summary ──────────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. tilematch is ready to serve.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}
