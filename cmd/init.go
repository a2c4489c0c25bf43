package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
)

var (
	flagInitBackend string
	flagInitBucket  string
	flagInitRoot    string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and the .env secrets template",
	Long: `Create ~/.tilematch/ with a default tilematch.yaml (left alone if it
already exists), an empty .env template for credentials, and the index
directory.

  tilematch init --bucket my-tiles             S3 collection
  tilematch init --backend fs --root ./tiles   local directory collection`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&flagInitBackend, "backend", "s3", "Storage backend: s3 or fs")
	initCmd.Flags().StringVar(&flagInitBucket, "bucket", "", "S3 bucket holding the tile images")
	initCmd.Flags().StringVar(&flagInitRoot, "root", "", "Collection directory for the fs backend")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve ~/.tilematch directory ─────────────────────────────────────
	appDir, err := config.AppDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", appDir, err)
	}
	printOK("", fmt.Sprintf("tilematch directory ready: %s", appDir))

	// ── 2. Write tilematch.yaml if missing ────────────────────────────────────
	cfgPath := flagConfig
	if cfgPath == "" {
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		cfg.Storage.Backend = flagInitBackend
		cfg.Storage.Bucket = flagInitBucket
		cfg.Storage.Root = flagInitRoot
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	// ── 3. Secrets template ───────────────────────────────────────────────────
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	printOK("", fmt.Sprintf("Secrets file ready: %s", envPath))

	// ── 4. Index directory ────────────────────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		printWarn("", fmt.Sprintf("config does not validate yet: %v", err))
		fmt.Println("\n  Edit the config (or the .env file), then run 'tilematch doctor'.")
		return nil
	}
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return fmt.Errorf("cannot create index dir %s: %w", cfg.IndexDir, err)
	}
	printOK("", fmt.Sprintf("Index directory ready: %s", cfg.IndexDir))

	fmt.Println("\n✓  tilematch init complete. Run 'tilematch doctor' to verify your environment.")
	return nil
}
