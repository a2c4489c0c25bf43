package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"watch"}, {"index", "build"}, {"index", "status"},
		{"search", "image"}, {"search", "text"}, {"catalog", "refresh"},
		{"catalog", "lookup"}, {"doctor"}, {"init"}, {"version"},
	} {
		c, _, err := rootCmd.Find(path)
		if err != nil || c == rootCmd {
			t.Fatalf("command %v not registered: %v", path, err)
		}
	}
}

func TestApplySearchFlags(t *testing.T) {
	c := &cobra.Command{Use: "x"}
	var k int
	var minScore float64
	var noCrop bool
	c.Flags().IntVar(&k, "k", 0, "")
	c.Flags().Float64Var(&minScore, "min-score", 0, "")
	c.Flags().BoolVar(&noCrop, "no-crop", false, "")

	p := config.SearchParams{TopK: 20, MinThreshold: 0.7, CropToCenter: true}
	applySearchFlags(c, &p)
	if p.TopK != 20 || p.MinThreshold != 0.7 || !p.CropToCenter {
		t.Fatalf("unset flags must not change params: %+v", p)
	}

	if err := c.Flags().Set("k", "5"); err != nil {
		t.Fatal(err)
	}
	if err := c.Flags().Set("no-crop", "true"); err != nil {
		t.Fatal(err)
	}
	old := flagSearchK
	oldCrop := flagSearchNoCrop
	defer func() { flagSearchK, flagSearchNoCrop = old, oldCrop }()
	flagSearchK, flagSearchNoCrop = 5, true

	applySearchFlags(c, &p)
	if p.TopK != 5 || p.CropToCenter || p.MinThreshold != 0.7 {
		t.Fatalf("unexpected params after flags: %+v", p)
	}
}

func TestRunInit_WritesConfigAndTemplate(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	root := filepath.Join(home, "tiles")

	oldCfg, oldBackend, oldRoot := flagConfig, flagInitBackend, flagInitRoot
	defer func() { flagConfig, flagInitBackend, flagInitRoot = oldCfg, oldBackend, oldRoot }()
	flagConfig, flagInitBackend, flagInitRoot = "", "fs", root

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	cfgPath := filepath.Join(home, ".tilematch", "tilematch.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Storage.Backend != "fs" || cfg.Storage.Root != root {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if _, err := os.Stat(filepath.Join(home, ".tilematch", ".env")); err != nil {
		t.Fatalf(".env template missing: %v", err)
	}
	if fi, err := os.Stat(cfg.IndexDir); err != nil || !fi.IsDir() {
		t.Fatalf("index dir not created: %v", err)
	}

	// A second run keeps the existing config.
	flagInitRoot = filepath.Join(home, "elsewhere")
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	cfg, err = config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Root != root {
		t.Fatalf("existing config was overwritten: %s", cfg.Storage.Root)
	}
}
