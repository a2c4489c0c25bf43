package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultPathMissingUsesDefaults(t *testing.T) {
	withHome(t)
	t.Setenv("TILEMATCH_BUCKET", "tiles-bucket")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tiles-bucket", cfg.Storage.Bucket)
	assert.Equal(t, 300*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 20, cfg.Search.Image.TopK)
	assert.InDelta(t, 0.7, cfg.Search.Image.MinThreshold, 1e-12)
	assert.InDelta(t, 0.2, cfg.Search.Text.MinThreshold, 1e-12)
	assert.True(t, cfg.Search.Image.CropToCenter)
	assert.False(t, cfg.Search.Text.CropToCenter)
	assert.NotContains(t, cfg.IndexDir, "~")
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	withHome(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	withHome(t)
	root := t.TempDir()
	p := filepath.Join(t.TempDir(), "tilematch.yaml")
	body := "" +
		"index_dir: " + filepath.Join(root, "idx") + "\n" +
		"storage:\n" +
		"  backend: fs\n" +
		"  root: " + root + "\n" +
		"watch:\n" +
		"  interval: 45s\n" +
		"search:\n" +
		"  image:\n" +
		"    top_k: 5\n" +
		"    min_threshold: 0.5\n" +
		"    dedup_threshold: 0.02\n" +
		"    exact_match_threshold: 0.9999\n" +
		"    crop_to_center: true\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Equal(t, 45*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 5, cfg.Search.Image.TopK)
	assert.InDelta(t, 0.02, cfg.Search.Image.DedupThreshold, 1e-12)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, 20, cfg.Search.Text.TopK)
	assert.Equal(t, int64(5*1024*1024), cfg.Server.MaxUploadBytes)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	base := func() *Config {
		c := DefaultConfig()
		c.Storage.Bucket = "b"
		return c
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Search.Image.DedupThreshold = 1.5
	assert.Error(t, c.Validate())

	c = base()
	c.Search.Text.TopK = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Backend = "gcs"
	assert.Error(t, c.Validate())

	c = base()
	c.Models.ImageIndex = "other"
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Bucket = ""
	assert.Error(t, c.Validate())
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	withHome(t)
	p := filepath.Join(t.TempDir(), "nested", "tilematch.yaml")
	cfg := DefaultConfig()
	cfg.Storage.Bucket = "saved"
	cfg.Watch.Interval = 90 * time.Second
	require.NoError(t, Save(p, cfg))

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "saved", got.Storage.Bucket)
	assert.Equal(t, 90*time.Second, got.Watch.Interval)
}
