package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and configures the remote tile collection.
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
	Root      string `yaml:"root,omitempty"`
	PublicURL string `yaml:"public_url,omitempty"`
}

// CatalogConfig points at the products spreadsheet inside the object store.
type CatalogConfig struct {
	Key   string `yaml:"key"`
	Sheet string `yaml:"sheet,omitempty"`
}

// ModelConfig describes one embedding inference backend.
type ModelConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ModelsConfig holds both extractor variants. ImageIndex picks which index
// answers image queries ("visual" or "joint").
type ModelsConfig struct {
	Visual     ModelConfig `yaml:"visual"`
	Joint      ModelConfig `yaml:"joint"`
	ImageIndex string      `yaml:"image_index"`
}

// BuildConfig bounds the per-item network work of an index build.
type BuildConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	FetchRate    float64       `yaml:"fetch_rate"`
	FetchBurst   int           `yaml:"fetch_burst"`
	Normalize    bool          `yaml:"normalize,omitempty"`
}

// SearchParams are the similarity search tunables for one query kind.
type SearchParams struct {
	TopK                int     `yaml:"top_k"`
	MinThreshold        float64 `yaml:"min_threshold"`
	DedupThreshold      float64 `yaml:"dedup_threshold"`
	ExactMatchThreshold float64 `yaml:"exact_match_threshold"`
	CropToCenter        bool    `yaml:"crop_to_center"`
}

// SearchConfig holds the image and text search tunables.
type SearchConfig struct {
	Image SearchParams `yaml:"image"`
	Text  SearchParams `yaml:"text"`
}

// WatchConfig controls the inventory watcher.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
	Disabled bool          `yaml:"disabled,omitempty"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the in-memory representation of ~/.tilematch/tilematch.yaml.
type Config struct {
	IndexDir string        `yaml:"index_dir"`
	Storage  StorageConfig `yaml:"storage"`
	Catalog  CatalogConfig `yaml:"catalog"`
	Models   ModelsConfig  `yaml:"models"`
	Build    BuildConfig   `yaml:"build"`
	Search   SearchConfig  `yaml:"search"`
	Watch    WatchConfig   `yaml:"watch"`
	Server   ServerConfig  `yaml:"server"`
	Log      LogConfig     `yaml:"log"`
}

// AppDir returns the absolute path to ~/.tilematch/.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".tilematch"), nil
}

// ConfigPath returns the absolute path to ~/.tilematch/tilematch.yaml.
func ConfigPath() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tilematch.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the configuration used when no file exists.
//
// The search thresholds mirror what the catalog has been served with so far;
// none of them has been validated as optimal.
func DefaultConfig() *Config {
	return &Config{
		IndexDir: filepath.Join("~", ".tilematch", "index"),
		Storage: StorageConfig{
			Backend: "s3",
			Region:  "us-east-1",
			Prefix:  "tiles/",
		},
		Catalog: CatalogConfig{
			Key:   "products/products.xlsx",
			Sheet: "Products",
		},
		Models: ModelsConfig{
			Visual:     ModelConfig{URL: "http://localhost:8500", Model: "resnet18", Timeout: 30 * time.Second},
			Joint:      ModelConfig{URL: "http://localhost:8501", Model: "ViT-B-32/laion2b_s34b_b79k", Timeout: 30 * time.Second},
			ImageIndex: "visual",
		},
		Build: BuildConfig{
			FetchTimeout: 20 * time.Second,
			FetchRate:    20,
			FetchBurst:   4,
		},
		Search: SearchConfig{
			Image: SearchParams{
				TopK:                20,
				MinThreshold:        0.7,
				DedupThreshold:      0.01,
				ExactMatchThreshold: 0.99999,
				CropToCenter:        true,
			},
			Text: SearchParams{
				TopK:                20,
				MinThreshold:        0.2,
				DedupThreshold:      0.01,
				ExactMatchThreshold: 0.99999,
			},
		},
		Watch: WatchConfig{
			Interval: 300 * time.Second,
			Debounce: 2 * time.Second,
		},
		Server: ServerConfig{
			Addr:           ":5000",
			MaxUploadBytes: 5 * 1024 * 1024,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and parses the config file at path, layered over DefaultConfig.
//
// An empty path means ~/.tilematch/tilematch.yaml; that default file may be
// absent, an explicitly requested one may not. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.IndexDir, err = ExpandPath(cfg.IndexDir)
	if err != nil {
		return nil, err
	}
	cfg.Storage.Root, err = ExpandPath(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save marshals cfg and writes it to path (or ~/.tilematch/tilematch.yaml).
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 backend (or set TILEMATCH_BUCKET)")
		}
	case "fs":
		if c.Storage.Root == "" {
			return errors.New("storage.root is required for the fs backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	switch c.Models.ImageIndex {
	case "visual", "joint":
	default:
		return fmt.Errorf("models.image_index must be visual or joint, got %q", c.Models.ImageIndex)
	}
	if c.IndexDir == "" {
		return errors.New("index_dir is required")
	}
	for name, p := range map[string]SearchParams{"image": c.Search.Image, "text": c.Search.Text} {
		if p.TopK <= 0 {
			return fmt.Errorf("search.%s.top_k must be positive", name)
		}
		for field, v := range map[string]float64{
			"min_threshold":         p.MinThreshold,
			"dedup_threshold":       p.DedupThreshold,
			"exact_match_threshold": p.ExactMatchThreshold,
		} {
			if v < 0 || v > 1 {
				return fmt.Errorf("search.%s.%s must be within [0,1], got %v", name, field, v)
			}
		}
	}
	if c.Watch.Interval <= 0 {
		return errors.New("watch.interval must be positive")
	}
	return nil
}

// applyEnv overrides deployment values from the environment or ~/.tilematch/.env.
func (c *Config) applyEnv() error {
	overrides := []struct {
		key string
		dst *string
	}{
		{"TILEMATCH_BUCKET", &c.Storage.Bucket},
		{"TILEMATCH_AWS_REGION", &c.Storage.Region},
		{"TILEMATCH_S3_PREFIX", &c.Storage.Prefix},
		{"TILEMATCH_PUBLIC_URL", &c.Storage.PublicURL},
		{"TILEMATCH_PRODUCTS_KEY", &c.Catalog.Key},
		{"TILEMATCH_PRODUCTS_SHEET", &c.Catalog.Sheet},
		{"TILEMATCH_VISUAL_MODEL_URL", &c.Models.Visual.URL},
		{"TILEMATCH_JOINT_MODEL_URL", &c.Models.Joint.URL},
	}
	keys := make([]string, len(overrides))
	for i, o := range overrides {
		keys[i] = o.key
	}
	vals, err := GetConfigValues(keys...)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		if v := vals[o.key]; v != "" {
			*o.dst = v
		}
	}
	return nil
}
