package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/catalog"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/finder"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/logging"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/search"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/watcher"
)

// app holds the long-lived components shared by every command. It is built
// once per invocation and passed explicitly.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      storage.ObjectStore
	extractors map[embeddings.Variant]*embeddings.Extractor
	index      *index.Store
	cache      *catalog.Cache
	catalog    *catalog.Catalog
	finder     *finder.Finder
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'tilematch init' first.", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return logging.New(level, cfg.Log.Format)
}

// newApp wires the object store, both extractors, the index store, the
// catalog with its persistent cache, and the finder.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("cannot open object store: %w", err)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		extractors: map[embeddings.Variant]*embeddings.Extractor{},
	}
	var embs []index.Embedder
	for _, v := range embeddings.Variants() {
		ec, err := embeddings.ConfigFor(cfg, v)
		if err != nil {
			return nil, err
		}
		prov, err := embeddings.NewFromConfig(ec)
		if err != nil {
			return nil, err
		}
		ex, err := embeddings.NewExtractor(v, prov, logger)
		if err != nil {
			return nil, err
		}
		a.extractors[v] = ex
		embs = append(embs, ex)
	}

	builder := index.NewBuilder(store, index.OptionsFromConfig(cfg), logger)
	a.index, err = index.NewStore(cfg.IndexDir, builder, logger, embs...)
	if err != nil {
		return nil, err
	}

	a.cache, err = catalog.OpenCache(ctx, filepath.Join(cfg.IndexDir, "catalog.db"))
	if err != nil {
		logger.Warn("catalog cache unavailable, continuing without it", zap.Error(err))
		a.cache = nil
	}
	a.catalog = catalog.New(ctx, store, catalog.Options{
		Key:   cfg.Catalog.Key,
		Sheet: cfg.Catalog.Sheet,
		Cache: a.cache,
	}, logger)

	if err := a.rebuildFinder(); err != nil {
		return nil, err
	}
	return a, nil
}

// rebuildFinder (re)creates the finder from the current a.cfg.
func (a *app) rebuildFinder() error {
	imageVariant, err := embeddings.ParseVariant(a.cfg.Models.ImageIndex)
	if err != nil {
		return err
	}
	a.finder = finder.New(a.index, a.extractors[imageVariant], a.extractors[embeddings.Joint], a.catalog, finder.Options{
		PublicURL:   a.cfg.Storage.PublicURL,
		ImageParams: search.ParamsFromConfig(a.cfg.Search.Image),
		TextParams:  search.ParamsFromConfig(a.cfg.Search.Text),
	}, a.logger)
	return nil
}

func (a *app) newWatcher() *watcher.Watcher {
	return watcher.New(a.store, a.index, a.catalog, watcher.Options{
		Prefix:   a.cfg.Storage.Prefix,
		Interval: a.cfg.Watch.Interval,
		Debounce: a.cfg.Watch.Debounce,
	}, a.logger)
}

// probe checks that the collection is reachable.
func (a *app) probe(ctx context.Context) error {
	p, ok := a.store.(storage.Prober)
	if !ok {
		return nil
	}
	if err := p.Probe(ctx); err != nil {
		return fmt.Errorf("object store unreachable: %w", err)
	}
	return nil
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cannot close catalog cache", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
