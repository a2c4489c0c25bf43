// Package catalog joins image keys to product metadata taken from a
// spreadsheet stored next to the tiles.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
)

// Catalog is the reverse mapping from image basename to product. The table
// is replaced as a whole; a failed reload keeps the last good one.
type Catalog struct {
	store  storage.ObjectStore
	key    string
	sheet  string
	cache  *Cache
	logger *zap.Logger

	loadMu sync.Mutex

	mu      sync.RWMutex
	loaded  bool
	version string
	records map[string]Product
}

// Options configures a Catalog.
type Options struct {
	Key   string
	Sheet string
	// Cache is optional.
	Cache *Cache
}

// New returns a catalog reading opts.Key from store. With a cache the
// persisted table is installed right away.
func New(ctx context.Context, store storage.ObjectStore, opts Options, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{
		store:   store,
		key:     opts.Key,
		sheet:   opts.Sheet,
		cache:   opts.Cache,
		logger:  logger.Named("catalog"),
		records: map[string]Product{},
	}
	if c.cache != nil {
		version, records, ok, err := c.cache.Load(ctx)
		switch {
		case err != nil:
			c.logger.Warn("cannot read persisted catalog", zap.Error(err))
		case ok:
			c.install(version, records)
			c.logger.Info("catalog restored from cache", zap.Int("images", len(records)), zap.String("version", version))
		}
	}
	return c
}

// Lookup returns the product of the image name (a key, a path or a bare
// file name), matched case-insensitively on the basename. The table is
// loaded on first use.
func (c *Catalog) Lookup(ctx context.Context, name string) (Product, bool) {
	c.ensureLoaded(ctx)

	key := NormalizeName(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.records[key]
	return p, ok
}

// LookupAll resolves several names against one view of the table, loading
// it at most once. Names without a product are absent from the result.
func (c *Catalog) LookupAll(ctx context.Context, names ...string) map[string]Product {
	c.ensureLoaded(ctx)

	out := make(map[string]Product, len(names))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range names {
		if p, ok := c.records[NormalizeName(name)]; ok {
			out[name] = p
		}
	}
	return out
}

func (c *Catalog) ensureLoaded(ctx context.Context) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return
	}
	if _, err := c.Refresh(ctx, false); err != nil {
		c.logger.Warn("catalog unavailable", zap.Error(err))
	}
}

// Refresh reloads the spreadsheet when force is set, when nothing is loaded
// yet or when the upstream version token changed. It reports whether a new
// table was installed.
func (c *Catalog) Refresh(ctx context.Context, force bool) (bool, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	info, err := c.store.Head(ctx, c.key)
	if err != nil {
		return false, fmt.Errorf("cannot stat catalog %s: %w", c.key, err)
	}
	version := info.Version()

	c.mu.RLock()
	current, loaded := c.version, c.loaded
	c.mu.RUnlock()
	if !force && loaded && current == version {
		return false, nil
	}

	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		return false, fmt.Errorf("cannot fetch catalog %s: %w", c.key, err)
	}
	rows, err := ParseTable(c.key, data, c.sheet)
	if err != nil {
		return false, err
	}
	records, st := BuildMapping(rows)
	if st.NoImagesColumn {
		c.logger.Warn("catalog has no images column, product mapping will be empty", zap.String("key", c.key))
	}

	c.install(version, records)
	c.logger.Info("catalog loaded",
		zap.String("version", version),
		zap.Int("rows", st.Rows),
		zap.Int("skipped", st.Skipped),
		zap.Int("images", len(records)))

	if c.cache != nil {
		if err := c.cache.Save(ctx, version, records); err != nil {
			c.logger.Warn("cannot persist catalog", zap.Error(err))
		}
	}
	return true, nil
}

func (c *Catalog) install(version string, records map[string]Product) {
	c.mu.Lock()
	c.records = records
	c.version = version
	c.loaded = true
	c.mu.Unlock()
}

// Len returns the number of image names in the current table.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Version returns the version token of the current table ("" before the first load).
func (c *Catalog) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
