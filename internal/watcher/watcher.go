// Package watcher keeps the indices and the catalog in step with the
// remote collection by polling it.
package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
)

// Indexer is the part of index.Store the watcher uses.
type Indexer interface {
	Variants() []embeddings.Variant
	Stat(v embeddings.Variant) (index.Manifest, error)
	Rebuild(ctx context.Context, variants ...embeddings.Variant) (*index.BuildResult, error)
}

// Refresher is the part of catalog.Catalog the watcher uses.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (bool, error)
}

// Options configures a Watcher.
type Options struct {
	Prefix   string
	Interval time.Duration
	// Debounce coalesces change notifications from stores that push them.
	Debounce time.Duration
}

// Watcher compares the full image key set with the one last indexed and
// rebuilds every index when they differ. The catalog is refreshed on every
// cycle independently. Failures are logged and retried on the next cycle.
type Watcher struct {
	store   storage.ObjectStore
	indexer Indexer
	catalog Refresher
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	baseline storage.KeySet
	started  bool
}

// New returns a watcher. catalog may be nil.
func New(store storage.ObjectStore, indexer Indexer, catalog Refresher, opts Options, logger *zap.Logger) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		store:   store,
		indexer: indexer,
		catalog: catalog,
		opts:    opts,
		logger:  logger.Named("watcher"),
	}
}

// Baseline returns a copy of the key set of the last successful cycle.
func (w *Watcher) Baseline() storage.KeySet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(storage.KeySet, len(w.baseline))
	for k := range w.baseline {
		out[k] = struct{}{}
	}
	return out
}

// Run runs a cycle immediately, then every Interval, until ctx is done.
// Stores implementing storage.Notifier also trigger early cycles.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var changes <-chan struct{}
	if n, ok := w.store.(storage.Notifier); ok {
		ch, err := n.Changes(ctx)
		if err != nil {
			w.logger.Warn("change notifications unavailable, polling only", zap.Error(err))
		} else {
			changes = debounce(ctx, ch, w.opts.Debounce)
		}
	}

	w.logger.Info("watcher started", zap.Duration("interval", w.opts.Interval))
	w.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case <-ticker.C:
			w.Cycle(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			w.logger.Debug("change notification")
			w.Cycle(ctx)
		}
	}
}

// Cycle performs one check. It reports whether a rebuild ran and succeeded.
func (w *Watcher) Cycle(ctx context.Context) bool {
	rebuilt := w.checkInventory(ctx)
	if w.catalog != nil {
		if _, err := w.catalog.Refresh(ctx, false); err != nil {
			w.logger.Warn("catalog refresh failed", zap.Error(err))
		}
	}
	return rebuilt
}

func (w *Watcher) checkInventory(ctx context.Context) bool {
	keys, err := storage.ListImages(ctx, w.store, w.opts.Prefix)
	if err != nil {
		w.logger.Warn("cannot list collection", zap.Error(err))
		return false
	}
	current := storage.NewKeySet(keys)

	w.mu.Lock()
	first := !w.started
	w.started = true
	same := w.baseline != nil && w.baseline.Equal(current)
	w.mu.Unlock()

	if same {
		w.logger.Debug("inventory unchanged", zap.Int("images", len(current)))
		return false
	}
	if first && w.snapshotsMatch(keys) {
		w.logger.Info("persisted snapshots match inventory, adopting", zap.Int("images", len(current)))
		w.adopt(current)
		return false
	}

	w.logger.Info("inventory changed, rebuilding indices", zap.Int("images", len(current)))
	res, err := w.indexer.Rebuild(ctx)
	if err != nil {
		w.logger.Warn("rebuild failed, will retry next cycle", zap.Error(err))
		return false
	}
	// The builder listed again; adopt what was actually indexed.
	w.adopt(storage.NewKeySet(res.Listed))
	return true
}

func (w *Watcher) snapshotsMatch(keys []string) bool {
	digest := index.InventoryDigest(keys)
	for _, v := range w.indexer.Variants() {
		m, err := w.indexer.Stat(v)
		if err != nil || m.InventoryDigest != digest {
			return false
		}
	}
	return true
}

func (w *Watcher) adopt(s storage.KeySet) {
	w.mu.Lock()
	w.baseline = s
	w.mu.Unlock()
}

// debounce forwards one value per quiet period of d after a burst on in.
func debounce(ctx context.Context, in <-chan struct{}, d time.Duration) <-chan struct{} {
	if d <= 0 {
		return in
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case _, ok := <-in:
				if !ok {
					return
				}
				if timer == nil {
					timer = time.NewTimer(d)
				} else {
					timer.Reset(d)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
