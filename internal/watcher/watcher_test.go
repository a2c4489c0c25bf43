package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
)

type fakeIndexer struct {
	store    storage.ObjectStore
	rebuilds atomic.Int32
	fail     atomic.Bool

	mu        sync.Mutex
	manifests map[embeddings.Variant]index.Manifest
}

func (f *fakeIndexer) Variants() []embeddings.Variant { return embeddings.Variants() }

func (f *fakeIndexer) Stat(v embeddings.Variant) (index.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.manifests[v]
	if !ok {
		return index.Manifest{}, index.ErrNotFound
	}
	return m, nil
}

func (f *fakeIndexer) Rebuild(ctx context.Context, _ ...embeddings.Variant) (*index.BuildResult, error) {
	f.rebuilds.Add(1)
	if f.fail.Load() {
		return nil, errors.New("model backend down")
	}
	keys, err := storage.ListImages(ctx, f.store, "tiles/")
	if err != nil {
		return nil, err
	}
	return &index.BuildResult{Listed: keys, Digest: index.InventoryDigest(keys)}, nil
}

type fakeCatalog struct {
	refreshes atomic.Int32
}

func (f *fakeCatalog) Refresh(context.Context, bool) (bool, error) {
	f.refreshes.Add(1)
	return false, errors.New("spreadsheet missing")
}

func touch(t *testing.T, root, key string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(key), 0o644))
}

func setup(t *testing.T, opts Options) (*Watcher, *fakeIndexer, *fakeCatalog, string) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	require.NoError(t, err)
	idx := &fakeIndexer{store: fs, manifests: map[embeddings.Variant]index.Manifest{}}
	cat := &fakeCatalog{}
	opts.Prefix = "tiles/"
	return New(fs, idx, cat, opts, zaptest.NewLogger(t)), idx, cat, root
}

func TestCycle_UnchangedInventoryDoesNotRebuild(t *testing.T) {
	w, idx, cat, root := setup(t, Options{})
	touch(t, root, "tiles/a.png")
	touch(t, root, "tiles/b.jpg")
	ctx := context.Background()

	assert.True(t, w.Cycle(ctx))
	baseline := w.Baseline()
	assert.Len(t, baseline, 2)

	assert.False(t, w.Cycle(ctx))
	assert.False(t, w.Cycle(ctx))
	assert.Equal(t, int32(1), idx.rebuilds.Load())
	assert.True(t, baseline.Equal(w.Baseline()))
	assert.Equal(t, int32(3), cat.refreshes.Load())
}

func TestCycle_ChangedInventoryRebuilds(t *testing.T) {
	w, idx, _, root := setup(t, Options{})
	touch(t, root, "tiles/a.png")
	ctx := context.Background()
	w.Cycle(ctx)

	touch(t, root, "tiles/notes.txt")
	assert.False(t, w.Cycle(ctx), "non-image keys are not part of the inventory")

	touch(t, root, "tiles/c.png")
	assert.True(t, w.Cycle(ctx))

	require.NoError(t, os.Remove(filepath.Join(root, "tiles", "a.png")))
	assert.True(t, w.Cycle(ctx))
	assert.Equal(t, int32(3), idx.rebuilds.Load())
	assert.True(t, storage.NewKeySet([]string{"tiles/c.png"}).Equal(w.Baseline()))
}

func TestCycle_FailedRebuildIsRetried(t *testing.T) {
	w, idx, _, root := setup(t, Options{})
	touch(t, root, "tiles/a.png")
	ctx := context.Background()

	idx.fail.Store(true)
	assert.False(t, w.Cycle(ctx))
	assert.Empty(t, w.Baseline())

	idx.fail.Store(false)
	assert.True(t, w.Cycle(ctx))
	assert.Equal(t, int32(2), idx.rebuilds.Load())
}

func TestCycle_ListingErrorKeepsGoing(t *testing.T) {
	w, idx, cat, root := setup(t, Options{})
	require.NoError(t, os.RemoveAll(root))

	assert.False(t, w.Cycle(context.Background()))
	assert.Equal(t, int32(0), idx.rebuilds.Load())
	assert.Equal(t, int32(1), cat.refreshes.Load())
}

func TestCycle_AdoptsMatchingSnapshotsOnStartup(t *testing.T) {
	w, idx, _, root := setup(t, Options{})
	touch(t, root, "tiles/a.png")
	touch(t, root, "tiles/b.png")
	digest := index.InventoryDigest([]string{"tiles/b.png", "tiles/a.png"})
	for _, v := range embeddings.Variants() {
		idx.manifests[v] = index.Manifest{Variant: string(v), InventoryDigest: digest}
	}

	assert.False(t, w.Cycle(context.Background()))
	assert.Equal(t, int32(0), idx.rebuilds.Load())
	assert.Len(t, w.Baseline(), 2)
}

func TestCycle_StaleSnapshotIsRebuiltOnStartup(t *testing.T) {
	w, idx, _, root := setup(t, Options{})
	touch(t, root, "tiles/a.png")
	idx.manifests[embeddings.Visual] = index.Manifest{InventoryDigest: index.InventoryDigest([]string{"tiles/a.png"})}
	// The joint snapshot is missing.

	assert.True(t, w.Cycle(context.Background()))
	assert.Equal(t, int32(1), idx.rebuilds.Load())
}

func TestRun_FirstCycleImmediateAndStops(t *testing.T) {
	w, idx, _, root := setup(t, Options{Interval: time.Hour})
	touch(t, root, "tiles/a.png")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return idx.rebuilds.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRun_ChangeNotificationTriggersCycle(t *testing.T) {
	w, idx, _, root := setup(t, Options{Interval: time.Hour, Debounce: 20 * time.Millisecond})
	touch(t, root, "tiles/a.png")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(w.Baseline()) == 1 }, 5*time.Second, 10*time.Millisecond)
	touch(t, root, "tiles/b.png")
	require.Eventually(t, func() bool { return len(w.Baseline()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), idx.rebuilds.Load())
}
