package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
)

// Store owns the persisted snapshots of every variant under one directory.
//
// Builds are serialised in-process by a one-slot semaphore and across
// processes by <dir>/build.lock. Reads go through a cache keyed on the
// snapshot file's size and modification time, so a newly published file is
// always picked up.
type Store struct {
	dir       string
	builder   *Builder
	embedders map[embeddings.Variant]Embedder
	order     []embeddings.Variant
	logger    *zap.Logger

	sem chan struct{}

	cacheMu sync.Mutex
	cache   map[embeddings.Variant]cachedSnapshot
}

type cachedSnapshot struct {
	size    int64
	modTime time.Time
	snap    *Snapshot
}

// NewStore returns a store for dir that builds with builder and embs.
func NewStore(dir string, builder *Builder, logger *zap.Logger, embs ...Embedder) (*Store, error) {
	if dir == "" {
		return nil, errors.New("index dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		dir:       dir,
		builder:   builder,
		embedders: make(map[embeddings.Variant]Embedder, len(embs)),
		logger:    logger.Named("index"),
		sem:       make(chan struct{}, 1),
		cache:     map[embeddings.Variant]cachedSnapshot{},
	}
	for _, e := range embs {
		v := e.Variant()
		if _, dup := s.embedders[v]; dup {
			return nil, fmt.Errorf("duplicate embedder for variant %s", v)
		}
		s.embedders[v] = e
		s.order = append(s.order, v)
	}
	return s, nil
}

// Dir returns the index directory.
func (s *Store) Dir() string { return s.dir }

// Variants returns the variants this store builds, in build order.
func (s *Store) Variants() []embeddings.Variant {
	return append([]embeddings.Variant(nil), s.order...)
}

// Path returns the snapshot file of v.
func (s *Store) Path(v embeddings.Variant) string {
	return SnapshotPath(s.dir, v)
}

// SnapshotPath is where the snapshot of v lives under dir.
func SnapshotPath(dir string, v embeddings.Variant) string {
	return filepath.Join(dir, string(v)+".snapshot")
}

// Stat returns the manifest of v's snapshot without loading vectors.
func (s *Store) Stat(v embeddings.Variant) (Manifest, error) {
	return ReadManifest(s.Path(v))
}

// Load returns the current snapshot of v. When none has been published yet
// it builds synchronously first; the cold start therefore costs a full
// build at request latency. If the collection holds no embeddable image the
// result is an empty snapshot.
func (s *Store) Load(ctx context.Context, v embeddings.Variant) (*Snapshot, error) {
	snap, err := s.read(v)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	s.logger.Info("no snapshot on disk, building", zap.String("variant", string(v)))
	if _, err := s.rebuild(ctx, true, v); err != nil {
		return nil, err
	}
	snap, err = s.read(v)
	if errors.Is(err, ErrNotFound) {
		return &Snapshot{Manifest: Manifest{Variant: string(v)}}, nil
	}
	return snap, err
}

// Rebuild rebuilds the given variants (all when none is given) in one pass
// and publishes every non-empty result. Variants that came out empty keep
// their previous snapshot.
func (s *Store) Rebuild(ctx context.Context, variants ...embeddings.Variant) (*BuildResult, error) {
	return s.rebuild(ctx, false, variants...)
}

func (s *Store) rebuild(ctx context.Context, onlyMissing bool, variants ...embeddings.Variant) (*BuildResult, error) {
	if s.builder == nil {
		return nil, errors.New("index store has no builder")
	}
	if len(variants) == 0 {
		variants = s.order
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create index dir %s: %w", s.dir, err)
	}
	unlock, err := acquireBuildLock(ctx, filepath.Join(s.dir, "build.lock"))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var embs []Embedder
	for _, v := range variants {
		e, ok := s.embedders[v]
		if !ok {
			return nil, fmt.Errorf("no embedder for variant %s", v)
		}
		// Another build may have published while this one waited for the lock.
		if onlyMissing {
			if _, err := os.Stat(s.Path(v)); err == nil {
				continue
			}
		}
		embs = append(embs, e)
	}
	if len(embs) == 0 {
		return &BuildResult{Snapshots: map[embeddings.Variant]*Snapshot{}}, nil
	}

	res, err := s.builder.Build(ctx, embs...)
	if err != nil {
		return nil, fmt.Errorf("index build failed: %w", err)
	}
	if res.Empty() {
		s.logger.Warn("build produced no entries, existing snapshots untouched", zap.Int("listed", len(res.Listed)))
		return res, nil
	}
	for _, e := range embs {
		snap, ok := res.Snapshots[e.Variant()]
		if !ok {
			continue
		}
		if err := s.Publish(snap); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Publish atomically replaces the snapshot of snap's variant.
func (s *Store) Publish(snap *Snapshot) error {
	v := embeddings.Variant(snap.Manifest.Variant)
	if _, ok := s.embedders[v]; !ok {
		return fmt.Errorf("no embedder for variant %q", snap.Manifest.Variant)
	}
	p := s.Path(v)
	if err := Write(p, snap); err != nil {
		return err
	}
	if st, err := os.Stat(p); err == nil {
		s.cacheMu.Lock()
		s.cache[v] = cachedSnapshot{size: st.Size(), modTime: st.ModTime(), snap: snap}
		s.cacheMu.Unlock()
	}
	s.logger.Info("snapshot published",
		zap.String("variant", string(v)),
		zap.String("build_id", snap.Manifest.BuildID),
		zap.Int("count", snap.Len()))
	return nil
}

func (s *Store) read(v embeddings.Variant) (*Snapshot, error) {
	p := s.Path(v)
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("cannot stat snapshot %s: %w", p, err)
	}

	s.cacheMu.Lock()
	c, ok := s.cache[v]
	s.cacheMu.Unlock()
	if ok && c.size == st.Size() && c.modTime.Equal(st.ModTime()) {
		return c.snap, nil
	}

	snap, err := Load(p)
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	s.cache[v] = cachedSnapshot{size: st.Size(), modTime: st.ModTime(), snap: snap}
	s.cacheMu.Unlock()
	return snap, nil
}
