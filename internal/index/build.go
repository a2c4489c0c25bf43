package index

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/imaging"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
)

// Embedder is the part of an extractor the builder needs.
type Embedder interface {
	Variant() embeddings.Variant
	ModelID() string
	Handshake(ctx context.Context) (embeddings.Info, error)
	EmbedImage(ctx context.Context, img image.Image, cropToCenter bool) []float32
}

// BuildOptions controls index building.
type BuildOptions struct {
	Prefix       string
	FetchTimeout time.Duration
	FetchRate    float64
	FetchBurst   int
	Normalize    bool
}

// OptionsFromConfig maps the build section of cfg.
func OptionsFromConfig(cfg *config.Config) BuildOptions {
	return BuildOptions{
		Prefix:       cfg.Storage.Prefix,
		FetchTimeout: cfg.Build.FetchTimeout,
		FetchRate:    cfg.Build.FetchRate,
		FetchBurst:   cfg.Build.FetchBurst,
		Normalize:    cfg.Build.Normalize,
	}
}

// BuildResult is the outcome of one pass over the collection. Snapshots
// holds one entry per variant that produced at least one vector.
type BuildResult struct {
	Listed    []string
	Digest    string
	Snapshots map[embeddings.Variant]*Snapshot
}

// Empty reports whether no variant produced anything.
func (r *BuildResult) Empty() bool { return len(r.Snapshots) == 0 }

// Builder lists the collection and embeds every distinct image.
type Builder struct {
	store   storage.ObjectStore
	opts    BuildOptions
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewBuilder returns a builder reading from store.
func NewBuilder(store storage.ObjectStore, opts BuildOptions, logger *zap.Logger) *Builder {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.FetchBurst <= 0 {
		opts.FetchBurst = 1
	}
	limit := rate.Inf
	if opts.FetchRate > 0 {
		limit = rate.Limit(opts.FetchRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.FetchBurst),
		logger:  logger.Named("builder"),
	}
}

type variantAcc struct {
	emb     Embedder
	dim     int
	entries []Entry
	zero    int
	errs    int
}

// Build makes one pass over the image keys in listing order. Each image is
// fetched and decoded once; images whose average hash was already seen in
// this pass are skipped, the rest are embedded (uncropped) by every
// embedder. All-zero vectors are dropped. Item failures are logged and
// skipped; only listing, handshake and cancellation errors abort the build.
func (b *Builder) Build(ctx context.Context, embs ...Embedder) (*BuildResult, error) {
	if len(embs) == 0 {
		return nil, errors.New("no embedders to build with")
	}
	for _, e := range embs {
		if _, err := e.Handshake(ctx); err != nil {
			return nil, fmt.Errorf("variant %s: %w", e.Variant(), err)
		}
	}

	keys, err := storage.ListImages(ctx, b.store, b.opts.Prefix)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	b.logger.Info("index build started", zap.Int("images", len(keys)), zap.String("prefix", b.opts.Prefix))

	accs := make([]*variantAcc, len(embs))
	for i, e := range embs {
		accs[i] = &variantAcc{emb: e}
	}
	seen := make(map[imaging.Hash]struct{}, len(keys))
	var duplicates, failures int

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := b.fetch(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Warn("skipping image", zap.String("key", key), zap.Error(err))
			failures++
			continue
		}
		h, ok := imaging.AverageHash(img)
		if !ok {
			b.logger.Warn("skipping unhashable image", zap.String("key", key))
			failures++
			continue
		}
		if _, dup := seen[h]; dup {
			b.logger.Debug("skipping duplicate image", zap.String("key", key), zap.Stringer("hash", h))
			duplicates++
			continue
		}
		seen[h] = struct{}{}

		for _, acc := range accs {
			vec := acc.emb.EmbedImage(ctx, img, false)
			if Norm(vec) == 0 {
				acc.zero++
				continue
			}
			if acc.dim == 0 {
				acc.dim = len(vec)
			}
			if len(vec) != acc.dim {
				b.logger.Warn("embedding dim changed mid-run",
					zap.String("variant", string(acc.emb.Variant())), zap.String("key", key),
					zap.Int("got", len(vec)), zap.Int("want", acc.dim))
				acc.errs++
				continue
			}
			if b.opts.Normalize {
				vec = NormalizeL2(vec)
			}
			acc.entries = append(acc.entries, Entry{Key: key, Vector: vec})
		}

		if (i+1)%100 == 0 {
			b.logger.Info("index build progress", zap.Int("done", i+1), zap.Int("total", len(keys)))
		}
	}

	res := &BuildResult{
		Listed:    keys,
		Digest:    InventoryDigest(keys),
		Snapshots: make(map[embeddings.Variant]*Snapshot, len(accs)),
	}
	buildID := uuid.NewString()
	created := time.Now().UTC().Format(time.RFC3339)
	for _, acc := range accs {
		v := acc.emb.Variant()
		if len(acc.entries) == 0 {
			b.logger.Warn("no embeddable images, keeping previous snapshot",
				zap.String("variant", string(v)), zap.Int("listed", len(keys)))
			continue
		}
		snap, err := NewSnapshot(Manifest{
			BuildID:          buildID,
			CreatedAt:        created,
			Variant:          string(v),
			ModelID:          acc.emb.ModelID(),
			Dim:              acc.dim,
			Normalize:        b.opts.Normalize,
			InventoryDigest:  res.Digest,
			Listed:           len(keys),
			SkippedDuplicate: duplicates,
			SkippedZero:      acc.zero,
			SkippedError:     failures + acc.errs,
		}, acc.entries)
		if err != nil {
			return nil, err
		}
		res.Snapshots[v] = snap
		b.logger.Info("index built",
			zap.String("variant", string(v)),
			zap.Int("count", snap.Len()),
			zap.Int("dim", snap.Dim()),
			zap.Int("duplicates", duplicates),
			zap.Int("zero", acc.zero),
			zap.Int("errors", failures+acc.errs),
			zap.Duration("took", time.Since(started)))
	}
	return res, nil
}

func (b *Builder) fetch(ctx context.Context, key string) (image.Image, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	fctx, cancel := context.WithTimeout(ctx, b.opts.FetchTimeout)
	defer cancel()
	data, err := b.store.Get(fctx, key)
	if err != nil {
		return nil, err
	}
	return imaging.Decode(data)
}
