// Package finder answers image and text queries: embed, rank against the
// current snapshot, then attach product metadata.
package finder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/catalog"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/imaging"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/search"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/storage"
)

var (
	// ErrEmptyQuery indicates a blank text query.
	ErrEmptyQuery = errors.New("description is required")
)

// Snapshots loads the current snapshot of a variant.
type Snapshots interface {
	Load(ctx context.Context, v embeddings.Variant) (*index.Snapshot, error)
}

// ImageEmbedder embeds query images.
type ImageEmbedder interface {
	Variant() embeddings.Variant
	EmbedImage(ctx context.Context, img image.Image, cropToCenter bool) []float32
}

// TextEmbedder embeds text queries.
type TextEmbedder interface {
	Variant() embeddings.Variant
	EmbedText(ctx context.Context, text string) []float32
}

// Products resolves image names to product metadata.
type Products interface {
	LookupAll(ctx context.Context, names ...string) map[string]catalog.Product
}

// Match is one result returned to clients.
type Match struct {
	Key      string
	Filename string
	URL      string
	Score    float64
	Product  *catalog.Product
}

// Options configures a Finder.
type Options struct {
	PublicURL   string
	ImageParams search.Params
	TextParams  search.Params
}

// Finder is safe for concurrent use.
type Finder struct {
	snapshots Snapshots
	image     ImageEmbedder
	text      TextEmbedder
	products  Products
	opts      Options
	logger    *zap.Logger
}

// New returns a finder. text and products may be nil.
func New(snapshots Snapshots, image ImageEmbedder, text TextEmbedder, products Products, opts Options, logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		snapshots: snapshots,
		image:     image,
		text:      text,
		products:  products,
		opts:      opts,
		logger:    logger.Named("finder"),
	}
}

// FindByImage ranks the catalog against an uploaded image.
func (f *Finder) FindByImage(ctx context.Context, data []byte) ([]Match, error) {
	started := time.Now()
	var query []float32
	if img, err := imaging.Decode(data); err != nil {
		// Undecodable uploads carry no signal, like a failed embedding.
		f.logger.Warn("cannot decode query image", zap.Int("bytes", len(data)), zap.Error(err))
	} else {
		query = f.image.EmbedImage(ctx, img, f.opts.ImageParams.CropToCenter)
	}
	matches, err := f.find(ctx, f.image.Variant(), query, f.opts.ImageParams)
	if err != nil {
		return nil, err
	}
	f.logger.Info("image query", zap.Int("results", len(matches)), zap.Duration("took", time.Since(started)))
	return matches, nil
}

// FindByText ranks the catalog against a free-text description.
func (f *Finder) FindByText(ctx context.Context, description string) ([]Match, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyQuery
	}
	if f.text == nil {
		return nil, errors.New("text search is not configured")
	}
	started := time.Now()
	query := f.text.EmbedText(ctx, description)
	matches, err := f.find(ctx, f.text.Variant(), query, f.opts.TextParams)
	if err != nil {
		return nil, err
	}
	f.logger.Info("text query", zap.Int("results", len(matches)), zap.Duration("took", time.Since(started)))
	return matches, nil
}

func (f *Finder) find(ctx context.Context, v embeddings.Variant, query []float32, p search.Params) ([]Match, error) {
	if embeddings.IsZero(query) {
		f.logger.Warn("query produced no signal", zap.String("variant", string(v)))
		return []Match{}, nil
	}
	snap, err := f.snapshots.Load(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s index: %w", v, err)
	}
	hits, err := search.Search(snap, query, p)
	if err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(hits))
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		m := Match{
			Key:      h.Key,
			Filename: path.Base(h.Key),
			URL:      storage.PublicURL(f.opts.PublicURL, h.Key),
			Score:    h.Score,
		}
		out = append(out, m)
		names = append(names, m.Filename)
	}
	if f.products != nil && len(names) > 0 {
		products := f.products.LookupAll(ctx, names...)
		for i := range out {
			if p, ok := products[out[i].Filename]; ok {
				out[i].Product = &p
			}
		}
	}
	return out, nil
}
