package embeddings

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/imaging"
)

// ErrTextUnsupported is logged when text is sent to an image-only variant.
var ErrTextUnsupported = errors.New("variant does not embed text")

// Extractor turns images and text into embedding vectors for one variant.
//
// Embedding never fails: any decode, transport or inference error is logged
// and yields the all-zero vector of the variant's dimension. The backend
// handshake happens on first use and is retried on later calls until it
// succeeds.
type Extractor struct {
	variant  Variant
	profile  Profile
	provider Provider
	logger   *zap.Logger

	mu    sync.Mutex
	ready bool
	info  Info
}

// NewExtractor wraps provider for variant v.
func NewExtractor(v Variant, provider Provider, logger *zap.Logger) (*Extractor, error) {
	profile, ok := ProfileFor(v)
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", v)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		variant:  v,
		profile:  profile,
		provider: provider,
		logger:   logger.Named("extractor").With(zap.String("variant", string(v))),
	}, nil
}

// Variant returns the extractor's variant.
func (e *Extractor) Variant() Variant { return e.variant }

// Dim is the vector length: the backend's once the handshake succeeded,
// the variant default before that.
func (e *Extractor) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return e.info.Dim
	}
	return e.profile.Dim
}

// ModelID identifies the model that produced the vectors.
func (e *Extractor) ModelID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready && e.info.Model != "" {
		return string(e.variant) + ":" + e.info.Model
	}
	return string(e.variant)
}

// Handshake contacts the backend if it has not answered yet.
func (e *Extractor) Handshake(ctx context.Context) (Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return e.info, nil
	}
	info, err := e.provider.Info(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("model handshake failed: %w", err)
	}
	e.info = info
	e.ready = true
	e.logger.Info("model backend ready", zap.String("model", info.Model), zap.Int("dim", info.Dim))
	return info, nil
}

// EmbedImageBytes decodes data and embeds it.
func (e *Extractor) EmbedImageBytes(ctx context.Context, data []byte, cropToCenter bool) []float32 {
	img, err := imaging.Decode(data)
	if err != nil {
		e.logger.Warn("cannot decode image", zap.Error(err))
		return e.zero()
	}
	return e.EmbedImage(ctx, img, cropToCenter)
}

// EmbedImage embeds an already decoded image. cropToCenter crops to the
// largest centred square before resizing.
func (e *Extractor) EmbedImage(ctx context.Context, img image.Image, cropToCenter bool) []float32 {
	info, err := e.Handshake(ctx)
	if err != nil {
		e.logger.Warn("image embedding unavailable", zap.Error(err))
		return e.zero()
	}
	if cropToCenter {
		img = imaging.CenterCrop(img)
	}
	tensor := e.profile.Preprocess.Tensor(img)
	vec, err := e.provider.EmbedTensor(ctx, tensor, e.profile.Preprocess.Shape())
	if err != nil {
		e.logger.Warn("image embedding failed", zap.Error(err))
		return e.zero()
	}
	return e.checked(vec, info.Dim)
}

// EmbedText embeds a free-text query. Image-only variants return the zero vector.
func (e *Extractor) EmbedText(ctx context.Context, text string) []float32 {
	if !e.profile.Text {
		e.logger.Warn("text embedding requested", zap.Error(ErrTextUnsupported))
		return e.zero()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return e.zero()
	}
	info, err := e.Handshake(ctx)
	if err != nil {
		e.logger.Warn("text embedding unavailable", zap.Error(err))
		return e.zero()
	}
	vec, err := e.provider.EmbedText(ctx, text)
	if err != nil {
		e.logger.Warn("text embedding failed", zap.Error(err))
		return e.zero()
	}
	return e.checked(vec, info.Dim)
}

func (e *Extractor) checked(vec []float32, dim int) []float32 {
	if len(vec) != dim {
		e.logger.Warn("embedding has unexpected length", zap.Int("got", len(vec)), zap.Int("want", dim))
		return make([]float32, dim)
	}
	return vec
}

func (e *Extractor) zero() []float32 {
	return make([]float32, e.Dim())
}

// IsZero reports whether v carries no signal.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
