package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/imaging"
)

// Variant names one embedding model family.
type Variant string

const (
	// Visual is the ResNet-18 image-only extractor.
	Visual Variant = "visual"
	// Joint is the CLIP extractor that embeds images and text into one space.
	Joint Variant = "joint"
)

// Profile is the fixed description of a variant.
type Profile struct {
	Preprocess imaging.Preprocess
	Dim        int
	Text       bool
}

var profiles = map[Variant]Profile{
	Visual: {Preprocess: imaging.ImageNet, Dim: 512},
	Joint:  {Preprocess: imaging.CLIP, Dim: 512, Text: true},
}

// Variants returns every known variant in build order.
func Variants() []Variant { return []Variant{Visual, Joint} }

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[v]; !ok {
		return "", fmt.Errorf("unknown variant %q (want visual or joint)", s)
	}
	return v, nil
}

// ProfileFor returns the profile of v.
func ProfileFor(v Variant) (Profile, bool) {
	s, ok := profiles[v]
	return s, ok
}

// Info is what a backend reports about its model during the handshake.
type Info struct {
	Model      string   `json:"model"`
	Dim        int      `json:"dim"`
	Modalities []string `json:"modalities"`
}

// Supports reports whether the backend accepts the given modality.
func (i Info) Supports(modality string) bool {
	for _, m := range i.Modalities {
		if strings.EqualFold(m, modality) {
			return true
		}
	}
	return false
}

// Provider is an inference backend for one model.
//
// Implementations must be deterministic for the same input and model.
type Provider interface {
	Info(ctx context.Context) (Info, error)
	EmbedTensor(ctx context.Context, tensor []float32, shape [3]int) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config contains the resolved backend configuration for one variant.
type Config struct {
	Variant Variant
	URL     string
	Model   string
	Token   string
	Timeout time.Duration
}

// ConfigFor resolves the backend config of v from cfg; the bearer token
// comes from TILEMATCH_MODEL_TOKEN in the environment or ~/.tilematch/.env.
func ConfigFor(cfg *config.Config, v Variant) (*Config, error) {
	var mc config.ModelConfig
	switch v {
	case Visual:
		mc = cfg.Models.Visual
	case Joint:
		mc = cfg.Models.Joint
	default:
		return nil, fmt.Errorf("unknown variant %q", v)
	}
	token, err := config.GetConfigValue("TILEMATCH_MODEL_TOKEN")
	if err != nil {
		return nil, err
	}
	return &Config{
		Variant: v,
		URL:     mc.URL,
		Model:   mc.Model,
		Token:   token,
		Timeout: mc.Timeout,
	}, nil
}

// NewFromConfig returns the HTTP provider for cfg.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("model url is not configured for variant %s", cfg.Variant)
	}
	return NewHTTP(cfg), nil
}
