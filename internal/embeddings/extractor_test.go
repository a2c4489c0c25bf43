package embeddings

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeServer struct {
	infoCalls  atomic.Int32
	failInfo   atomic.Bool
	dim        int
	modalities []string
	lastShape  atomic.Value
	lastAuth   atomic.Value
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/info", func(w http.ResponseWriter, r *http.Request) {
		f.infoCalls.Add(1)
		if f.failInfo.Load() {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Info{Model: "test-model", Dim: f.dim, Modalities: f.modalities})
	})
	mux.HandleFunc("POST /v1/embed/image", func(w http.ResponseWriter, r *http.Request) {
		f.lastShape.Store(r.Header.Get("X-Tensor-Shape"))
		f.lastAuth.Store(r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		tensor := make([]float32, len(body)/4)
		require.NoError(t, binary.Read(bytes.NewReader(body), binary.LittleEndian, tensor))
		// First dim values of the tensor form the embedding, enough to tell inputs apart.
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": tensor[:f.dim]})
	})
	mux.HandleFunc("POST /v1/embed/text", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		emb := make([]float32, f.dim)
		emb[len(req.Text)%f.dim] = 1
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": emb})
	})
	return mux
}

func newExtractor(t *testing.T, v Variant, f *fakeServer) *Extractor {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	p, err := NewFromConfig(&Config{Variant: v, URL: srv.URL, Model: "test-model", Token: "secret"})
	require.NoError(t, err)
	e, err := NewExtractor(v, p, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtractor_EmbedImageBytes(t *testing.T) {
	f := &fakeServer{dim: 8, modalities: []string{"image"}}
	e := newExtractor(t, Visual, f)
	ctx := context.Background()

	vec := e.EmbedImageBytes(ctx, pngBytes(t, 40, 20, color.White), true)
	require.Len(t, vec, 8)
	assert.False(t, IsZero(vec))
	assert.Equal(t, "3,224,224", f.lastShape.Load())
	assert.Equal(t, "Bearer secret", f.lastAuth.Load())
	assert.Equal(t, 8, e.Dim())
	assert.Equal(t, "visual:test-model", e.ModelID())

	// The handshake is not repeated once it succeeded.
	_ = e.EmbedImageBytes(ctx, pngBytes(t, 10, 10, color.Black), false)
	assert.Equal(t, int32(1), f.infoCalls.Load())
}

func TestExtractor_DecodeFailureIsZeroVector(t *testing.T) {
	f := &fakeServer{dim: 8}
	e := newExtractor(t, Visual, f)

	vec := e.EmbedImageBytes(context.Background(), []byte("garbage"), false)
	assert.Len(t, vec, 512)
	assert.True(t, IsZero(vec))
}

func TestExtractor_HandshakeRetriedAfterFailure(t *testing.T) {
	f := &fakeServer{dim: 4, modalities: []string{"image", "text"}}
	f.failInfo.Store(true)
	e := newExtractor(t, Joint, f)
	ctx := context.Background()

	vec := e.EmbedText(ctx, "beige marble")
	assert.True(t, IsZero(vec))
	assert.Len(t, vec, 512)

	f.failInfo.Store(false)
	vec = e.EmbedText(ctx, "beige marble")
	require.Len(t, vec, 4)
	assert.False(t, IsZero(vec))
	assert.Equal(t, int32(2), f.infoCalls.Load())
}

func TestExtractor_TextOnImageOnlyVariant(t *testing.T) {
	f := &fakeServer{dim: 4}
	e := newExtractor(t, Visual, f)

	vec := e.EmbedText(context.Background(), "grey stone")
	assert.True(t, IsZero(vec))
	assert.Equal(t, int32(0), f.infoCalls.Load())
}

func TestExtractor_BlankTextIsZero(t *testing.T) {
	f := &fakeServer{dim: 4}
	e := newExtractor(t, Joint, f)
	assert.True(t, IsZero(e.EmbedText(context.Background(), "   ")))
}

func TestExtractor_WrongLengthIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/info" {
			_ = json.NewEncoder(w).Encode(Info{Dim: 6})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2}})
	}))
	defer srv.Close()

	e, err := NewExtractor(Joint, NewHTTP(&Config{URL: srv.URL}), nil)
	require.NoError(t, err)
	vec := e.EmbedText(context.Background(), "x")
	assert.Len(t, vec, 6)
	assert.True(t, IsZero(vec))
}

func TestHTTPProvider_ModelMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Info{Model: "other", Dim: 512})
	}))
	defer srv.Close()

	_, err := NewHTTP(&Config{URL: srv.URL, Model: "resnet18"}).Info(context.Background())
	assert.ErrorContains(t, err, "model mismatch")
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" Joint ")
	require.NoError(t, err)
	assert.Equal(t, Joint, v)
	_, err = ParseVariant("dino")
	assert.Error(t, err)
	assert.Equal(t, []Variant{Visual, Joint}, Variants())
}
