package embeddings

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type httpProvider struct {
	model   string
	token   string
	baseURL string
	client  *http.Client
}

// NewHTTP constructs a client for a model inference server.
//
// Endpoints:
//
//	GET  {url}/v1/info        -> {"model": "...", "dim": 512, "modalities": ["image", "text"]}
//	POST {url}/v1/embed/image  body: little-endian float32 CHW tensor, X-Tensor-Shape: 3,224,224
//	POST {url}/v1/embed/text   body: {"text": "..."}
//
// Both embed endpoints answer {"embedding": [...]}.
func NewHTTP(cfg *Config) Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpProvider{
		model:   cfg.Model,
		token:   cfg.Token,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *httpProvider) Info(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/info", nil)
	if err != nil {
		return Info{}, err
	}
	body, err := p.do(req)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return Info{}, fmt.Errorf("cannot parse model info: %w", err)
	}
	if info.Dim <= 0 {
		return Info{}, fmt.Errorf("model info reports invalid dim %d", info.Dim)
	}
	if p.model != "" && info.Model != "" && info.Model != p.model {
		return Info{}, fmt.Errorf("model mismatch: server has %q, configured %q", info.Model, p.model)
	}
	if info.Model == "" {
		info.Model = p.model
	}
	return info, nil
}

func (p *httpProvider) EmbedTensor(ctx context.Context, tensor []float32, shape [3]int) ([]float32, error) {
	if len(tensor) != shape[0]*shape[1]*shape[2] {
		return nil, fmt.Errorf("tensor has %d values, shape %v wants %d", len(tensor), shape, shape[0]*shape[1]*shape[2])
	}
	var buf bytes.Buffer
	buf.Grow(len(tensor) * 4)
	if err := binary.Write(&buf, binary.LittleEndian, tensor); err != nil {
		return nil, fmt.Errorf("cannot encode tensor: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embed/image", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Tensor-Shape", strconv.Itoa(shape[0])+","+strconv.Itoa(shape[1])+","+strconv.Itoa(shape[2]))
	return p.embed(req)
}

func (p *httpProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	b, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embed/text", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.embed(req)
}

func (p *httpProvider) embed(req *http.Request) ([]float32, error) {
	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("cannot parse embeddings response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embeddings response missing embedding")
	}
	out := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (p *httpProvider) do(req *http.Request) ([]byte, error) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model request %s failed: HTTP %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
