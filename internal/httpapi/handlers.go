package httpapi

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/finder"
)

// multipart framing allowance on top of the file itself
const formOverhead = 64 << 10

var allowedExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Result is one entry of a search response.
type Result struct {
	URL      string  `json:"url"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
	Title    string  `json:"title"`
	Slug     string  `json:"slug"`
	Sizes    string  `json:"sizes"`
	Category string  `json:"category"`
}

// SearchResponse is the body of /upload and /search.
type SearchResponse struct {
	Results []Result `json:"results"`
}

// SearchRequest is the body of /search.
type SearchRequest struct {
	Description string `json:"description"`
}

// ReindexResponse is the body of /admin/reindex.
type ReindexResponse struct {
	Listed          int                     `json:"listed"`
	Variants        map[string]VariantBuild `json:"variants"`
	CatalogReloaded bool                    `json:"catalog_reloaded"`
}

// VariantBuild summarises one published snapshot.
type VariantBuild struct {
	BuildID string `json:"build_id"`
	Count   int    `json:"count"`
}

func allowedFile(name string) bool {
	return allowedExtensions[strings.ToLower(path.Ext(name))]
}

func toResponse(matches []finder.Match) SearchResponse {
	out := SearchResponse{Results: make([]Result, 0, len(matches))}
	for _, m := range matches {
		res := Result{URL: m.URL, Score: m.Score, Filename: m.Filename}
		if m.Product != nil {
			res.Title = m.Product.Title
			res.Slug = m.Product.Slug
			res.Sizes = m.Product.Sizes
			res.Category = m.Product.Category
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// Upload handles POST /upload with a multipart "image" field.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Render(w, r, ErrTooLarge(err))
			return
		}
		render.Render(w, r, ErrInvalidRequest("No image provided"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil || header.Filename == "" {
		render.Render(w, r, ErrInvalidRequest("No image provided"))
		return
	}
	defer file.Close()
	if !allowedFile(header.Filename) {
		render.Render(w, r, ErrInvalidRequest("File type not allowed"))
		return
	}
	if header.Size > s.opts.MaxUploadBytes {
		render.Render(w, r, ErrTooLarge(nil))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		render.Render(w, r, ErrInternal(err))
		return
	}
	matches, err := s.searcher.FindByImage(r.Context(), data)
	if err != nil {
		s.logger.Error("image search failed", zap.String("filename", header.Filename), zap.Error(err))
		render.Render(w, r, ErrInternal(err))
		return
	}
	render.JSON(w, r, toResponse(matches))
}

// Search handles POST /search with a JSON description.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		render.Render(w, r, ErrInvalidRequest("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		render.Render(w, r, ErrInvalidRequest("Description is required"))
		return
	}

	matches, err := s.searcher.FindByText(r.Context(), req.Description)
	if err != nil {
		s.logger.Error("text search failed", zap.Error(err))
		render.Render(w, r, ErrInternal(err))
		return
	}
	render.JSON(w, r, toResponse(matches))
}

// Reindex handles POST /admin/reindex: rebuild every variant, then force a
// catalog reload. It returns once both are done.
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		render.Render(w, r, &ErrResponse{HTTPStatusCode: http.StatusNotImplemented, ErrorText: "reindex is not available"})
		return
	}
	res, err := s.indexer.Rebuild(r.Context())
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		render.Render(w, r, ErrInternal(err))
		return
	}

	out := ReindexResponse{Listed: len(res.Listed), Variants: map[string]VariantBuild{}}
	for v, snap := range res.Snapshots {
		out.Variants[string(v)] = VariantBuild{BuildID: snap.Manifest.BuildID, Count: snap.Len()}
	}
	if s.catalog != nil {
		reloaded, err := s.catalog.Refresh(r.Context(), true)
		if err != nil {
			s.logger.Warn("catalog reload failed", zap.Error(err))
		}
		out.CatalogReloaded = reloaded
	}
	render.JSON(w, r, out)
}
