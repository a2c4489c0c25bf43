// Package httpapi exposes image and text search over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/embeddings"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/finder"
	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
)

// Searcher answers queries.
type Searcher interface {
	FindByImage(ctx context.Context, data []byte) ([]finder.Match, error)
	FindByText(ctx context.Context, description string) ([]finder.Match, error)
}

// Reindexer rebuilds snapshots on demand.
type Reindexer interface {
	Rebuild(ctx context.Context, variants ...embeddings.Variant) (*index.BuildResult, error)
}

// Refresher reloads the products table.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (bool, error)
}

// Options configures the HTTP layer.
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Server wires handlers to a chi router.
type Server struct {
	searcher Searcher
	indexer  Reindexer
	catalog  Refresher
	opts     Options
	logger   *zap.Logger
}

// New returns a server. indexer and catalog may be nil, which disables the
// matching admin operations.
func New(searcher Searcher, indexer Reindexer, catalog Refresher, opts Options, logger *zap.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		searcher: searcher,
		indexer:  indexer,
		catalog:  catalog,
		opts:     opts,
		logger:   logger.Named("http"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/upload", s.Upload)
	r.Post("/search", s.Search)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reindex", s.Reindex)
	})
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
