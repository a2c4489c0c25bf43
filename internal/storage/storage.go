// Package storage is the boundary to the remote tile collection: listing
// keys, fetching object bytes and reading object version tokens.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
)

var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable indicates the store could not be reached.
	ErrUnavailable = errors.New("object store unavailable")
)

// ObjectInfo is the metadata returned by Head.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
	ETag    string
}

// Version returns an opaque token that changes whenever the object content
// changes. ETag is preferred; the modification time and size are the fallback.
func (o ObjectInfo) Version() string {
	if o.ETag != "" {
		return "etag:" + strings.Trim(o.ETag, `"`)
	}
	return "mtime:" + strconv.FormatInt(o.ModTime.UnixNano(), 10) + ":" + strconv.FormatInt(o.Size, 10)
}

// ObjectStore lists and fetches objects by collection-relative key.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
}

// Prober is implemented by stores that can verify connectivity up front.
type Prober interface {
	Probe(ctx context.Context) error
}

// Notifier is implemented by stores that can push change hints. The channel
// receives a value (coalesced) whenever something below the root changes and
// is closed once ctx is done.
type Notifier interface {
	Changes(ctx context.Context) (<-chan struct{}, error)
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// IsImageKey reports whether key names a supported image file.
func IsImageKey(key string) bool {
	return imageExtensions[strings.ToLower(path.Ext(key))]
}

// ListImages returns the image keys under prefix, in store listing order,
// with repeated keys removed.
func ListImages(ctx context.Context, store ObjectStore, prefix string) ([]string, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !IsImageKey(k) {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

// KeySet is an inventory snapshot used for change detection.
type KeySet map[string]struct{}

// NewKeySet builds a set from keys.
func NewKeySet(keys []string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Equal reports whether both sets hold exactly the same keys.
func (s KeySet) Equal(o KeySet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3(ctx, cfg)
	case "fs":
		return NewFS(cfg.Root)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// PublicURL joins the public base URL of the collection with key.
func PublicURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
