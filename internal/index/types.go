package index

import "fmt"

// FormatVersion is the on-disk snapshot layout version.
const FormatVersion = 1

const snapshotMagic = "TSNP"

// Manifest describes a snapshot and how it was produced.
type Manifest struct {
	IndexVersion     int    `json:"index_version"`
	BuildID          string `json:"build_id"`
	CreatedAt        string `json:"created_at"`
	Variant          string `json:"variant"`
	ModelID          string `json:"model_id"`
	Dim              int    `json:"dim"`
	Count            int    `json:"count"`
	Normalize        bool   `json:"normalize"`
	InventoryDigest  string `json:"inventory_digest"`
	Listed           int    `json:"listed"`
	SkippedDuplicate int    `json:"skipped_duplicate"`
	SkippedZero      int    `json:"skipped_zero"`
	SkippedError     int    `json:"skipped_error"`
}

// Entry is one indexed image.
type Entry struct {
	Key    string
	Vector []float32
}

// Snapshot is an immutable, fully built index: N keys and an N×Dim
// row-major vector matrix. It is replaced wholesale, never mutated.
type Snapshot struct {
	Manifest Manifest
	Keys     []string
	Vectors  []float32
}

// NewSnapshot assembles a snapshot from entries, which must share one
// dimension and have unique keys.
func NewSnapshot(m Manifest, entries []Entry) (*Snapshot, error) {
	if len(entries) > 0 && m.Dim == 0 {
		m.Dim = len(entries[0].Vector)
	}
	keys := make([]string, 0, len(entries))
	vectors := make([]float32, 0, len(entries)*m.Dim)
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Vector) != m.Dim {
			return nil, fmt.Errorf("entry %s: %w: got %d want %d", e.Key, ErrVectorLengthMismatch, len(e.Vector), m.Dim)
		}
		if _, dup := seen[e.Key]; dup {
			return nil, fmt.Errorf("duplicate key in snapshot: %s", e.Key)
		}
		seen[e.Key] = struct{}{}
		keys = append(keys, e.Key)
		vectors = append(vectors, e.Vector...)
	}
	m.Count = len(keys)
	if m.IndexVersion == 0 {
		m.IndexVersion = FormatVersion
	}
	return &Snapshot{Manifest: m, Keys: keys, Vectors: vectors}, nil
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Keys)
}

// Dim returns the vector dimension.
func (s *Snapshot) Dim() int {
	if s == nil {
		return 0
	}
	return s.Manifest.Dim
}

// Vector returns the i-th row. The slice aliases the snapshot; do not modify it.
func (s *Snapshot) Vector(i int) []float32 {
	d := s.Manifest.Dim
	return s.Vectors[i*d : (i+1)*d : (i+1)*d]
}

// Entries returns every row in index order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, s.Len())
	for i := range out {
		out[i] = Entry{Key: s.Keys[i], Vector: s.Vector(i)}
	}
	return out
}
