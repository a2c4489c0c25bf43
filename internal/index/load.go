package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	maxManifestLen = 1 << 20
	maxKeyLen      = 4096
	maxCount       = 1 << 26
	maxDim         = 1 << 16
	readChunk      = 1 << 16
)

// Load reads the snapshot at path. A missing file is ErrNotFound.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("cannot open snapshot %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat snapshot %s: %w", path, err)
	}
	snap, err := Decode(bufio.NewReaderSize(f, 1<<16), st.Size())
	if err != nil {
		return nil, fmt.Errorf("cannot load snapshot %s: %w", path, err)
	}
	return snap, nil
}

// ReadManifest reads only the header of the snapshot at path.
func ReadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Manifest{}, fmt.Errorf("cannot open snapshot %s: %w", path, err)
	}
	defer f.Close()

	m, _, err := decodeManifest(bufio.NewReader(f))
	if err != nil {
		return Manifest{}, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	return m, nil
}

// Decode parses a snapshot of size bytes written by Encode. The body is
// checked against size before anything is allocated. Trailing bytes are an
// error.
func Decode(r io.Reader, size int64) (*Snapshot, error) {
	m, header, err := decodeManifest(r)
	if err != nil {
		return nil, err
	}
	// Every key takes at least 5 bytes (length prefix plus one byte).
	count, dim := int64(m.Count), int64(m.Dim)
	if need, left := count*5+count*dim*4, size-header; need > left {
		return nil, corrupt("count=%d dim=%d needs at least %d bytes, file has %d", m.Count, m.Dim, need, left)
	}

	keys := make([]string, m.Count)
	seen := make(map[string]struct{}, m.Count)
	var n uint32
	for i := range keys {
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, corrupt("key %d length: %v", i, err)
		}
		if n == 0 || n > maxKeyLen {
			return nil, corrupt("key %d has invalid length %d", i, n)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, corrupt("key %d: %v", i, err)
		}
		k := string(b)
		if _, dup := seen[k]; dup {
			return nil, corrupt("duplicate key %s", k)
		}
		seen[k] = struct{}{}
		keys[i] = k
	}

	vectors := make([]float32, m.Count*m.Dim)
	for off := 0; off < len(vectors); off += readChunk {
		end := min(off+readChunk, len(vectors))
		if err := binary.Read(r, binary.LittleEndian, vectors[off:end]); err != nil {
			return nil, corrupt("vectors truncated (count=%d dim=%d): %v", m.Count, m.Dim, err)
		}
	}

	var extra [1]byte
	if k, _ := r.Read(extra[:]); k != 0 {
		return nil, corrupt("trailing bytes after vectors")
	}
	return &Snapshot{Manifest: m, Keys: keys, Vectors: vectors}, nil
}

func decodeManifest(r io.Reader) (Manifest, int64, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Manifest{}, 0, corrupt("header: %v", err)
	}
	if string(magic[:]) != snapshotMagic {
		return Manifest{}, 0, corrupt("bad magic %q", magic[:])
	}
	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return Manifest{}, 0, corrupt("header: %v", err)
	}
	if hdr[0] != FormatVersion {
		return Manifest{}, 0, fmt.Errorf("unsupported snapshot version %d (want %d)", hdr[0], FormatVersion)
	}
	if hdr[1] == 0 || hdr[1] > maxManifestLen {
		return Manifest{}, 0, corrupt("invalid manifest length %d", hdr[1])
	}
	mb := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, mb); err != nil {
		return Manifest{}, 0, corrupt("manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(mb, &m); err != nil {
		return Manifest{}, 0, corrupt("invalid manifest JSON: %v", err)
	}
	if m.Dim <= 0 || m.Dim > maxDim {
		return Manifest{}, 0, corrupt("invalid dim in manifest: %d", m.Dim)
	}
	if m.Count <= 0 || m.Count > maxCount {
		return Manifest{}, 0, corrupt("invalid count in manifest: %d", m.Count)
	}
	return m, 12 + int64(hdr[1]), nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
