package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Encode serialises snap:
//
//	"TSNP" | u32 version | u32 manifest length | manifest JSON
//	N × (u32 key length | key bytes)
//	N × Dim little-endian float32
func Encode(w io.Writer, snap *Snapshot) error {
	m := snap.Manifest
	if m.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", m.Dim)
	}
	if len(snap.Keys) == 0 {
		return fmt.Errorf("no entries to write")
	}
	if len(snap.Vectors) != len(snap.Keys)*m.Dim {
		return fmt.Errorf("vector length mismatch: got %d want %d", len(snap.Vectors), len(snap.Keys)*m.Dim)
	}
	m.Count = len(snap.Keys)
	m.IndexVersion = FormatVersion
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	mb, err := json.Marshal(m)
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(w, 1<<16)
	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, [2]uint32{FormatVersion, uint32(len(mb))}); err != nil {
		return err
	}
	if _, err := bw.Write(mb); err != nil {
		return err
	}
	for _, k := range snap.Keys {
		if len(k) > maxKeyLen {
			return fmt.Errorf("key too long (%d bytes): %.64s...", len(k), k)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(k))); err != nil {
			return err
		}
		if _, err := bw.WriteString(k); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, snap.Vectors); err != nil {
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	return bw.Flush()
}

// Write publishes snap at path. The bytes go to a temp file in the same
// directory which is synced and then renamed over path, so readers see
// either the previous snapshot or the new one.
func Write(path string, snap *Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create index dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if err := Encode(tmp, snap); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("cannot sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := publish(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("cannot publish snapshot %s: %w", path, err)
	}
	return nil
}
