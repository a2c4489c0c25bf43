package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(Manifest{
		BuildID:   "build-1",
		CreatedAt: "2026-01-01T00:00:00Z",
		Variant:   "visual",
		ModelID:   "visual:test",
	}, []Entry{
		{Key: "tiles/a.png", Vector: []float32{1, 0}},
		{Key: "tiles/b.png", Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func TestLoad_SnapshotHappyPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "visual.snapshot")
	if err := Write(p, testSnapshot(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Manifest.Dim != 2 || snap.Manifest.Count != 2 {
		t.Fatalf("manifest mismatch: %+v", snap.Manifest)
	}
	if snap.Manifest.IndexVersion != FormatVersion {
		t.Fatalf("index version not stamped: %d", snap.Manifest.IndexVersion)
	}
	if len(snap.Keys) != 2 || snap.Keys[1] != "tiles/b.png" {
		t.Fatalf("keys mismatch: %v", snap.Keys)
	}
	if v := snap.Vector(1); v[0] != 0 || v[1] != 1 {
		t.Fatalf("vector mismatch: %v", v)
	}
	if e := snap.Entries(); len(e) != 2 || e[0].Key != "tiles/a.png" {
		t.Fatalf("entries mismatch: %v", e)
	}

	m, err := ReadManifest(p)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.BuildID != "build-1" {
		t.Fatalf("build id mismatch: %q", m.BuildID)
	}

	// No temp files are left behind.
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("expected only the snapshot, found %d entries", len(entries))
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "joint.snapshot"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecode_RejectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, testSnapshot(t)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	good := buf.Bytes()

	cases := map[string][]byte{
		"magic":     append([]byte("XXXX"), good[4:]...),
		"truncated": good[:len(good)-3],
		"trailing":  append(append([]byte(nil), good...), 0),
		"empty":     {},
	}
	for name, data := range cases {
		if _, err := Decode(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

// headerOnly returns a snapshot header claiming count × dim with no body.
func headerOnly(t *testing.T, dim, count int) []byte {
	t.Helper()
	mb, err := json.Marshal(Manifest{IndexVersion: FormatVersion, Variant: "visual", Dim: dim, Count: count})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{FormatVersion, uint32(len(mb))})
	buf.Write(mb)
	buf.Write(make([]byte, 32))
	return buf.Bytes()
}

func TestLoad_OversizedHeaderRejectedBeforeAllocating(t *testing.T) {
	p := filepath.Join(t.TempDir(), "visual.snapshot")
	if err := os.WriteFile(p, headerOnly(t, 512, maxCount), 0o644); err != nil {
		t.Fatal(err)
	}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := Load(p)
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 16<<20 {
		t.Fatalf("decoding a %d-byte file allocated %d bytes", len(headerOnly(t, 512, maxCount)), grew)
	}
}

func TestDecode_SizeMustCoverBody(t *testing.T) {
	data := headerOnly(t, 2, 3)
	if _, err := Decode(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, testSnapshot(t)); err != nil {
		t.Fatal(err)
	}
	good := buf.Bytes()
	if _, err := Decode(bytes.NewReader(good), int64(len(good))); err != nil {
		t.Fatalf("exact size rejected: %v", err)
	}
}

func TestWrite_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	p := filepath.Join(t.TempDir(), "visual.snapshot")
	const builds = 40

	// Snapshots of different sizes so a torn read cannot decode cleanly.
	snaps := make([]*Snapshot, builds)
	want := make(map[string]int, builds)
	for i := range snaps {
		entries := make([]Entry, i%7+1)
		for j := range entries {
			entries[j] = Entry{Key: fmt.Sprintf("tiles/%d-%d.png", i, j), Vector: []float32{float32(i), float32(j), 1}}
		}
		id := fmt.Sprintf("build-%d", i)
		snap, err := NewSnapshot(Manifest{BuildID: id, Variant: "visual"}, entries)
		if err != nil {
			t.Fatal(err)
		}
		snaps[i] = snap
		want[id] = len(entries)
	}
	if err := Write(p, snaps[0]); err != nil {
		t.Fatal(err)
	}

	var done atomic.Bool
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				snap, err := Load(p)
				if err != nil {
					errs <- err
					return
				}
				n, ok := want[snap.Manifest.BuildID]
				if !ok || snap.Len() != n || snap.Dim() != 3 {
					errs <- fmt.Errorf("unexpected snapshot %q with %d entries", snap.Manifest.BuildID, snap.Len())
					return
				}
			}
		}()
	}

	for i := 1; i < builds; i++ {
		if err := Write(p, snaps[i]); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	done.Store(true)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("reader saw a partial snapshot: %v", err)
	}
}
