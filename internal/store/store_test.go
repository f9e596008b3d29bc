package store

import (
	"bytes"
	"math/rand"
	"testing"
)

func randomBytes(t testing.TB, n int, seed int64) []byte {
	t.Helper()
	buf := make([]byte, n)
	rnd := rand.New(rand.NewSource(seed))
	if _, err := rnd.Read(buf); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return buf
}

func openStore(t testing.TB) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openStore(t)
	data := randomBytes(t, 200*1024, 1)

	n, err := s.Write("/dir/file.bin", data, 0)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Write returned %d, want %d", n, len(data))
	}

	got, err := s.Read("/dir/file.bin", len(data), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read-after-write bytes do not match")
	}
}

func TestReadMissingManifestIsNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Read("/nope", 10, 0)
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestSingleFileDedupWithinOneWrite(t *testing.T) {
	s := openStore(t)

	half := randomBytes(t, 16*1024, 2)
	data := append(append([]byte{}, half...), half...)

	if _, err := s.Write("/dup.bin", data, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, ok := s.manifests.Get("/dup.bin")
	if !ok {
		t.Fatal("no manifest stored")
	}

	half1 := digestsOf(entries[:len(entries)/2])
	half2 := digestsOf(entries[len(entries)/2:])
	if len(half1) != len(half2) {
		t.Fatalf("halves have different chunk counts: %d vs %d", len(half1), len(half2))
	}
	for i := range half1 {
		if half1[i] != half2[i] {
			t.Fatalf("chunk %d digest differs between identical halves", i)
		}
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Digest] = true
	}
	maxExpected := (len(data)/2)/1024 + 1
	if len(seen) > maxExpected {
		t.Fatalf("expected at most ~%d unique chunks, got %d", maxExpected, len(seen))
	}
}

func digestsOf(entries []ManifestEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Digest
	}
	return out
}

func TestCrossFileDedup(t *testing.T) {
	s := openStore(t)

	x := randomBytes(t, 8*1024, 3)
	if _, err := s.Write("/a.bin", x, 0); err != nil {
		t.Fatalf("write a: %v", err)
	}

	prefix := randomBytes(t, 1024, 4)
	b := append(append([]byte{}, prefix...), x...)
	if _, err := s.Write("/b.bin", b, 0); err != nil {
		t.Fatalf("write b: %v", err)
	}

	aEntries, _ := s.manifests.Get("/a.bin")
	bEntries, _ := s.manifests.Get("/b.bin")

	aDigests := make(map[string]bool)
	for _, e := range aEntries {
		aDigests[e.Digest] = true
	}

	shared := 0
	for _, e := range bEntries {
		if aDigests[e.Digest] {
			shared++
		}
	}
	if shared == 0 {
		t.Fatal("expected at least one shared chunk between A and the shared suffix of B")
	}
}

func TestUnlinkRemovesManifest(t *testing.T) {
	s := openStore(t)
	data := randomBytes(t, 4096, 5)
	if _, err := s.Write("/gone.bin", data, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	s.Unlink("/gone.bin")

	if _, ok := s.manifests.Get("/gone.bin"); ok {
		t.Fatal("manifest still present after Unlink")
	}
	if _, err := s.Read("/gone.bin", 10, 0); err == nil {
		t.Fatal("expected NotFound after Unlink")
	}
}

func TestVerifyDetectsNoMismatchesOnFreshWrites(t *testing.T) {
	s := openStore(t)
	data := randomBytes(t, 50*1024, 6)
	if _, err := s.Write("/ok.bin", data, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	if mismatches := s.Verify(); len(mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %+v", mismatches)
	}
}

func TestFileSize(t *testing.T) {
	s := openStore(t)
	data := randomBytes(t, 10000, 7)
	if _, err := s.Write("/sized.bin", data, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	size, ok := s.FileSize("/sized.bin")
	if !ok {
		t.Fatal("expected FileSize to find the file")
	}
	if size != int64(len(data)) {
		t.Fatalf("FileSize = %d, want %d", size, len(data))
	}
}

func TestChunkIndexInsertIsIdempotent(t *testing.T) {
	idx := newChunkIndex(t.TempDir())

	first := idx.Insert("dgst", ChunkLocation{Container: "a.container", Offset: 0, Length: 10})
	if !first {
		t.Fatal("first insert should report inserted=true")
	}

	second := idx.Insert("dgst", ChunkLocation{Container: "b.container", Offset: 999, Length: 1})
	if second {
		t.Fatal("second insert of the same digest should report inserted=false")
	}

	loc, ok := idx.Lookup("dgst")
	if !ok || loc.Container != "a.container" {
		t.Fatalf("expected first-writer-wins location, got %+v ok=%v", loc, ok)
	}
}

func TestManifestStorePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	ms := newManifestStore(dir)
	ms.Put("/p", []ManifestEntry{{Digest: "aa", Length: 10}})
	ms.pm.dumpNow() // force a synchronous dump instead of waiting on the background goroutine
	ms.Close()

	reloaded := newManifestStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries, ok := reloaded.Get("/p")
	if !ok || len(entries) != 1 || entries[0].Digest != "aa" {
		t.Fatalf("unexpected reloaded manifest: %+v ok=%v", entries, ok)
	}
	reloaded.Close()
}

func TestSanitizeContainerName(t *testing.T) {
	cases := map[string]string{
		"/a/b/c.txt": "a_b_c.txt.container",
		"rel/path":   "rel_path.container",
		"/":          ".container",
	}
	for in, want := range cases {
		if got := sanitizeContainerName(in); got != want {
			t.Errorf("sanitizeContainerName(%q) = %q, want %q", in, got, want)
		}
	}
}
