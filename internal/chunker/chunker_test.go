package chunker

import (
	"math/rand"
	"sync"
	"testing"
)

func randomBuffer(t testing.TB, size int, seed int64) []byte {
	t.Helper()
	buf := make([]byte, size)
	rnd := rand.New(rand.NewSource(seed))
	if _, err := rnd.Read(buf); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return buf
}

func TestDetermineChunkSizeDeterministic(t *testing.T) {
	buf := randomBuffer(t, 1<<20, 42)

	a := DetermineChunkSize(buf, 0)
	b := DetermineChunkSize(buf, 0)
	if a != b {
		t.Fatalf("DetermineChunkSize not deterministic: %d != %d", a, b)
	}
}

func TestDetermineChunkSizeBounds(t *testing.T) {
	buf := randomBuffer(t, 1<<20, 7)

	pos := 0
	for pos < len(buf) {
		l := DetermineChunkSize(buf, pos)
		remaining := len(buf) - pos
		if remaining >= MinChunkSize {
			if l < MinChunkSize {
				t.Fatalf("chunk at %d shorter than MinChunkSize: %d", pos, l)
			}
		} else if l != remaining {
			t.Fatalf("final short chunk at %d: got %d want %d", pos, l, remaining)
		}
		if l > MaxChunkSize {
			t.Fatalf("chunk at %d longer than MaxChunkSize: %d", pos, l)
		}
		if l == 0 {
			t.Fatalf("chunk at %d has zero length", pos)
		}
		pos += l
	}
}

func TestAverageChunkSize(t *testing.T) {
	buf := randomBuffer(t, 8<<20, 99)

	chunks := All(buf)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	total := 0
	for _, c := range chunks {
		total += c.Length
	}
	avg := float64(total) / float64(len(chunks))

	const target = 4096
	if avg < target*0.75 || avg > target*1.25 {
		t.Fatalf("average chunk size %.0f outside +/-25%% of %d", avg, target)
	}
}

func TestAllReconstructsBuffer(t *testing.T) {
	buf := randomBuffer(t, 200*1024, 5)

	chunks := All(buf)
	pos := 0
	for _, c := range chunks {
		if c.Start != pos {
			t.Fatalf("chunk start %d, expected %d", c.Start, pos)
		}
		pos += c.Length
	}
	if pos != len(buf) {
		t.Fatalf("chunks cover %d bytes, buffer is %d", pos, len(buf))
	}
}

func TestDetermineChunkSizeConcurrentDeterminism(t *testing.T) {
	buf := randomBuffer(t, 1<<20, 1234)
	want := All(buf)

	const goroutines = 8
	results := make([][]Chunk, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[g] = All(buf)
		}()
	}
	wg.Wait()

	for g, got := range results {
		if len(got) != len(want) {
			t.Fatalf("goroutine %d: got %d chunks, want %d", g, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("goroutine %d: chunk %d = %+v, want %+v", g, i, got[i], want[i])
			}
		}
	}
}

func TestShortBufferIsOneChunk(t *testing.T) {
	buf := randomBuffer(t, 100, 3)
	chunks := All(buf)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for short buffer, got %d", len(chunks))
	}
	if chunks[0].Length != len(buf) {
		t.Fatalf("expected chunk length %d, got %d", len(buf), chunks[0].Length)
	}
}

func TestEmptyBufferHasNoChunks(t *testing.T) {
	c := New(nil)
	if _, err := c.Next(); err == nil {
		t.Fatal("expected io.EOF from empty buffer")
	}
}
