package main

import (
	"os"
	"testing"
)

func TestSizeStats(t *testing.T) {
	avg, min, max, median := sizeStats([]int{10, 20, 30, 40})
	if avg != 25 {
		t.Errorf("avg = %d, want 25", avg)
	}
	if min != 10 {
		t.Errorf("min = %d, want 10", min)
	}
	if max != 40 {
		t.Errorf("max = %d, want 40", max)
	}
	if median != 25 {
		t.Errorf("median = %d, want 25", median)
	}
}

func TestSizeStatsOdd(t *testing.T) {
	_, _, _, median := sizeStats([]int{5, 1, 9})
	if median != 5 {
		t.Errorf("median = %d, want 5", median)
	}
}

func TestRound2(t *testing.T) {
	if got := round2(33.33333); got != 33.33 {
		t.Errorf("round2(33.33333) = %v, want 33.33", got)
	}
	if got := round2(0); got != 0 {
		t.Errorf("round2(0) = %v, want 0", got)
	}
}

func TestAnalyzeDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("hello world, this is a test file with some bytes"))
	writeFile(t, dir, "b.txt", []byte("hello world, this is a test file with some bytes"))

	r, err := analyzeDirectory(dir)
	if err != nil {
		t.Fatalf("analyzeDirectory: %v", err)
	}
	if r.TotalChunks == 0 {
		t.Fatal("expected at least one chunk")
	}
	if r.UniqueChunks > r.TotalChunks {
		t.Fatalf("unique (%d) > total (%d)", r.UniqueChunks, r.TotalChunks)
	}
	// a.txt and b.txt are byte-identical, so every chunk should be a repeat.
	if r.RedundantChunks == 0 {
		t.Fatal("expected identical files to produce redundant chunks")
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(dir+"/"+name, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}
