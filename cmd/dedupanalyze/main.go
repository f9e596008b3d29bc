// Command dedupanalyze walks a directory tree, content-defined-chunks
// every regular file it finds, and reports redundancy statistics as a
// read-only client of the chunking and digest packages, filled in here
// from the original dedupAnalyzer.py.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/MasterSpider-beep/licentaDedup/internal/chunker"
	"github.com/MasterSpider-beep/licentaDedup/internal/digest"
	"github.com/MasterSpider-beep/licentaDedup/internal/errors"
)

func init() {
	_, _ = maxprocs.Set()
}

var cmdRoot = &cobra.Command{
	Use:           "dedupanalyze directory",
	Short:         "Report content-defined-chunking redundancy statistics for a directory",
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := analyzeDirectory(args[0])
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// report mirrors dedupAnalyzer.py's report() dict, field for field.
type report struct {
	TotalChunks       int
	UniqueChunks      int
	RedundantChunks   int
	RedundancyPercent float64
	AverageChunkSize  int
	MinChunkSize      int
	MaxChunkSize      int
	MedianChunkSize   int
}

func analyzeDirectory(root string) (report, error) {
	counts := make(map[string]int)
	var sizes []int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			return nil
		}

		for _, c := range chunker.All(data) {
			h := digest.Of(data[c.Start : c.Start+c.Length])
			counts[h]++
			sizes = append(sizes, c.Length)
		}
		return nil
	})
	if err != nil {
		return report{}, errors.Wrapf(err, "walking %s", root)
	}

	total := len(sizes)
	unique := len(counts)
	r := report{
		TotalChunks:     total,
		UniqueChunks:    unique,
		RedundantChunks: total - unique,
	}
	if total > 0 {
		r.RedundancyPercent = round2(float64(r.RedundantChunks) / float64(total) * 100)
		r.AverageChunkSize, r.MinChunkSize, r.MaxChunkSize, r.MedianChunkSize = sizeStats(sizes)
	}
	return r, nil
}

func sizeStats(sizes []int) (avg, min, max, median int) {
	sum := 0
	min, max = sizes[0], sizes[0]
	for _, s := range sizes {
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	avg = sum / len(sizes)

	sorted := append([]int(nil), sizes...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}
	return avg, min, max, median
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func printReport(r report) {
	fmt.Println("\nDeduplication Suitability Report:")
	fmt.Printf("Total Chunks: %d\n", r.TotalChunks)
	fmt.Printf("Unique Chunks: %d\n", r.UniqueChunks)
	fmt.Printf("Redundant Chunks: %d\n", r.RedundantChunks)
	fmt.Printf("Redundancy Ratio: %.2f\n", r.RedundancyPercent)
	fmt.Printf("Average Chunk Size: %d\n", r.AverageChunkSize)
	fmt.Printf("Min Chunk Size: %d\n", r.MinChunkSize)
	fmt.Printf("Max Chunk Size: %d\n", r.MaxChunkSize)
	fmt.Printf("Median Chunk Size: %d\n", r.MedianChunkSize)
}
