package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"txtvec/config"
	"txtvec/internal/adapter/store"
	"txtvec/internal/adapter/vectorindex"
	"txtvec/internal/domain"
)

func main() {
	configPath := flag.String("config", "", "config file (default is ./txtvec.yaml)")
	corpus := flag.String("corpus", "", "corpus name under the data directory")
	topK := flag.Int("k", 10, "number of results per query")
	queries := flag.Int("n", 200, "number of stored vectors used as queries")
	nlist := flag.Int("nlist", 0, "IVF lists (default from config)")
	flag.Parse()

	if *corpus == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -corpus novels [-k 10] [-n 200] [-nlist 64]")
		fmt.Println("\nCompares approximate (IVF) search against exact search:")
		fmt.Println("  1. Recall@k of IVF for increasing nprobe")
		fmt.Println("  2. Average query latency of both")
		os.Exit(1)
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		wd, _ := os.Getwd()
		cfg, err = config.LoadFromDir(wd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *nlist <= 0 {
		*nlist = cfg.Search.NList
	}

	indexPath := config.IndexPath(cfg.DataDir, *corpus)
	idx, err := store.LoadFile(indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading index: %v\n", err)
		os.Exit(1)
	}
	if idx.Len() == 0 {
		fmt.Fprintln(os.Stderr, "Index is empty - run 'txtvec build' first")
		os.Exit(1)
	}

	fmt.Println("APPROXIMATE SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Index:     %s\n", indexPath)
	fmt.Printf("Entries:   %d\n", idx.Len())
	fmt.Printf("Dimension: %d\n", idx.Dimension())
	fmt.Println()

	sample := sampleQueries(idx.Entries(), *queries)

	exact := make([][]domain.SearchHit, len(sample))
	start := time.Now()
	for i, q := range sample {
		exact[i], _ = idx.Search(q, *topK)
	}
	flatLatency := time.Since(start) / time.Duration(len(sample))
	fmt.Printf("Exact search: %d queries, %s/query\n\n", len(sample), flatLatency)

	start = time.Now()
	ivf, err := vectorindex.BuildIVF(idx, *nlist, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building IVF: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("IVF built with %d lists in %s\n", ivf.Lists(), time.Since(start))
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("%8s  %10s  %14s\n", "nprobe", "recall@k", "latency/query")

	for _, nprobe := range probeSteps(ivf.Lists()) {
		approx := ivf.WithNProbe(nprobe)

		var found, total int
		start = time.Now()
		for i, q := range sample {
			hits, _ := approx.Search(q, *topK)
			found += overlap(exact[i], hits)
			total += len(exact[i])
		}
		latency := time.Since(start) / time.Duration(len(sample))

		recall := 1.0
		if total > 0 {
			recall = float64(found) / float64(total)
		}
		fmt.Printf("%8d  %10.3f  %14s\n", nprobe, recall, latency)
	}
	fmt.Println(strings.Repeat("=", 70))
}

// sampleQueries picks n stored vectors at an even stride.
func sampleQueries(entries []domain.IndexEntry, n int) [][]float32 {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = entries[i*len(entries)/n].Vector
	}
	return out
}

// probeSteps doubles nprobe from 1 up to all lists.
func probeSteps(lists int) []int {
	var steps []int
	for p := 1; p < lists; p *= 2 {
		steps = append(steps, p)
	}
	return append(steps, lists)
}

func overlap(exact, approx []domain.SearchHit) int {
	ids := make(map[int]struct{}, len(exact))
	for _, h := range exact {
		ids[h.ID] = struct{}{}
	}
	n := 0
	for _, h := range approx {
		if _, ok := ids[h.ID]; ok {
			n++
		}
	}
	return n
}
