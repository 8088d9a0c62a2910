package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docqa/config"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/store"
	"docqa/internal/port"
)

func main() {
	rootDir := flag.String("dir", ".", "Directory holding docqa.yaml and the index")
	profile := flag.String("profile", "", "Built-in profile (overrides docqa.yaml)")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 5, "Number of results")
	runs := flag.Int("n", 20, "Search repetitions for latency")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir . -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Index contents (chunks, vectors, embedding model)")
		fmt.Println("  2. Semantic similarity of the top matches")
		fmt.Println("  3. Embedding and search latency")
		os.Exit(1)
	}

	cfg, err := loadConfig(*rootDir, *profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewBoltStore(config.IndexDBPath(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	embedder, vectorStore, err := setupEmbedding(ctx, st, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Semantic search not available: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	stats, _ := st.GetStats()
	count, _ := vectorStore.Count(ctx)
	fmt.Printf("Documents: %d  Chunks: %d  Vectors: %d\n", stats.TotalDocs, stats.TotalChunks, count)
	fmt.Printf("Store: %s (%s)\n", cfg.Store.Backend, cfg.Store.PersistDir)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	embedStart := time.Now()
	queryVec, err := embedder.EmbedQuery(ctx, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	embedLatency := time.Since(embedStart)
	fmt.Printf("Query embedded: %d dimensions in %s\n\n", len(queryVec), embedLatency.Round(time.Millisecond))

	var results []port.VectorResult
	latencies := make([]time.Duration, 0, *runs)
	for i := 0; i < max(*runs, 1); i++ {
		start := time.Now()
		results, err = vectorStore.Search(ctx, queryVec, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		chunk, err := st.GetChunk(r.ID)
		if err != nil {
			fmt.Printf("%d. [%.3f] %s (not in catalog)\n\n", i+1, r.Score, r.ID)
			continue
		}
		doc, _ := st.GetDoc(chunk.DocID)

		preview := chunk.Text
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")

		similarity := r.Score
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		} else if similarity > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s#%d\n", i+1, rating, similarity, filepath.Base(doc.Path), chunk.Seq)
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-indexing")
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Printf("\nLATENCY (%d searches):\n", len(latencies))
	fmt.Printf("  Embed query: %s\n", embedLatency.Round(time.Microsecond))
	fmt.Printf("  Search p50:  %s\n", latencies[len(latencies)/2].Round(time.Microsecond))
	fmt.Printf("  Search p95:  %s\n", latencies[len(latencies)*95/100].Round(time.Microsecond))
	fmt.Printf("  Search max:  %s\n", latencies[len(latencies)-1].Round(time.Microsecond))
}

func loadConfig(dir, profile string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if profile != "" {
		cfg, err = config.Profile(profile)
	} else {
		cfg, err = config.LoadFromDir(dir)
	}
	if err != nil {
		return nil, err
	}
	if cfg, err = config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if cfg.Store.Backend == "memory" {
		return nil, fmt.Errorf("profile %s keeps its index in memory; nothing to benchmark", cfg.Profile)
	}
	if !filepath.IsAbs(cfg.Store.PersistDir) {
		cfg.Store.PersistDir = filepath.Join(dir, cfg.Store.PersistDir)
	}
	return cfg, nil
}

func setupEmbedding(ctx context.Context, st *store.BoltStore, cfg *config.Config) (port.Embedder, port.VectorStore, error) {
	embedder, err := embedding.New(cfg.Embedding, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder init failed: %w", err)
	}

	var vectorStore port.VectorStore
	if cfg.Store.Backend == "chroma" {
		vectorStore, err = store.NewChromemStore(cfg.Store.PersistDir, cfg.Store.Collection)
	} else {
		vectorStore, err = store.NewBoltVectorStore(st.DB(), 0)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("vector store failed: %w", err)
	}

	count, _ := vectorStore.Count(ctx)
	if count == 0 {
		return nil, nil, fmt.Errorf("no embeddings - run 'docqa index' first")
	}

	return embedder, vectorStore, nil
}
