package main

// Precompute embeddings for the retrieval corpus:
//   go run ./cmd/corpusindex -out ./data/corpus_index.json

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"resume-revamp/internal/llm"
	"resume-revamp/internal/llm/gemini"
	openai "resume-revamp/internal/llm/openai"
	"resume-revamp/internal/retrieval"
	"resume-revamp/internal/shared/config"
)

func main() {
	cfg := config.Load()

	corpusPath := flag.String("corpus", "", "JSONL corpus (defaults to the bundled corpus)")
	outPath := flag.String("out", cfg.RetrievalIndex, "output path for the index")
	provider := flag.String("provider", cfg.LLMProvider, "embedding provider (openai or gemini)")
	model := flag.String("model", cfg.EmbeddingModel, "embedding model")
	batch := flag.Int("batch", 64, "texts per embedding request")
	flag.Parse()

	if strings.TrimSpace(*outPath) == "" {
		exitErr("-out is required")
	}
	ctx := context.Background()

	corpus, err := loadCorpus(*corpusPath)
	if err != nil {
		exitErr(err.Error())
	}
	embedder, err := buildEmbedder(ctx, cfg, *provider, *model)
	if err != nil {
		exitErr(err.Error())
	}

	idx, err := retrieval.BuildIndex(ctx, embedder, *model, corpus, *batch)
	if err != nil {
		exitErr(fmt.Sprintf("build index: %v", err))
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		exitErr(fmt.Sprintf("create output dir: %v", err))
	}
	f, err := os.Create(*outPath)
	if err != nil {
		exitErr(fmt.Sprintf("create index: %v", err))
	}
	if _, err := idx.WriteTo(f); err != nil {
		_ = f.Close()
		exitErr(fmt.Sprintf("write index: %v", err))
	}
	if err := f.Close(); err != nil {
		exitErr(fmt.Sprintf("close index: %v", err))
	}
	fmt.Printf("OK: %d vectors (dim %d) written to %s\n", len(idx.Vectors), idx.Dimension, *outPath)
}

func loadCorpus(path string) (retrieval.Corpus, error) {
	if strings.TrimSpace(path) == "" {
		return retrieval.DefaultCorpus()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return retrieval.ReadCorpus(f)
}

func buildEmbedder(ctx context.Context, cfg config.Config, provider, model string) (llm.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return openai.NewEmbedder(cfg.OpenAIAPIKey, model)
	case "gemini":
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel, model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
