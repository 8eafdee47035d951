package main

// Print the rendered prompts, or run one preview rewrite against the model:
//   go run ./cmd/prompttest -resume cv.pdf -jd jd.txt -prompt-version v3_rag -dry-run
//   go run ./cmd/prompttest -resume cv.pdf -jd jd.txt

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"resume-revamp/internal/cache"
	"resume-revamp/internal/extract"
	"resume-revamp/internal/llm"
	"resume-revamp/internal/llm/gemini"
	openai "resume-revamp/internal/llm/openai"
	"resume-revamp/internal/llm/prompts"
	"resume-revamp/internal/retrieval"
	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/shared/config"
	localstore "resume-revamp/internal/shared/storage/object/local"
	"resume-revamp/internal/usage"
)

func main() {
	cfg := config.Load()

	resumePath := flag.String("resume", "", "Path to resume file (pdf, docx or txt)")
	jdPath := flag.String("jd", "", "Path to job description file")
	promptVersion := flag.String("prompt-version", cfg.PromptVersion, "Prompt version (v1, v2_1 or v3_rag)")
	tone := flag.String("tone", "confident", "Tone (formal, modern, confident or impactful)")
	outPath := flag.String("out", "", "Path to write the JSON output (optional)")
	provider := flag.String("provider", cfg.LLMProvider, "LLM provider")
	model := flag.String("model", cfg.LLMModel, "LLM model")
	dryRun := flag.Bool("dry-run", false, "print the rendered prompts without calling the model")
	flag.Parse()

	if strings.TrimSpace(*resumePath) == "" || strings.TrimSpace(*jdPath) == "" {
		exitErr("-resume and -jd are required")
	}
	resumeBytes, err := os.ReadFile(*resumePath)
	if err != nil {
		exitErr(fmt.Sprintf("read resume: %v", err))
	}
	jdBytes, err := os.ReadFile(*jdPath)
	if err != nil {
		exitErr(fmt.Sprintf("read job description: %v", err))
	}

	ctx := context.Background()
	corpus, err := retrieval.DefaultCorpus()
	if err != nil {
		exitErr(fmt.Sprintf("load corpus: %v", err))
	}
	retriever := retrieval.NewLexical(corpus)

	if *dryRun {
		if err := printPrompts(ctx, os.Stdout, retriever, filepath.Base(*resumePath), resumeBytes, string(jdBytes), *promptVersion, *tone, cfg.RetrievalTopK); err != nil {
			exitErr(err.Error())
		}
		return
	}

	client, err := buildClient(ctx, cfg, *provider, *model)
	if err != nil {
		exitErr(err.Error())
	}
	tmp, err := os.MkdirTemp("", "prompttest-")
	if err != nil {
		exitErr(err.Error())
	}
	defer os.RemoveAll(tmp)

	svc := &rewrites.Service{
		Repo:      rewrites.NewMemoryRepo(),
		Usage:     usage.NewService(1),
		Store:     localstore.New(tmp),
		LLM:       llm.WithRetry(client),
		Retriever: retriever,
		Cache:     cache.NewMemory(),
		Provider:  *provider,
		Model:     *model,
		TopK:      cfg.RetrievalTopK,
	}
	out, err := svc.Rewrite(ctx, rewrites.Input{
		UserID:         "cli:prompttest",
		FileName:       filepath.Base(*resumePath),
		File:           resumeBytes,
		JobDescription: string(jdBytes),
		Tone:           *tone,
		PromptVersion:  *promptVersion,
	})
	if err != nil {
		exitErr(fmt.Sprintf("rewrite: %v", err))
	}

	pretty, err := json.MarshalIndent(map[string]any{
		"valid_output": out.Rewrite.ValidOutput,
		"resume":       out.Rewrite.Resume,
		"cover_letter": out.Rewrite.CoverLetter,
		"ats_audit":    out.Rewrite.Audit,
	}, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	pretty = append(pretty, '\n')

	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	if _, err := os.Stdout.Write(pretty); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
}

func printPrompts(ctx context.Context, w io.Writer, retriever retrieval.Retriever, fileName string, data []byte, jobDescription, rawVersion, tone string, topK int) error {
	version, err := prompts.ParseVersion(rawVersion)
	if err != nil {
		return err
	}
	text, err := extract.ExtractTextFromBytes(ctx, data, "", fileName)
	if err != nil {
		return fmt.Errorf("extract resume text: %w", err)
	}

	var examples []string
	if version.UsesRetrieval() {
		found, err := retriever.Similar(ctx, jobDescription, topK)
		if err != nil {
			return fmt.Errorf("retrieve examples: %w", err)
		}
		examples = retrieval.Texts(found)
	}

	resumePrompt, err := prompts.Resume(version, prompts.ResumeInput{
		ResumeText:     text,
		JobDescription: jobDescription,
		Tone:           tone,
		Examples:       examples,
	})
	if err != nil {
		return err
	}
	coverPrompt, err := prompts.CoverLetter(prompts.CoverLetterInput{
		ResumeText:     text,
		JobDescription: jobDescription,
		Tone:           tone,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "=== resume (%s)\n%s\n\n=== cover letter\n%s\n", version, resumePrompt, coverPrompt)
	return err
}

func buildClient(ctx context.Context, cfg config.Config, provider, model string) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, model)
	case "gemini":
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, model, cfg.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
