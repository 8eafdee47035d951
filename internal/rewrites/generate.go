package rewrites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"resume-revamp/internal/cache"
	"resume-revamp/internal/llm"
	"resume-revamp/internal/llm/prompts"
	"resume-revamp/internal/retrieval"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/telemetry"
	"resume-revamp/resume/model"
)

// Sampling temperatures per call.
const (
	rewriteTemperature = 0.4
	coverTemperature   = 0.5
	fixTemperature     = 0
)

const cachePrefix = "rewrite:v1:"

// generation is the LLM-dependent part of a rewrite, and the cached value.
type generation struct {
	Resume      json.RawMessage `json:"resume"`
	Valid       bool            `json:"valid"`
	CoverLetter string          `json:"cover_letter"`

	resume model.Resume
}

func (s *Service) cacheKey(text string, in Input, tone string, version prompts.Version) string {
	return cache.Key(cachePrefix,
		s.Provider, s.Model, string(version), tone,
		text, in.JobDescription,
		in.CompanyName, in.RecipientName, in.SenderName, in.SenderEmail, in.SenderPhone,
	)
}

func (s *Service) lookup(ctx context.Context, key string) (generation, bool) {
	if s.Cache == nil {
		return generation{}, false
	}
	raw, err := s.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			telemetry.Warn("rewrite.cache_get_failed", map[string]any{"error": err.Error()})
		}
		metrics.IncCacheLookup(false)
		return generation{}, false
	}
	var gen generation
	if err := json.Unmarshal(raw, &gen); err != nil || !gen.Valid {
		metrics.IncCacheLookup(false)
		return generation{}, false
	}
	r, err := model.DecodeLenient(gen.Resume)
	if err != nil {
		metrics.IncCacheLookup(false)
		return generation{}, false
	}
	gen.resume = r
	metrics.IncCacheLookup(true)
	return gen, true
}

func (s *Service) remember(ctx context.Context, key string, gen generation) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(gen)
	if err != nil {
		return
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if err := s.Cache.Set(ctx, key, raw, ttl); err != nil {
		telemetry.Warn("rewrite.cache_set_failed", map[string]any{"error": err.Error()})
	}
}

// generate rewrites the résumé and writes the cover letter. Model output that
// cannot be decoded even after one repair attempt is kept as {"raw": ...}.
func (s *Service) generate(ctx context.Context, text string, in Input, tone string, version prompts.Version) (generation, error) {
	if s.LLM == nil {
		return generation{}, llm.ErrNotConfigured
	}
	examples := s.examples(ctx, in.JobDescription, version)
	p, err := prompts.Resume(version, prompts.ResumeInput{
		ResumeText:     text,
		JobDescription: in.JobDescription,
		Tone:           tone,
		Examples:       examples,
	})
	if err != nil {
		return generation{}, err
	}
	raw, err := s.LLM.Complete(ctx, llm.Request{
		System:      p.System,
		Prompt:      p.User,
		JSON:        true,
		Temperature: rewriteTemperature,
		Purpose:     "rewrite",
	})
	if err != nil {
		return generation{}, fmt.Errorf("rewrite completion: %w", err)
	}

	var gen generation
	resume, ok := decodeResume(raw, version)
	if !ok {
		resume, ok = s.repair(ctx, raw, version)
	}
	if ok {
		gen.resume = resume
		gen.Valid = true
		gen.Resume, err = json.Marshal(resume)
	} else {
		gen.Resume, err = json.Marshal(map[string]string{"raw": raw})
	}
	if err != nil {
		return generation{}, err
	}

	cover, err := prompts.CoverLetter(prompts.CoverLetterInput{
		ResumeText:     text,
		JobDescription: in.JobDescription,
		Tone:           tone,
		CompanyName:    in.CompanyName,
		RecipientName:  in.RecipientName,
		SenderName:     in.SenderName,
		SenderEmail:    in.SenderEmail,
		SenderPhone:    in.SenderPhone,
	})
	if err != nil {
		return generation{}, err
	}
	letter, err := s.LLM.Complete(ctx, llm.Request{
		System:      cover.System,
		Prompt:      cover.User,
		Temperature: coverTemperature,
		Purpose:     "cover_letter",
	})
	if err != nil {
		return generation{}, fmt.Errorf("cover letter completion: %w", err)
	}
	gen.CoverLetter = strings.TrimSpace(letter)
	return gen, nil
}

// repair asks the model once to turn its own output into valid JSON.
func (s *Service) repair(ctx context.Context, raw string, version prompts.Version) (model.Resume, bool) {
	p, err := prompts.FixJSON(raw)
	if err != nil {
		return model.Resume{}, false
	}
	fixed, err := s.LLM.Complete(ctx, llm.Request{
		System:      p.System,
		Prompt:      p.User,
		JSON:        true,
		Temperature: fixTemperature,
		Purpose:     "fix_json",
	})
	if err != nil {
		telemetry.Warn("rewrite.fix_json_failed", map[string]any{"error": llm.SanitizeError(err)})
		return model.Resume{}, false
	}
	r, ok := decodeResume(fixed, version)
	if !ok {
		telemetry.Warn("rewrite.invalid_llm_output", map[string]any{"prompt_version": string(version)})
	}
	return r, ok
}

func (s *Service) examples(ctx context.Context, query string, version prompts.Version) []string {
	if !version.UsesRetrieval() || s.Retriever == nil {
		return nil
	}
	found, err := s.Retriever.Similar(ctx, query, s.topK())
	if err != nil {
		telemetry.Warn("rewrite.retrieval_failed", map[string]any{"error": err.Error()})
		return nil
	}
	return retrieval.Texts(found)
}

// decodeResume applies the version's schema strictness. An empty résumé is
// treated as unusable output.
func decodeResume(raw string, version prompts.Version) (model.Resume, bool) {
	cleaned := []byte(llm.CleanJSON(raw))
	var (
		r   model.Resume
		err error
	)
	if version.Strict() {
		r, err = model.DecodeStrict(cleaned)
	} else {
		r, err = model.DecodeLenient(cleaned)
	}
	if err != nil || r.IsZero() {
		return model.Resume{}, false
	}
	return r, true
}
