package rewrites

import (
	"context"
	"errors"
	"sync"
	"testing"

	"resume-revamp/internal/cache"
	"resume-revamp/internal/llm"
	"resume-revamp/internal/packaging"
	localstore "resume-revamp/internal/shared/storage/object/local"
	"resume-revamp/internal/usage"
)

const validResumeJSON = `{
  "header": {"name": "Jane Doe", "email": "jane@example.com", "phone": "555-0100"},
  "summary": "Backend engineer building Go services on Kubernetes",
  "experience": [
    {"title": "Senior Engineer", "company": "Acme", "dates": "2020-2024",
     "bullets": ["Migrated billing to Postgres", "Cut latency with Redis caching"]}
  ],
  "education": [
    {"degree": "BSc Computer Science", "institution": "State University", "dates": "2012-2016"}
  ],
  "skills": ["Go", "Kubernetes", "Postgres"]
}`

const testJobDescription = "Hiring a Go engineer with Kubernetes and Postgres experience"

// fakeLLM answers by request purpose and records every call.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     map[string]int
	requests  []llm.Request
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		responses: map[string][]string{
			"rewrite":      {validResumeJSON},
			"cover_letter": {"Dear hiring manager,\nI build Go services."},
		},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	n := f.calls[req.Purpose]
	f.calls[req.Purpose]++
	if err := f.errs[req.Purpose]; err != nil {
		return "", err
	}
	answers := f.responses[req.Purpose]
	if len(answers) == 0 {
		return "", errors.New("no canned response for " + req.Purpose)
	}
	if n >= len(answers) {
		n = len(answers) - 1
	}
	return answers[n], nil
}

func (f *fakeLLM) count(purpose string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[purpose]
}

// recordingDispatcher captures delivery jobs and can fail on demand.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []DeliveryJob
	err  error
	repo Repo
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job DeliveryJob) error {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.repo != nil {
		return d.repo.UpdateStatus(ctx, job.RewriteID, StatusUpdate{Status: StatusEmailed})
	}
	return nil
}

type testEnv struct {
	svc      *Service
	llm      *fakeLLM
	repo     *MemoryRepo
	usage    *usage.Service
	cache    *cache.Memory
	delivery *recordingDispatcher
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()
	repo := NewMemoryRepo()
	fake := newFakeLLM()
	mem := cache.NewMemory()
	usageSvc := usage.NewService(limit)
	delivery := &recordingDispatcher{repo: repo}
	svc := &Service{
		Repo:     repo,
		Usage:    usageSvc,
		Store:    localstore.New(t.TempDir()),
		LLM:      fake,
		Cache:    mem,
		Packager: packaging.NewBuilder(nil),
		Delivery: delivery,
		Provider: "fake",
		Model:    "fake-1",
	}
	return &testEnv{svc: svc, llm: fake, repo: repo, usage: usageSvc, cache: mem, delivery: delivery}
}

func baseInput() Input {
	return Input{
		UserID:         "guest:abc",
		RequestID:      "req-1",
		FileName:       "resume.txt",
		ContentType:    "text/plain",
		File:           []byte("Jane Doe\nGo engineer\nKubernetes operator work"),
		JobDescription: testJobDescription,
		Tone:           "modern",
	}
}
