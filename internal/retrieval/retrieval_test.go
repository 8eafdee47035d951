package retrieval

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCorpusIsBalanced(t *testing.T) {
	corpus, err := DefaultCorpus()
	require.NoError(t, err)
	require.Len(t, corpus, 380)

	counts := map[string]int{}
	for _, ex := range corpus {
		counts[ex.Industry]++
		assert.NotEmpty(t, ex.Text)
	}
	for _, industry := range Industries {
		assert.Equal(t, 76, counts[industry], industry)
	}
}

func TestReadCorpusErrors(t *testing.T) {
	_, err := ReadCorpus(strings.NewReader(`{"text":"ok","industry":"tech"}` + "\n" + `not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadCorpus(strings.NewReader(`{"text":"  ","industry":"tech"}`))
	require.Error(t, err)
}

var smallCorpus = Corpus{
	{Text: "Migrated legacy systems to AWS, improving reliability by 40%.", Industry: "tech"},
	{Text: "Managed $500K ad budget, generating a 4.5x ROAS.", Industry: "marketing"},
	{Text: "Built AWS data pipelines for finance reporting.", Industry: "finance"},
	{Text: "Migrated patient records to a new EHR system.", Industry: "healthcare"},
}

func TestLexicalRanksByOverlap(t *testing.T) {
	r := NewLexical(smallCorpus)
	got, err := r.Similar(context.Background(), "AWS cloud migration of legacy systems", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, smallCorpus[0].Text, got[0].Text)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestLexicalTiesKeepCorpusOrderAndDropZero(t *testing.T) {
	corpus := Corpus{
		{Text: "alpha beta", Industry: "tech"},
		{Text: "gamma delta", Industry: "tech"},
		{Text: "alpha beta", Industry: "finance"},
	}
	got, err := NewLexical(corpus).Similar(context.Background(), "alpha beta", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tech", got[0].Industry)
	assert.Equal(t, "finance", got[1].Industry)
	assert.Equal(t, 1.0, got[0].Score)
}

func TestLexicalEmptyQueryAndK(t *testing.T) {
	r := NewLexical(smallCorpus)
	got, err := r.Similar(context.Background(), "a an to", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Similar(context.Background(), "AWS", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLexicalDeterministic(t *testing.T) {
	corpus, err := DefaultCorpus()
	require.NoError(t, err)
	r := NewLexical(corpus)
	first, err := r.Similar(context.Background(), "Kubernetes platform engineer reducing deployment time with CI/CD", 5)
	require.NoError(t, err)
	second, err := r.Similar(context.Background(), "Kubernetes platform engineer reducing deployment time with CI/CD", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func fakeVectors() map[string][]float32 {
	return map[string][]float32{
		smallCorpus[0].Text: {1, 0, 0},
		smallCorpus[1].Text: {0, 1, 0},
		smallCorpus[2].Text: {0.8, 0.2, 0},
		smallCorpus[3].Text: {0, 0, 1},
		"cloud migration":   {1, 0.1, 0},
	}
}

func TestBuildIndexBatchesAndValidates(t *testing.T) {
	emb := &fakeEmbedder{vectors: fakeVectors()}
	idx, err := BuildIndex(context.Background(), emb, "test-embed", smallCorpus, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, 3, idx.Dimension)
	assert.Len(t, idx.Vectors, len(smallCorpus))
	assert.Equal(t, smallCorpus.Checksum(), idx.CorpusChecksum)

	var buf bytes.Buffer
	_, err = idx.WriteTo(&buf)
	require.NoError(t, err)
	back, err := ReadIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Vectors, back.Vectors)
	assert.Equal(t, "test-embed", back.Model)
}

func TestReadIndexRejectsRaggedVectors(t *testing.T) {
	_, err := ReadIndex(strings.NewReader(`{"model":"m","dimension":2,"vectors":[[1,0],[1]]}`))
	require.Error(t, err)
}

func TestVectorRetrieverRanksByCosine(t *testing.T) {
	emb := &fakeEmbedder{vectors: fakeVectors()}
	idx, err := BuildIndex(context.Background(), emb, "m", smallCorpus, 0)
	require.NoError(t, err)

	r, err := NewVector(smallCorpus, idx, emb)
	require.NoError(t, err)
	got, err := r.Similar(context.Background(), "cloud migration", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, smallCorpus[0].Text, got[0].Text)
	assert.Equal(t, smallCorpus[2].Text, got[1].Text)
}

func TestVectorRetrieverFallsBackToLexical(t *testing.T) {
	emb := &fakeEmbedder{vectors: fakeVectors()}
	idx, err := BuildIndex(context.Background(), emb, "m", smallCorpus, 0)
	require.NoError(t, err)
	r, err := NewVector(smallCorpus, idx, emb)
	require.NoError(t, err)

	emb.err = errors.New("openai http status 503")
	got, err := r.Similar(context.Background(), "Migrated legacy systems to AWS", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, smallCorpus[0].Text, got[0].Text)
}

func TestNewVectorRejectsMismatchedIndex(t *testing.T) {
	idx := &Index{Dimension: 1, Vectors: [][]float32{{1}}}
	_, err := NewVector(smallCorpus, idx, &fakeEmbedder{})
	require.ErrorIs(t, err, ErrIndexMismatch)

	idx = &Index{Dimension: 1, CorpusChecksum: "stale", Vectors: make([][]float32, len(smallCorpus))}
	_, err = NewVector(smallCorpus, idx, &fakeEmbedder{})
	require.ErrorIs(t, err, ErrIndexMismatch)
}
