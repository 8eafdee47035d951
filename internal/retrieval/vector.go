package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"resume-revamp/internal/llm"
	"resume-revamp/internal/shared/telemetry"
)

// ErrIndexMismatch is returned when an index was built for a different corpus.
var ErrIndexMismatch = errors.New("embedding index does not match corpus")

// Index holds precomputed embeddings for a corpus, in corpus order.
type Index struct {
	Model          string      `json:"model"`
	Dimension      int         `json:"dimension"`
	CorpusChecksum string      `json:"corpus_checksum"`
	CreatedAt      time.Time   `json:"created_at"`
	Vectors        [][]float32 `json:"vectors"`
}

// ReadIndex decodes an index written by WriteTo.
func ReadIndex(r io.Reader) (*Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	for i, v := range idx.Vectors {
		if len(v) != idx.Dimension {
			return nil, fmt.Errorf("decode index: vector %d has dimension %d, want %d", i, len(v), idx.Dimension)
		}
	}
	return &idx, nil
}

// WriteTo encodes the index as JSON.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(idx)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// BuildIndex embeds the corpus in batches of batch texts.
func BuildIndex(ctx context.Context, embedder llm.Embedder, model string, corpus Corpus, batch int) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if batch <= 0 {
		batch = 64
	}
	texts := corpus.Texts()
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		vecs, err := embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed corpus[%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed corpus[%d:%d]: got %d vectors", start, end, len(vecs))
		}
		vectors = append(vectors, vecs...)
		telemetry.Debug("retrieval.index_batch", map[string]any{"start": start, "end": end})
	}

	dim := 0
	for i, v := range vectors {
		if i == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("embed corpus: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return &Index{
		Model:          model,
		Dimension:      dim,
		CorpusChecksum: corpus.Checksum(),
		CreatedAt:      time.Now().UTC(),
		Vectors:        vectors,
	}, nil
}

// VectorRetriever ranks examples by cosine similarity to the embedded query.
// Embedding failures fall back to lexical ranking.
type VectorRetriever struct {
	corpus   Corpus
	index    *Index
	norms    []float64
	embedder llm.Embedder
	fallback Retriever
}

// NewVector validates the index against the corpus.
func NewVector(corpus Corpus, index *Index, embedder llm.Embedder) (*VectorRetriever, error) {
	if index == nil || embedder == nil {
		return nil, errors.New("index and embedder are required")
	}
	if len(index.Vectors) != len(corpus) {
		return nil, fmt.Errorf("%w: %d vectors for %d examples", ErrIndexMismatch, len(index.Vectors), len(corpus))
	}
	if index.CorpusChecksum != "" && index.CorpusChecksum != corpus.Checksum() {
		return nil, fmt.Errorf("%w: checksum differs", ErrIndexMismatch)
	}
	norms := make([]float64, len(index.Vectors))
	for i, v := range index.Vectors {
		norms[i] = norm(v)
	}
	return &VectorRetriever{
		corpus:   corpus,
		index:    index,
		norms:    norms,
		embedder: embedder,
		fallback: NewLexical(corpus),
	}, nil
}

// Similar returns the k nearest examples.
func (v *VectorRetriever) Similar(ctx context.Context, query string, k int) ([]Example, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := v.embedder.Embed(ctx, []string{query})
	if err == nil && (len(vecs) != 1 || len(vecs[0]) != v.index.Dimension) {
		err = fmt.Errorf("query embedding has unexpected shape")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		telemetry.Warn("retrieval.vector_fallback", map[string]any{"error": llm.SanitizeError(err)})
		return v.fallback.Similar(ctx, query, k)
	}

	q := vecs[0]
	qn := norm(q)
	scores := make([]float64, len(v.index.Vectors))
	for i, doc := range v.index.Vectors {
		scores[i] = cosine(q, qn, doc, v.norms[i])
	}
	return topK(v.corpus, scores, k, math.Inf(-1)), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

var _ Retriever = (*VectorRetriever)(nil)
