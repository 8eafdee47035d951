package retrieval

import (
	"context"
	"sort"

	"resume-revamp/internal/ats"
)

// LexicalRetriever ranks examples by Jaccard overlap of their keyword sets.
// It is deterministic and needs no external service.
type LexicalRetriever struct {
	corpus Corpus
	tokens []map[string]struct{}
}

// NewLexical precomputes token sets for every corpus entry.
func NewLexical(corpus Corpus) *LexicalRetriever {
	tokens := make([]map[string]struct{}, len(corpus))
	for i, ex := range corpus {
		tokens[i] = tokenSet(ex.Text)
	}
	return &LexicalRetriever{corpus: corpus, tokens: tokens}
}

// Similar returns up to k examples with a non-zero score, best first.
func (l *LexicalRetriever) Similar(ctx context.Context, query string, k int) ([]Example, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	q := tokenSet(query)
	if len(q) == 0 {
		return nil, nil
	}
	scores := make([]float64, len(l.corpus))
	for i, doc := range l.tokens {
		scores[i] = jaccard(q, doc)
	}
	return topK(l.corpus, scores, k, 0), nil
}

func tokenSet(text string) map[string]struct{} {
	toks := ats.Normalize(text)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// topK picks the k highest scores above floor; ties keep corpus order.
func topK(corpus Corpus, scores []float64, k int, floor float64) []Example {
	idx := make([]int, 0, len(scores))
	for i, s := range scores {
		if s > floor {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if len(idx) > k {
		idx = idx[:k]
	}
	out := make([]Example, len(idx))
	for i, j := range idx {
		out[i] = corpus[j]
		out[i].Score = scores[j]
	}
	return out
}

var _ Retriever = (*LexicalRetriever)(nil)
