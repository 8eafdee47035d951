// Package retrieval selects example résumé bullets that ground the v3_rag prompt.
package retrieval

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

//go:embed corpus/bullets.jsonl
var embeddedCorpus []byte

// Industries present in the bundled corpus.
var Industries = []string{"tech", "marketing", "finance", "healthcare", "education"}

// Example is one corpus bullet. Score is set on retrieval results.
type Example struct {
	Text     string  `json:"text"`
	Industry string  `json:"industry"`
	Score    float64 `json:"score,omitempty"`
}

// Corpus is an ordered list of example bullets. Order is significant: ties
// break by position and index vectors are stored in the same order.
type Corpus []Example

// Retriever returns the k examples most similar to query.
type Retriever interface {
	Similar(ctx context.Context, query string, k int) ([]Example, error)
}

// DefaultCorpus parses the bundled corpus.
func DefaultCorpus() (Corpus, error) {
	return ReadCorpus(bytes.NewReader(embeddedCorpus))
}

// ReadCorpus parses JSON Lines of {"text","industry"} objects, skipping blank lines.
func ReadCorpus(r io.Reader) (Corpus, error) {
	var out Corpus
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(raw, &ex); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		ex.Text = strings.TrimSpace(ex.Text)
		if ex.Text == "" {
			return nil, fmt.Errorf("corpus line %d: empty text", line)
		}
		ex.Score = 0
		out = append(out, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return out, nil
}

// Texts returns the bullet texts in corpus order.
func (c Corpus) Texts() []string {
	out := make([]string, len(c))
	for i, ex := range c {
		out[i] = ex.Text
	}
	return out
}

// Checksum identifies the corpus content so a stale index can be detected.
func (c Corpus) Checksum() string {
	h := sha256.New()
	for _, ex := range c {
		h.Write([]byte(ex.Industry))
		h.Write([]byte{0})
		h.Write([]byte(ex.Text))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Texts extracts the bullet text of retrieval results.
func Texts(examples []Example) []string {
	out := make([]string, len(examples))
	for i, ex := range examples {
		out[i] = ex.Text
	}
	return out
}
