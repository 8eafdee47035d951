// Package ats scores keyword overlap between a résumé and a job description.
//
// Scoring is intentionally naive: lower-cased Unicode word runs longer than two
// code points, compared as sets. Every function is pure and safe to call from
// concurrent requests.
package ats

import (
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// minTokenLen is the shortest token kept; shorter runs are treated as noise.
const minTokenLen = 3

// wordPattern matches a maximal run of letters, digits and '_'. Combining
// marks are not word characters, so decomposed accents split a word.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Result is the keyword coverage of a résumé against a job description.
type Result struct {
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
}

// Normalize lower-cases text and returns its word tokens longer than two code
// points, in order of appearance. Duplicates are kept.
func Normalize(text string) []string {
	if text == "" {
		return nil
	}
	// A Caser carries state, so one is built per call.
	lowered := cases.Lower(language.Und).String(text)
	words := wordPattern.FindAllString(lowered, -1)
	out := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minTokenLen {
			out = append(out, w)
		}
	}
	return out
}

// KeywordMatchScore compares the token sets of both texts. The score is the
// percentage of job tokens present in the résumé, rounded to two decimals, and
// zero when the job text has no tokens.
func KeywordMatchScore(resumeText, jobText string) Result {
	resumeTokens := tokenSet(resumeText)
	jobTokens := tokenSet(jobText)

	matched := make([]string, 0, len(jobTokens))
	missing := make([]string, 0, len(jobTokens))
	for tok := range jobTokens {
		if _, ok := resumeTokens[tok]; ok {
			matched = append(matched, tok)
		} else {
			missing = append(missing, tok)
		}
	}
	// Byte order on UTF-8 strings is codepoint order.
	sort.Strings(matched)
	sort.Strings(missing)

	score := 0.0
	if total := len(jobTokens); total > 0 {
		score = round2(float64(len(matched)) / float64(total) * 100)
	}
	return Result{
		Score:           score,
		MatchedKeywords: matched,
		MissingKeywords: missing,
	}
}

func tokenSet(text string) map[string]struct{} {
	tokens := Normalize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// round2 rounds the exact binary value of v to two decimals, ties to even.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
