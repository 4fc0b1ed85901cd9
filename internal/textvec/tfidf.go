// Package textvec turns short clinical texts into sparse TF-IDF vectors over a
// vocabulary of word unigrams and bigrams.
package textvec

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blugelabs/bluge/analysis"
	"github.com/blugelabs/bluge/analysis/token"
	"github.com/blugelabs/bluge/analysis/tokenizer"
	"golang.org/x/text/unicode/norm"
)

var analyzer = &analysis.Analyzer{
	Tokenizer:    tokenizer.NewUnicodeTokenizer(),
	TokenFilters: []analysis.TokenFilter{token.NewLowerCaseFilter()},
}

// Normalize applies NFKC, lower-cases and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFKC.String(text))), " ")
}

// Tokens returns the words of text that are at least two characters long.
func Tokens(text string) []string {
	stream := analyzer.Analyze([]byte(norm.NFKC.String(text)))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if utf8.RuneCount(tok.Term) < 2 {
			continue
		}
		out = append(out, string(tok.Term))
	}
	return out
}

// Terms expands text into n-grams of 1..maxN words joined by single spaces.
func Terms(text string, maxN int) []string {
	words := Tokens(text)
	if maxN < 1 {
		maxN = 1
	}
	out := make([]string, 0, len(words)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}

// Vectorizer is a fitted TF-IDF model. It is immutable after Fit and safe for
// concurrent Transform calls.
type Vectorizer struct {
	MaxNGram   int            `json:"max_ngram"`
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// Fit builds the vocabulary from docs. maxFeatures > 0 keeps only the terms
// with the highest corpus frequency. IDF is smoothed: ln((1+n)/(1+df)) + 1.
func Fit(docs []string, maxNGram, maxFeatures int) *Vectorizer {
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range Terms(doc, maxNGram) {
			tf[term]++
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if maxFeatures > 0 && len(terms) > maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] == tf[terms[j]] {
				return terms[i] < terms[j]
			}
			return tf[terms[i]] > tf[terms[j]]
		})
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	v := &Vectorizer{
		MaxNGram:   maxNGram,
		Vocabulary: make(map[string]int, len(terms)),
		IDF:        make([]float64, len(terms)),
	}
	n := float64(len(docs))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return v
}

func (v *Vectorizer) Size() int { return len(v.IDF) }

// FeatureNames returns vocabulary terms by column index.
func (v *Vectorizer) FeatureNames() []string {
	names := make([]string, len(v.IDF))
	for term, idx := range v.Vocabulary {
		names[idx] = term
	}
	return names
}

// Transform returns the L2-normalised TF-IDF vector of text. Out-of-vocabulary
// terms are ignored.
func (v *Vectorizer) Transform(text string) Vector {
	counts := make(map[int]float64)
	for _, term := range Terms(text, v.MaxNGram) {
		if idx, ok := v.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	out := Vector{Index: make([]int, 0, len(counts)), Value: make([]float64, 0, len(counts))}
	for idx := range counts {
		out.Index = append(out.Index, idx)
	}
	sort.Ints(out.Index)

	var norm2 float64
	for _, idx := range out.Index {
		w := counts[idx] * v.IDF[idx]
		out.Value = append(out.Value, w)
		norm2 += w * w
	}
	if norm2 > 0 {
		scale := 1 / math.Sqrt(norm2)
		for i := range out.Value {
			out.Value[i] *= scale
		}
	}
	return out
}

// Vector is a sparse vector with ascending indices.
type Vector struct {
	Index []int
	Value []float64
}

func (a Vector) Len() int { return len(a.Index) }

// Dot is the inner product of two sparse vectors. For Transform outputs this
// is their cosine similarity.
func Dot(a, b Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Index) && j < len(b.Index) {
		switch {
		case a.Index[i] == b.Index[j]:
			sum += a.Value[i] * b.Value[j]
			i++
			j++
		case a.Index[i] < b.Index[j]:
			i++
		default:
			j++
		}
	}
	return sum
}
