// Package symptoms extracts canonical symptom tags from free text using
// keyword matching, TF-IDF similarity and an optional semantic encoder.
package symptoms

import (
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Skufu/proactivecare/internal/textvec"
)

const (
	GeneralMalaise = "general_malaise"

	SourceSemantic = "semantic+tfidf+keywords"
	SourceDefault  = "tfidf+keywords"

	DefaultTFIDFThreshold    = 0.12
	DefaultSemanticThreshold = 0.55
)

// Result is the outcome of one extraction. Tags are unique and sorted.
type Result struct {
	Tags   []string `json:"symptom_tags"`
	Source string   `json:"source"`
}

type Option func(*Extractor)

func WithEncoder(enc Encoder) Option {
	return func(e *Extractor) { e.encoder = enc }
}

func WithThresholds(tfidf, semantic float64) Option {
	return func(e *Extractor) {
		e.tfidfThreshold = tfidf
		e.semanticThreshold = semantic
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// Extractor is built once and is safe for concurrent use.
type Extractor struct {
	labels   []string
	keywords *KeywordMatcher

	vectorizer   *textvec.Vectorizer
	labelVectors []textvec.Vector

	encoder         Encoder
	labelEmbeddings [][]float32

	tfidfThreshold    float64
	semanticThreshold float64
	logger            *zap.Logger
}

// NewExtractor fits the TF-IDF vocabulary on one document per tag (its phrases
// joined) and, when an encoder is available, embeds the same documents.
func NewExtractor(ctx context.Context, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		labels:            Tags(),
		encoder:           AbsentEncoder{},
		tfidfThreshold:    DefaultTFIDFThreshold,
		semanticThreshold: DefaultSemanticThreshold,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	keywords, err := NewKeywordMatcher(Phrases)
	if err != nil {
		return nil, err
	}
	e.keywords = keywords

	corpus := lo.Map(e.labels, func(tag string, _ int) string {
		return strings.Join(Phrases[tag], " ")
	})
	e.vectorizer = textvec.Fit(corpus, 2, 0)
	e.labelVectors = lo.Map(corpus, func(doc string, _ int) textvec.Vector {
		return e.vectorizer.Transform(doc)
	})

	if e.encoder.Available() {
		embeddings, err := e.encoder.Encode(ctx, corpus)
		if err != nil || len(embeddings) != len(corpus) {
			e.logger.Warn("label embedding failed, semantic source disabled", zap.Error(err))
			e.encoder = AbsentEncoder{}
		} else {
			e.labelEmbeddings = embeddings
		}
	}
	return e, nil
}

// SemanticEnabled reports whether the encoder source takes part.
func (e *Extractor) SemanticEnabled() bool {
	return e.encoder.Available()
}

// Extract never fails. An encoder error only drops the semantic source for
// this call.
func (e *Extractor) Extract(ctx context.Context, text string) Result {
	found := e.keywords.Match(text)
	for tag := range e.tfidfTags(text) {
		found[tag] = struct{}{}
	}
	semantic := e.semanticTags(ctx, text)
	for tag := range semantic {
		found[tag] = struct{}{}
	}

	tags := lo.Keys(found)
	sort.Strings(tags)
	if len(tags) == 0 {
		tags = []string{GeneralMalaise}
	}
	source := SourceDefault
	if len(semantic) > 0 {
		source = SourceSemantic
	}
	return Result{Tags: tags, Source: source}
}

func (e *Extractor) tfidfTags(text string) map[string]struct{} {
	out := make(map[string]struct{})
	vec := e.vectorizer.Transform(textvec.Normalize(text))
	if vec.Len() == 0 {
		return out
	}
	for i, label := range e.labelVectors {
		if textvec.Dot(label, vec) >= e.tfidfThreshold {
			out[e.labels[i]] = struct{}{}
		}
	}
	return out
}

func (e *Extractor) semanticTags(ctx context.Context, text string) map[string]struct{} {
	out := make(map[string]struct{})
	if !e.encoder.Available() || len(e.labelEmbeddings) == 0 {
		return out
	}
	embeddings, err := e.encoder.Encode(ctx, []string{text})
	if err != nil || len(embeddings) != 1 {
		e.logger.Warn("semantic extraction skipped", zap.Error(err))
		return out
	}
	for i, label := range e.labelEmbeddings {
		if cosine(embeddings[0], label) > e.semanticThreshold {
			out[e.labels[i]] = struct{}{}
		}
	}
	return out
}
