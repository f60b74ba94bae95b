package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/factstore/internal/model"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
)

const (
	// DefaultTopK bounds the result count when the caller does not.
	DefaultTopK = 8
	// maxSuffixAttempts caps how many word-suffix patterns stage one tries.
	maxSuffixAttempts = 4
	// termFilterFetchLimit caps how many rows the client-side term
	// filter pulls from the store.
	termFilterFetchLimit = 100
)

// SearchRepo is the persistence boundary for the read path.
type SearchRepo interface {
	SearchByVector(ctx context.Context, vec []float32, topK int) ([]model.ScoredDocument, error)
	FilterByPattern(ctx context.Context, pattern string, limit int) ([]model.Document, error)
	List(ctx context.Context, limit int) ([]model.Document, error)
}

// lexicalStage is one best-effort strategy of the fallback chain. Stages
// run in order until one yields a non-empty result; stage errors are
// absorbed, not propagated.
type lexicalStage struct {
	name string
	run  func(ctx context.Context, query string, topK int) ([]model.Document, error)
}

type SearchService struct {
	repo        SearchRepo
	embedder    Embedder
	defaultTopK int
	stages      []lexicalStage
}

func NewSearchService(repo SearchRepo, embedder Embedder, defaultTopK int) *SearchService {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	s := &SearchService{repo: repo, embedder: embedder, defaultTopK: defaultTopK}
	s.stages = []lexicalStage{
		{name: "token_suffix", run: s.matchTokenSuffix},
		{name: "project_keyword", run: s.matchProjectKeyword},
		{name: "any_term", run: s.matchAnyTerm},
		{name: "any_documents", run: s.listAny},
	}
	return s
}

// Search ranks stored documents against the query text. Vector search
// failure or an empty result set degrades to lexical matching rather
// than propagating infrastructure errors: a search returns its best
// available results whenever any match can be found.
func (s *SearchService) Search(ctx context.Context, query string, topK int, scoreThreshold float64) ([]model.ScoredDocument, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", appErr.ErrInvalid)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query", q), zap.Int("top_k", topK))

	vec, err := s.embedder.EmbedOne(ctx, q)
	if err != nil {
		// Lexical fallback needs no vector, try it even when the
		// embedding call itself failed.
		logger.Warn("query embedding failed, using lexical fallback", zap.Error(err))
		return s.searchLexical(ctx, q, topK)
	}
	matches, err := s.repo.SearchByVector(ctx, vec, topK)
	if err != nil {
		logger.Warn("vector search failed, using lexical fallback", zap.Error(err))
		return s.searchLexical(ctx, q, topK)
	}
	if scoreThreshold != 0 {
		filtered := matches[:0]
		for _, match := range matches {
			if match.Score >= scoreThreshold {
				filtered = append(filtered, match)
			}
		}
		matches = filtered
	}
	if len(matches) == 0 {
		logger.Debug("vector search returned no rows, using lexical fallback")
		return s.searchLexical(ctx, q, topK)
	}
	for _, match := range matches {
		logger.Debug("vector match",
			zap.String("doc_id", match.Document.DocID), zap.Float64("score", match.Score))
	}
	return matches, nil
}

// searchLexical runs the fallback chain. Some stages decline without
// touching the store (e.g. the project heuristic on a query that never
// mentions one), so stage errors alone cannot prove the store is down.
// The final stage always issues a store query; its error is the signal
// that the store itself is unreachable.
func (s *SearchService) searchLexical(ctx context.Context, query string, topK int) ([]model.ScoredDocument, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("query", query))
	for i, stage := range s.stages {
		docs, err := stage.run(ctx, query, topK)
		if err != nil {
			logger.Debug("lexical stage failed", zap.String("stage", stage.name), zap.Error(err))
			if i == len(s.stages)-1 {
				return nil, fmt.Errorf("%w: lexical fallback failed: %v", appErr.ErrPersistence, err)
			}
			continue
		}
		if len(docs) == 0 {
			continue
		}
		if len(docs) > topK {
			docs = docs[:topK]
		}
		logger.Info("lexical fallback matched",
			zap.String("stage", stage.name), zap.Int("results", len(docs)))
		results := make([]model.ScoredDocument, 0, len(docs))
		for _, doc := range docs {
			results = append(results, model.ScoredDocument{Document: doc})
		}
		return results, nil
	}
	return nil, nil
}

// matchTokenSuffix tries progressively shorter word-suffixes of the
// query joined into a wildcard substring pattern.
func (s *SearchService) matchTokenSuffix(ctx context.Context, query string, topK int) ([]model.Document, error) {
	words := queryTerms(query)
	for i := 0; i < len(words) && i < maxSuffixAttempts; i++ {
		pattern := "%" + strings.Join(words[i:], "%") + "%"
		docs, err := s.repo.FilterByPattern(ctx, pattern, topK)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			return docs, nil
		}
	}
	return nil, nil
}

// matchProjectKeyword searches for "project <token>" when the query
// mentions a project. Narrow heuristic kept as observed in production
// traffic, do not generalize without product input.
func (s *SearchService) matchProjectKeyword(ctx context.Context, query string, topK int) ([]model.Document, error) {
	_, rest, ok := strings.Cut(strings.ToLower(query), "project")
	if !ok {
		return nil, nil
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, nil
	}
	return s.repo.FilterByPattern(ctx, "%project "+fields[0]+"%", topK)
}

// matchAnyTerm fetches a capped window of documents and keeps any whose
// content contains any single query term, preserving store order.
func (s *SearchService) matchAnyTerm(ctx context.Context, query string, topK int) ([]model.Document, error) {
	docs, err := s.repo.List(ctx, termFilterFetchLimit)
	if err != nil {
		return nil, err
	}
	terms := queryTerms(query)
	var results []model.Document
	for _, doc := range docs {
		content := strings.ToLower(doc.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				results = append(results, doc)
				break
			}
		}
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

// listAny returns arbitrary stored documents so that search never hard
// fails while the store is reachable.
func (s *SearchService) listAny(ctx context.Context, _ string, topK int) ([]model.Document, error) {
	return s.repo.List(ctx, topK)
}

func queryTerms(query string) []string {
	cleaned := strings.NewReplacer("?", "", ".", "").Replace(strings.ToLower(query))
	return strings.Fields(cleaned)
}
