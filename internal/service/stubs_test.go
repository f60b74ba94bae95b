package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/factstore/internal/model"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
)

// stubEmbedder produces deterministic vectors and counts remote calls.
type stubEmbedder struct {
	dim   int
	calls int
	fail  bool
}

func (e *stubEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = float32(len(text)+i) / float32(e.dim)
	}
	return vec
}

func (e *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", appErr.ErrInvalid)
	}
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("%w: provider down", appErr.ErrEmbeddingUnavailable)
	}
	return e.vectorFor(text), nil
}

func (e *stubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("%w: provider down", appErr.ErrEmbeddingUnavailable)
	}
	var out [][]float32
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, e.vectorFor(text))
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int {
	return e.dim
}

// memRepo is an in-memory stand-in for the Postgres repo, preserving
// insertion order the way the serial primary key does.
type memRepo struct {
	docs  map[string]*model.Document
	order []string

	failUpsert   bool
	failBulkFrom int // fail bulk calls starting at this 1-based call
	bulkCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{docs: map[string]*model.Document{}}
}

func (r *memRepo) put(doc *model.Document) model.Document {
	now := time.Now()
	stored, ok := r.docs[doc.DocID]
	if !ok {
		stored = &model.Document{DocID: doc.DocID, CreatedAt: now}
		r.docs[doc.DocID] = stored
		r.order = append(r.order, doc.DocID)
	}
	stored.Content = doc.Content
	stored.Embedding = doc.Embedding
	stored.Metadata = doc.Metadata
	stored.UpdatedAt = now
	return *stored
}

func (r *memRepo) Upsert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if r.failUpsert {
		return nil, errors.New("connection refused")
	}
	stored := r.put(doc)
	return &stored, nil
}

func (r *memRepo) UpsertBulk(ctx context.Context, docs []*model.Document) ([]model.Document, error) {
	r.bulkCalls++
	if r.failBulkFrom > 0 && r.bulkCalls >= r.failBulkFrom {
		return nil, errors.New("connection refused")
	}
	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, r.put(doc))
	}
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, docID string) (bool, error) {
	if _, ok := r.docs[docID]; !ok {
		return false, nil
	}
	delete(r.docs, docID)
	for i, id := range r.order {
		if id == docID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *memRepo) DeleteBulk(ctx context.Context, docIDs []string) (int, error) {
	removed := 0
	for _, id := range docIDs {
		ok, _ := r.Delete(ctx, id)
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (r *memRepo) Get(ctx context.Context, docID string) (*model.Document, error) {
	doc, ok := r.docs[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (r *memRepo) Count(ctx context.Context) (int, error) {
	return len(r.docs), nil
}

// fakeSearchRepo drives the read path: canned vector results plus an
// ILIKE-alike over in-memory documents.
type fakeSearchRepo struct {
	docs []model.Document

	vectorResults []model.ScoredDocument
	vectorErr     error
	patternErr    error
	listErr       error

	patterns []string
}

func (r *fakeSearchRepo) SearchByVector(ctx context.Context, vec []float32, topK int) ([]model.ScoredDocument, error) {
	if r.vectorErr != nil {
		return nil, r.vectorErr
	}
	results := r.vectorResults
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *fakeSearchRepo) FilterByPattern(ctx context.Context, pattern string, limit int) ([]model.Document, error) {
	r.patterns = append(r.patterns, pattern)
	if r.patternErr != nil {
		return nil, r.patternErr
	}
	var out []model.Document
	for _, doc := range r.docs {
		if ilikeMatch(doc.Content, pattern) {
			out = append(out, doc)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSearchRepo) List(ctx context.Context, limit int) ([]model.Document, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	if len(r.docs) > limit {
		return r.docs[:limit], nil
	}
	return r.docs, nil
}

// ilikeMatch approximates SQL ILIKE for patterns of the
// %seg1%seg2%...% shape: segments must appear in order,
// case-insensitively.
func ilikeMatch(content, pattern string) bool {
	content = strings.ToLower(content)
	idx := 0
	for _, part := range strings.Split(strings.ToLower(pattern), "%") {
		if part == "" {
			continue
		}
		pos := strings.Index(content[idx:], part)
		if pos < 0 {
			return false
		}
		idx += pos + len(part)
	}
	return true
}
