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

// Embedder is the embedding boundary the services consume.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// DocumentRepo is the persistence boundary for document rows.
type DocumentRepo interface {
	Upsert(ctx context.Context, doc *model.Document) (*model.Document, error)
	UpsertBulk(ctx context.Context, docs []*model.Document) ([]model.Document, error)
	Delete(ctx context.Context, docID string) (bool, error)
	DeleteBulk(ctx context.Context, docIDs []string) (int, error)
	Get(ctx context.Context, docID string) (*model.Document, error)
	Count(ctx context.Context) (int, error)
}

type DocumentInput struct {
	DocID    string                 `json:"doc_id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type DocumentService struct {
	docs      DocumentRepo
	embedder  Embedder
	batchSize int
}

func NewDocumentService(docs DocumentRepo, embedder Embedder, batchSize int) *DocumentService {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &DocumentService{docs: docs, embedder: embedder, batchSize: batchSize}
}

// Upsert validates, embeds and writes a single document. There is no
// transaction spanning embedding and persistence: if the write fails
// the embedding is wasted and the caller re-invokes Upsert.
func (s *DocumentService) Upsert(ctx context.Context, input DocumentInput) (*model.Document, error) {
	docID := strings.TrimSpace(input.DocID)
	if docID == "" {
		return nil, fmt.Errorf("%w: document id is required", appErr.ErrInvalid)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("%w: document content cannot be empty", appErr.ErrInvalid)
	}
	vec, err := s.embedder.EmbedOne(ctx, input.Content)
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to embed document content",
			zap.String("doc_id", docID), zap.Error(err))
		return nil, err
	}
	if len(vec) != s.embedder.Dimension() {
		return nil, fmt.Errorf("%w: got %d, want %d", appErr.ErrDimension, len(vec), s.embedder.Dimension())
	}
	written, err := s.docs.Upsert(ctx, &model.Document{
		DocID:     docID,
		Content:   input.Content,
		Embedding: vec,
		Metadata:  input.Metadata,
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to persist document",
			zap.String("doc_id", docID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrPersistence, err)
	}
	logutil.GetLogger(ctx).Info("document upserted", zap.String("doc_id", docID))
	return written, nil
}

// UpsertBatch processes inputs in fixed-size chunks, embedding each
// chunk's valid documents together and writing the chunk as one bulk
// statement. Documents with empty content are silently skipped. A
// chunk failure aborts the remaining chunks; the documents already
// committed are still returned alongside the error.
func (s *DocumentService) UpsertBatch(ctx context.Context, inputs []DocumentInput) ([]model.Document, error) {
	var written []model.Document
	for start := 0; start < len(inputs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		valid := make([]DocumentInput, 0, end-start)
		contents := make([]string, 0, end-start)
		for _, input := range inputs[start:end] {
			if strings.TrimSpace(input.DocID) == "" || strings.TrimSpace(input.Content) == "" {
				continue
			}
			valid = append(valid, input)
			contents = append(contents, input.Content)
		}
		if len(valid) == 0 {
			continue
		}
		vectors, err := s.embedder.EmbedMany(ctx, contents)
		if err != nil {
			return written, fmt.Errorf("batch upsert aborted after %d documents: %w", len(written), err)
		}
		docs := make([]*model.Document, 0, len(valid))
		for i, input := range valid {
			docs = append(docs, &model.Document{
				DocID:     strings.TrimSpace(input.DocID),
				Content:   input.Content,
				Embedding: vectors[i],
				Metadata:  input.Metadata,
			})
		}
		chunk, err := s.docs.UpsertBulk(ctx, docs)
		if err != nil {
			logutil.GetLogger(ctx).Error("bulk write failed",
				zap.Int("committed", len(written)), zap.Error(err))
			return written, fmt.Errorf("%w: batch upsert aborted after %d documents: %v",
				appErr.ErrPersistence, len(written), err)
		}
		written = append(written, chunk...)
	}
	logutil.GetLogger(ctx).Info("batch upsert finished",
		zap.Int("requested", len(inputs)), zap.Int("written", len(written)))
	return written, nil
}

// Delete removes a document by id. Deleting an absent id returns
// false without error.
func (s *DocumentService) Delete(ctx context.Context, docID string) (bool, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return false, fmt.Errorf("%w: document id is required", appErr.ErrInvalid)
	}
	deleted, err := s.docs.Delete(ctx, docID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", appErr.ErrPersistence, err)
	}
	return deleted, nil
}

// DeleteBatch removes matching rows in one operation; ids with no
// match are silently ignored.
func (s *DocumentService) DeleteBatch(ctx context.Context, docIDs []string) (int, error) {
	ids := make([]string, 0, len(docIDs))
	for _, id := range docIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := s.docs.DeleteBulk(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErr.ErrPersistence, err)
	}
	logutil.GetLogger(ctx).Info("batch delete finished",
		zap.Int("requested", len(ids)), zap.Int("removed", removed))
	return removed, nil
}

func (s *DocumentService) Get(ctx context.Context, docID string) (*model.Document, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("%w: document id is required", appErr.ErrInvalid)
	}
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", appErr.ErrPersistence, err)
	}
	return doc, nil
}

func (s *DocumentService) Count(ctx context.Context) (int, error) {
	count, err := s.docs.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErr.ErrPersistence, err)
	}
	return count, nil
}
