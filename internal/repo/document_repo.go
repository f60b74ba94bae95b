package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/factstore/internal/model"
	"github.com/xxxsen/factstore/internal/pkg/dbutil"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
)

var documentColumns = []string{"doc_id", "content", "embedding", "metadata", "created_at", "updated_at"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Upsert writes the row keyed by doc_id, replacing content, embedding
// and metadata in place and advancing updated_at on conflict.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	blob, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return nil, err
	}
	const query = `
		INSERT INTO documents (doc_id, content, embedding, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (doc_id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING doc_id, content, embedding, metadata, created_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query, doc.DocID, doc.Content, pgvector.NewVector(doc.Embedding), blob)
	return scanDocument(row)
}

// UpsertBulk writes a chunk of documents as one statement and returns
// the written rows in input order.
func (r *DocumentRepo) UpsertBulk(ctx context.Context, docs []*model.Document) ([]model.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	docs = dedupeByDocID(docs)
	placeholders := make([]string, 0, len(docs))
	args := make([]interface{}, 0, len(docs)*4)
	for i, doc := range docs {
		blob, err := marshalMetadata(doc.Metadata)
		if err != nil {
			return nil, err
		}
		base := i * 4
		placeholders = append(placeholders,
			fmt.Sprintf("($%d, $%d, $%d, $%d, NOW(), NOW())", base+1, base+2, base+3, base+4))
		args = append(args, doc.DocID, doc.Content, pgvector.NewVector(doc.Embedding), blob)
	}
	query := fmt.Sprintf(`
		INSERT INTO documents (doc_id, content, embedding, metadata, created_at, updated_at)
		VALUES %s
		ON CONFLICT (doc_id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING doc_id, content, embedding, metadata, created_at, updated_at
	`, strings.Join(placeholders, ", "))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (r *DocumentRepo) Delete(ctx context.Context, docID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = $1`, docID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *DocumentRepo) DeleteBulk(ctx context.Context, docIDs []string) (int, error) {
	if len(docIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ANY($1)`, pq.Array(docIDs))
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *DocumentRepo) Get(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"doc_id": docID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	doc, err := scanDocument(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SearchByVector ranks stored vectors by cosine similarity against the
// query vector. Ties break on insertion order (serial id).
func (r *DocumentRepo) SearchByVector(ctx context.Context, vec []float32, topK int) ([]model.ScoredDocument, error) {
	const query = `
		SELECT doc_id, content, embedding, metadata, created_at, updated_at,
			1 - (embedding <=> $1) AS score
		FROM documents
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.ScoredDocument
	for rows.Next() {
		var item model.ScoredDocument
		var embedding pgvector.Vector
		var blob []byte
		if err := rows.Scan(&item.Document.DocID, &item.Document.Content, &embedding, &blob,
			&item.Document.CreatedAt, &item.Document.UpdatedAt, &item.Score); err != nil {
			return nil, err
		}
		item.Document.Embedding = embedding.Slice()
		if err := unmarshalMetadata(blob, &item.Document.Metadata); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// FilterByPattern matches documents whose content contains the pattern
// case-insensitively, in insertion order.
func (r *DocumentRepo) FilterByPattern(ctx context.Context, pattern string, limit int) ([]model.Document, error) {
	const query = `
		SELECT doc_id, content, embedding, metadata, created_at, updated_at
		FROM documents
		WHERE content ILIKE $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// List returns up to limit documents in insertion order.
func (r *DocumentRepo) List(ctx context.Context, limit int) ([]model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "id",
		"_limit":   []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// dedupeByDocID collapses repeated doc_ids to the last occurrence.
// Postgres rejects a single INSERT ... ON CONFLICT DO UPDATE that
// touches the same row twice, and last-write-wins matches what the
// same documents would produce as sequential upserts.
func dedupeByDocID(docs []*model.Document) []*model.Document {
	index := make(map[string]int, len(docs))
	deduped := make([]*model.Document, 0, len(docs))
	for _, doc := range docs {
		if pos, ok := index[doc.DocID]; ok {
			deduped[pos] = doc
			continue
		}
		index[doc.DocID] = len(deduped)
		deduped = append(deduped, doc)
	}
	return deduped
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var embedding pgvector.Vector
	var blob []byte
	if err := row.Scan(&doc.DocID, &doc.Content, &embedding, &blob, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Embedding = embedding.Slice()
	if err := unmarshalMetadata(blob, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

func unmarshalMetadata(blob []byte, dst *map[string]interface{}) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, dst)
}
