package model

import "time"

// Document is a stored fact: caller-assigned string id, non-empty content,
// the content's embedding and an opaque metadata blob. Metadata round-trips
// through JSON verbatim and is never used for ranking.
type Document struct {
	DocID     string                 `json:"doc_id"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ScoredDocument pairs a document with its similarity score
// (1 - cosine_distance, higher is more similar). Lexical fallback
// matches carry score 0.
type ScoredDocument struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}
