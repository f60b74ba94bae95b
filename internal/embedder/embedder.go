package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/factstore/internal/ai"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
)

const (
	DefaultDimension  = 1536
	DefaultBatchSize  = 20
	DefaultCacheSize  = 100
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

type Config struct {
	Model      string
	Dimension  int
	BatchSize  int
	CacheSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func (c *Config) fillDefaults() {
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Embedder turns text into fixed-length vectors through an ai provider.
// Single-text embeddings are memoized in a bounded LRU keyed by exact
// text; the cache is process-local and owned by the instance so tests
// can construct isolated caches.
type Embedder struct {
	provider ai.IEmbedProvider
	cfg      Config
	cache    *lru.Cache[string, []float32]
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(provider ai.IEmbedProvider, cfg Config) (*Embedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("embed provider is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	cfg.fillDefaults()
	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &Embedder{
		provider: provider,
		cfg:      cfg,
		cache:    cache,
		sleep:    sleepContext,
	}, nil
}

func (e *Embedder) ModelName() string {
	return e.cfg.Model
}

func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

// EmbedOne embeds a single text. Empty or whitespace-only input is
// rejected before any remote call.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", appErr.ErrInvalid)
	}
	if cached, ok := e.cache.Get(text); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("model", e.cfg.Model))
		return cloneVector(cached), nil
	}
	vectors, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, cloneVector(vectors[0]))
	return vectors[0], nil
}

// EmbedMany embeds a list of texts, order-preserving, one vector per
// non-empty input. Empty inputs are skipped rather than failing the
// batch. Inputs are sent to the provider in chunks; a failed chunk does
// not invalidate vectors already obtained, the partial result is
// returned alongside the error so the caller can reconcile.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	valid := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		valid = append(valid, text)
	}
	if len(valid) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(valid))
	for start := 0; start < len(valid); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk, err := e.embedWithRetry(ctx, valid[start:end])
		if err != nil {
			logutil.GetLogger(ctx).Error("batch embedding chunk failed",
				zap.Int("embedded", len(vectors)), zap.Int("total", len(valid)), zap.Error(err))
			return vectors, err
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		vectors, err := e.provider.EmbedBatch(ctx, e.cfg.Model, texts)
		if err == nil {
			if err := e.checkVectors(vectors, len(texts)); err != nil {
				return nil, err
			}
			return vectors, nil
		}
		lastErr = err
		if !errors.Is(err, ai.ErrTransient) {
			break
		}
		logutil.GetLogger(ctx).Warn("embedding attempt failed",
			zap.Int("attempt", attempt), zap.Int("max_retries", e.cfg.MaxRetries), zap.Error(err))
		if attempt < e.cfg.MaxRetries {
			// Linear backoff: base delay grows with each attempt.
			if err := e.sleep(ctx, e.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, lastErr)
}

func (e *Embedder) checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: provider returned %d vectors for %d inputs",
			appErr.ErrEmbeddingUnavailable, len(vectors), want)
	}
	for _, vec := range vectors {
		if len(vec) != e.cfg.Dimension {
			return fmt.Errorf("%w: got %d, want %d", appErr.ErrDimension, len(vec), e.cfg.Dimension)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
