package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/safemindhq/safemind/internal/store"
	"github.com/safemindhq/safemind/internal/utils"
	"go.uber.org/zap"
)

// ScoredPassage pairs retrieved text with its similarity score,
// higher meaning more relevant.
type ScoredPassage struct {
	Content string
	Score   float32
}

// Retriever searches the knowledge collection for passages relevant to a
// query. Implementations return up to k passages, ordered by descending
// score.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]ScoredPassage, error)
}

// EmbeddingRetriever scores the SQLite passage collection against a query
// embedding with cosine similarity. Passages are cached in memory at
// construction time.
type EmbeddingRetriever struct {
	embedder Embedder
	passages []store.Passage
	logger   *zap.Logger
}

func NewEmbeddingRetriever(db *store.SQLiteStore, embedder Embedder, logger *zap.Logger) (*EmbeddingRetriever, error) {
	passages, err := db.GetAllPassages()
	if err != nil {
		return nil, fmt.Errorf("failed to load passages for retriever: %w", err)
	}
	if len(passages) == 0 {
		logger.Warn("retriever initialized with no passages; run with -ingest to populate the collection")
	} else {
		logger.Info("retriever initialized", zap.Int("passages", len(passages)))
	}

	return &EmbeddingRetriever{
		embedder: embedder,
		passages: passages,
		logger:   logger,
	}, nil
}

func (r *EmbeddingRetriever) Search(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	if len(r.passages) == 0 {
		return nil, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored := make([]ScoredPassage, 0, len(r.passages))
	for _, p := range r.passages {
		if len(p.Embedding) == 0 {
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, p.Embedding)
		if err != nil {
			r.logger.Warn("similarity computation failed, skipping passage",
				zap.Int64("passage_id", p.ID),
				zap.Error(err))
			continue
		}
		scored = append(scored, ScoredPassage{Content: p.Content, Score: similarity})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
