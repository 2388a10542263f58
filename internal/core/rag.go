package core

import (
	"context"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

const (
	// RetrievalK is how many ranked passages are fetched per query.
	RetrievalK = 4
	// ConfidenceThreshold gates trust in retrieved content. Below it the
	// prompt instructs the model to answer conservatively.
	ConfidenceThreshold = 0.35
)

// RAGService composes retrieval-augmented answers as a lazy token stream.
type RAGService struct {
	retriever Retriever
	generator Generator
	logger    *zap.Logger
}

func NewRAGService(retriever Retriever, generator Generator, logger *zap.Logger) *RAGService {
	return &RAGService{
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

// Answer retrieves supporting passages for the query and streams a grounded
// response. A retriever failure or an empty result degrades to ungrounded
// conversational generation instead of failing the turn.
func (s *RAGService) Answer(ctx context.Context, query string, history []store.Message, plan GenerationPlan) (<-chan StreamToken, error) {
	passages, err := s.retriever.Search(ctx, query, RetrievalK)
	if err != nil {
		s.logger.Warn("retrieval failed, falling back to conversational generation", zap.Error(err))
		return s.generator.Stream(ctx, plan.SystemPrompt, history, query)
	}
	if len(passages) == 0 {
		s.logger.Debug("no passages retrieved, falling back to conversational generation")
		return s.generator.Stream(ctx, plan.SystemPrompt, history, query)
	}

	// One good passage is enough, so confidence is the best score rather
	// than the mean.
	var top float32
	for _, p := range passages {
		if p.Score > top {
			top = p.Score
		}
		s.logger.Debug("retrieved passage",
			zap.Float32("score", p.Score),
			zap.String("preview", preview(p.Content, 150)))
	}
	s.logger.Info("retrieval complete",
		zap.Int("passages", len(passages)),
		zap.Float32("confidence", top))

	prompt := BuildRetrievalPrompt(plan.SystemPrompt, passages, top < ConfidenceThreshold)
	return s.generator.Stream(ctx, prompt, history, query)
}

func preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
