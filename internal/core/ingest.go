package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

const minChunkLen = 40 // headings and stray lines carry no retrievable content

// IngestPassagesFromFile loads a plain-text corpus, splits it into
// paragraph-sized passages, embeds each one and replaces the knowledge
// collection with the result. Returns the number of passages stored.
func IngestPassagesFromFile(ctx context.Context, db *store.SQLiteStore, embedder Embedder, path string, logger *zap.Logger) (int, error) {
	contentBytes, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read corpus file %s: %w", path, err)
	}

	var chunks []string
	for _, block := range strings.Split(string(contentBytes), "\n\n") {
		chunk := strings.TrimSpace(block)
		if len(chunk) < minChunkLen {
			continue
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		logger.Warn("no passages extracted from corpus file", zap.String("path", path))
		return 0, nil
	}
	logger.Info("embedding corpus passages, this may take a while", zap.Int("chunks", len(chunks)))

	if err := db.ClearPassages(); err != nil {
		return 0, fmt.Errorf("failed to clear existing passages: %w", err)
	}

	count := 0

	ticker := time.NewTicker(40 * time.Millisecond) // stay under the embedding rate limit
	defer ticker.Stop()

	for i, chunk := range chunks {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return count, ctx.Err()
		}

		embedding, err := embedder.Embed(ctx, chunk)
		if err != nil {
			logger.Warn("failed to embed passage, skipping",
				zap.Int("index", i),
				zap.String("preview", preview(chunk, 50)),
				zap.Error(err))
			continue
		}

		p := store.Passage{Content: chunk, Embedding: embedding}
		if err := db.CreatePassage(&p); err != nil {
			logger.Warn("failed to store passage, skipping", zap.Int("index", i), zap.Error(err))
			continue
		}
		count++
		if count%10 == 0 || count == len(chunks) {
			logger.Info("ingestion progress", zap.Int("stored", count), zap.Int("total", len(chunks)))
		}
	}
	logger.Info("ingestion complete", zap.Int("passages", count))
	return count, nil
}
