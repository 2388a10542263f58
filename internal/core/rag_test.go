package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

// stubRetriever implements Retriever for testing.
type stubRetriever struct {
	passages []ScoredPassage
	err      error
	calls    int
	lastK    int
}

func (s *stubRetriever) Search(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	s.calls++
	s.lastK = k
	if s.err != nil {
		return nil, s.err
	}
	return s.passages, nil
}

// stubGenerator implements Generator and records the prompt it was given.
type stubGenerator struct {
	tokens     []string
	streamErr  error // emitted after tokens, as a mid-stream failure
	startErr   error
	lastPrompt string
	calls      int
}

func (s *stubGenerator) Stream(ctx context.Context, systemPrompt string, history []store.Message, message string) (<-chan StreamToken, error) {
	s.calls++
	s.lastPrompt = systemPrompt
	if s.startErr != nil {
		return nil, s.startErr
	}
	ch := make(chan StreamToken)
	go func() {
		defer close(ch)
		for _, tok := range s.tokens {
			select {
			case ch <- StreamToken{Content: tok}:
			case <-ctx.Done():
				return
			}
		}
		if s.streamErr != nil {
			select {
			case ch <- StreamToken{Err: s.streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func drainTokens(t *testing.T, stream <-chan StreamToken) string {
	t.Helper()
	var sb strings.Builder
	for tok := range stream {
		if tok.Err != nil {
			t.Fatalf("unexpected stream error: %v", tok.Err)
		}
		sb.WriteString(tok.Content)
	}
	return sb.String()
}

func ragPlan() GenerationPlan {
	return Route(IntentKnowledge, store.User{Name: "Asha", Age: 30})
}

func TestRAG_LowConfidenceQualifiesPrompt(t *testing.T) {
	retriever := &stubRetriever{passages: []ScoredPassage{
		{Content: "grounding techniques involve the senses", Score: 0.21},
		{Content: "breathing exercises reduce arousal", Score: 0.18},
	}}
	gen := &stubGenerator{tokens: []string{"ok"}}
	svc := NewRAGService(retriever, gen, zap.NewNop())

	stream, err := svc.Answer(context.Background(), "what is grounding?", nil, ragPlan())
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	drainTokens(t, stream)

	if !strings.Contains(gen.lastPrompt, "low relevance confidence") {
		t.Errorf("prompt missing uncertainty instruction:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "grounding techniques involve the senses") {
		t.Errorf("prompt missing retrieved passage:\n%s", gen.lastPrompt)
	}
}

func TestRAG_HighConfidenceOmitsQualifier(t *testing.T) {
	retriever := &stubRetriever{passages: []ScoredPassage{
		{Content: "CBT is a structured form of talk therapy", Score: 0.82},
	}}
	gen := &stubGenerator{tokens: []string{"ok"}}
	svc := NewRAGService(retriever, gen, zap.NewNop())

	stream, err := svc.Answer(context.Background(), "what is CBT?", nil, ragPlan())
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	drainTokens(t, stream)

	if strings.Contains(gen.lastPrompt, "low relevance confidence") {
		t.Errorf("high-confidence prompt should not carry the uncertainty instruction:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "CBT is a structured form of talk therapy") {
		t.Errorf("prompt missing retrieved passage:\n%s", gen.lastPrompt)
	}
}

func TestRAG_UsesConfiguredK(t *testing.T) {
	retriever := &stubRetriever{}
	gen := &stubGenerator{tokens: []string{"ok"}}
	svc := NewRAGService(retriever, gen, zap.NewNop())

	stream, err := svc.Answer(context.Background(), "anything", nil, ragPlan())
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	drainTokens(t, stream)

	if retriever.lastK != RetrievalK {
		t.Errorf("retriever called with k=%d, want %d", retriever.lastK, RetrievalK)
	}
}

func TestRAG_RetrieverErrorFallsBackToConversational(t *testing.T) {
	retriever := &stubRetriever{err: fmt.Errorf("index unavailable")}
	gen := &stubGenerator{tokens: []string{"still ", "here"}}
	svc := NewRAGService(retriever, gen, zap.NewNop())

	plan := ragPlan()
	stream, err := svc.Answer(context.Background(), "what is CBT?", nil, plan)
	if err != nil {
		t.Fatalf("retriever failure must not fail the turn: %v", err)
	}
	got := drainTokens(t, stream)

	if got != "still here" {
		t.Errorf("unexpected reply %q", got)
	}
	if gen.lastPrompt != plan.SystemPrompt {
		t.Errorf("fallback should use the ungrounded system prompt, got:\n%s", gen.lastPrompt)
	}
}

func TestRAG_ZeroPassagesFallsBackToConversational(t *testing.T) {
	retriever := &stubRetriever{passages: nil}
	gen := &stubGenerator{tokens: []string{"ok"}}
	svc := NewRAGService(retriever, gen, zap.NewNop())

	plan := ragPlan()
	stream, err := svc.Answer(context.Background(), "what is CBT?", nil, plan)
	if err != nil {
		t.Fatalf("empty retrieval must not fail the turn: %v", err)
	}
	drainTokens(t, stream)

	if strings.Contains(gen.lastPrompt, "Context from knowledge base") {
		t.Errorf("fallback prompt should carry no retrieval section:\n%s", gen.lastPrompt)
	}
}
