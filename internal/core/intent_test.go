package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

// stubLabeler implements Labeler for testing.
type stubLabeler struct {
	label string
	err   error
	calls int
}

func (s *stubLabeler) Label(ctx context.Context, message string, recent []store.Message) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.label, nil
}

func TestClassify_CrisisPatternsBypassModel(t *testing.T) {
	// The backend always errors; crisis detection must not depend on it.
	labeler := &stubLabeler{err: fmt.Errorf("backend unavailable")}
	c := NewClassifier(labeler, zap.NewNop())

	messages := []string{
		"I want to kill myself",
		"sometimes I think about suicide",
		"there is no point in living anymore",
		"I might hurt myself tonight",
		"I WANT TO END IT ALL",
	}
	for _, msg := range messages {
		if got := c.Classify(context.Background(), msg, nil); got != IntentEmergency {
			t.Errorf("Classify(%q) = %s, want emergency", msg, got)
		}
	}
	if labeler.calls != 0 {
		t.Errorf("labeler was called %d times on the crisis path, want 0", labeler.calls)
	}
}

func TestClassify_ModelLabel(t *testing.T) {
	tests := []struct {
		label string
		want  Intent
	}{
		{"knowledge", IntentKnowledge},
		{"  Wellness.\n", IntentWellness},
		{"social", IntentSocial},
		{"technical", IntentTechnical},
		{"venting", IntentVenting},
	}
	for _, tt := range tests {
		c := NewClassifier(&stubLabeler{label: tt.label}, zap.NewNop())
		if got := c.Classify(context.Background(), "tell me something", nil); got != tt.want {
			t.Errorf("label %q classified as %s, want %s", tt.label, got, tt.want)
		}
	}
}

func TestClassify_FailsClosedToEmotional(t *testing.T) {
	tests := []struct {
		name    string
		labeler *stubLabeler
	}{
		{"backend error", &stubLabeler{err: fmt.Errorf("timeout")}},
		{"gibberish label", &stubLabeler{label: "banana"}},
		{"empty label", &stubLabeler{label: ""}},
		// The model may never escalate to emergency without a lexical match.
		{"model claims emergency", &stubLabeler{label: "emergency"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(tt.labeler, zap.NewNop())
			got := c.Classify(context.Background(), "my day was strange", nil)
			if got != IntentEmotional {
				t.Errorf("got %s, want emotional", got)
			}
		})
	}
}
