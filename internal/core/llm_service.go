package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/safemindhq/safemind/internal/config"
	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultIntentModelName    = "gemini-1.5-flash-latest"
	defaultTitleModelName     = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."
)

// LLMService is the Gemini-backed generative backend. It implements
// Generator, Labeler, Embedder and TitleGenerator.
type LLMService struct {
	client *genai.Client
	logger *zap.Logger
}

func NewLLMService(logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{client: client, logger: logger}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("error closing GenAI client", zap.Error(err))
		}
	}
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

// Stream sends the message with the given system prompt and history and
// forwards the backend's chunks token by token, preserving order.
func (s *LLMService) Stream(ctx context.Context, systemPrompt string, history []store.Message, message string) (<-chan StreamToken, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	session := model.StartChat()
	session.History = toGenaiHistory(history)

	iter := session.SendMessageStream(ctx, genai.Text(message))

	tokens := make(chan StreamToken)
	go func() {
		defer close(tokens)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				s.send(ctx, tokens, StreamToken{Err: fmt.Errorf("gemini stream failed: %w", err)})
				return
			}
			for _, chunk := range responseText(resp) {
				if chunk == "" {
					continue
				}
				if !s.send(ctx, tokens, StreamToken{Content: chunk}) {
					return
				}
			}
		}
	}()
	return tokens, nil
}

func (s *LLMService) send(ctx context.Context, tokens chan<- StreamToken, tok StreamToken) bool {
	select {
	case tokens <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}

// Label asks the model for a single intent word. Parsing and validation of
// the label is the classifier's concern, not this layer's.
func (s *LLMService) Label(ctx context.Context, message string, recent []store.Message) (string, error) {
	model := s.client.GenerativeModel(defaultIntentModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(intentLabelInstruction)},
	}

	temp := float32(0.0)
	maxTokens := int32(8)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	var sb strings.Builder
	if len(recent) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range recent {
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Message to classify: ")
	sb.WriteString(message)

	resp, err := model.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return "", fmt.Errorf("gemini intent request failed: %w", err)
	}

	text := strings.Join(responseText(resp), "")
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty intent label")
	}
	return text, nil
}

func (s *LLMService) GenerateTitle(ctx context.Context, basis string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: %q.", basis)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}

	title := strings.Join(responseText(resp), "")
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return "", fmt.Errorf("LLM generated an empty title string")
	}
	return title, nil
}

func toGenaiHistory(history []store.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range history {
		role := "user"
		if msg.Role == store.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			parts = append(parts, string(txt))
		}
	}
	return parts
}
