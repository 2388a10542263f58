package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

// Event types emitted on the per-turn stream. Order within one turn is
// always status* token* (done|error).
const (
	EventStatus = "status"
	EventToken  = "token"
	EventDone   = "done"
	EventError  = "error"
)

// Event is one record of a turn's event stream.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrEmptyMessage = errors.New("message content cannot be empty")
)

const (
	// historyWindow is how many prior messages feed the classifier and
	// generator as conversational context.
	historyWindow = 6
	// defaultTokenTimeout aborts a backend stream that stops producing.
	defaultTokenTimeout = 60 * time.Second
)

// TurnStore is the slice of the session store the turn service needs.
type TurnStore interface {
	GetChatByID(chatID string, userID int64) (*store.Chat, error)
	GetUserByID(id int64) (*store.User, error)
	CreateMessage(msg *store.Message) error
	GetLastNMessagesByChatID(chatID string, n int) ([]store.Message, error)
	UpdateChatTitle(chatID string, userID int64, title string) error
}

// TurnService orchestrates one chat turn end to end: classify, route,
// generate, persist, emitting events as they occur.
type TurnService struct {
	store        TurnStore
	classifier   *Classifier
	rag          *RAGService
	generator    Generator
	titler       TitleGenerator // may be nil; titling is best-effort
	logger       *zap.Logger
	tokenTimeout time.Duration

	chatLocks sync.Map // chat id -> *sync.Mutex
}

func NewTurnService(ts TurnStore, classifier *Classifier, rag *RAGService, generator Generator, titler TitleGenerator, logger *zap.Logger) *TurnService {
	return &TurnService{
		store:        ts,
		classifier:   classifier,
		rag:          rag,
		generator:    generator,
		titler:       titler,
		logger:       logger,
		tokenTimeout: defaultTokenTimeout,
	}
}

// HandleTurn validates ownership, then runs the turn asynchronously and
// returns its event stream. Validation failures are returned immediately,
// before any stream starts.
func (s *TurnService) HandleTurn(ctx context.Context, userID int64, chatID, content string) (<-chan Event, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	chat, err := s.store.GetChatByID(chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	events := make(chan Event)
	go s.run(ctx, chat, content, events)
	return events, nil
}

func (s *TurnService) lockChat(chatID string) *sync.Mutex {
	mu, _ := s.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *TurnService) run(ctx context.Context, chat *store.Chat, content string, events chan<- Event) {
	defer close(events)

	// Turns on the same chat are processed to completion one at a time so
	// persisted messages never interleave.
	mu := s.lockChat(chat.ID)
	mu.Lock()
	defer mu.Unlock()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	history, err := s.store.GetLastNMessagesByChatID(chat.ID, historyWindow)
	if err != nil {
		s.logger.Warn("failed to load chat history, proceeding without it",
			zap.String("chat_id", chat.ID), zap.Error(err))
		history = nil
	}
	firstTurn := len(history) == 0

	// The user message is made durable before generation begins.
	userMsg := &store.Message{ChatID: chat.ID, Role: store.RoleUser, Content: content}
	if err := s.store.CreateMessage(userMsg); err != nil {
		s.logger.Error("failed to persist user message", zap.String("chat_id", chat.ID), zap.Error(err))
		emit(Event{Type: EventError, Content: "Failed to save your message. Please try again."})
		return
	}

	if !emit(Event{Type: EventStatus, Content: "Analyzing message..."}) {
		return
	}
	intent := s.classifier.Classify(ctx, content, history)

	var profile store.User
	if user, err := s.store.GetUserByID(chat.UserID); err != nil {
		s.logger.Warn("failed to load user profile", zap.Int64("user_id", chat.UserID), zap.Error(err))
	} else if user != nil {
		profile = *user
	}

	plan := Route(intent, profile)
	s.logger.Info("turn routed",
		zap.String("chat_id", chat.ID),
		zap.String("intent", string(intent)),
		zap.String("strategy", plan.Strategy.String()))

	var reply string
	var genErr error
	switch plan.Strategy {
	case StrategyCrisis:
		reply, genErr = s.streamCrisis(profile, plan, emit)
	case StrategyRetrieval:
		if !emit(Event{Type: EventStatus, Content: "Searching knowledge base..."}) {
			return
		}
		stream, err := s.rag.Answer(ctx, content, history, plan)
		if err != nil {
			genErr = err
			break
		}
		if !emit(Event{Type: EventStatus, Content: "Generating response..."}) {
			return
		}
		reply, genErr = s.consume(ctx, stream, emit)
	default:
		if !emit(Event{Type: EventStatus, Content: "Generating response..."}) {
			return
		}
		stream, err := s.generator.Stream(ctx, plan.SystemPrompt, history, content)
		if err != nil {
			genErr = err
			break
		}
		reply, genErr = s.consume(ctx, stream, emit)
	}

	if ctx.Err() != nil {
		// Caller is gone. Tokens already shown cannot be retracted, but no
		// partial assistant message is persisted.
		s.logger.Warn("turn abandoned by caller", zap.String("chat_id", chat.ID))
		return
	}
	if genErr != nil {
		s.logger.Error("generation failed", zap.String("chat_id", chat.ID), zap.Error(genErr))
		emit(Event{Type: EventError, Content: "The response could not be completed. Please try again."})
		return
	}

	assistantMsg := &store.Message{ChatID: chat.ID, Role: store.RoleAssistant, Content: reply}
	if err := s.store.CreateMessage(assistantMsg); err != nil {
		s.logger.Error("failed to persist assistant message", zap.String("chat_id", chat.ID), zap.Error(err))
		emit(Event{Type: EventError, Content: "Failed to save the response."})
		return
	}

	if firstTurn && (chat.Title == nil || *chat.Title == "") {
		go s.generateAndSaveChatTitle(chat.ID, chat.UserID, content)
	}

	emit(Event{Type: EventDone})
}

// streamCrisis delivers the deterministic crisis template word by word. It
// never touches the retriever or the generative backend.
func (s *TurnService) streamCrisis(profile store.User, plan GenerationPlan, emit func(Event) bool) (string, error) {
	text := CrisisResponse(profile.Name, plan.Hotlines)
	for _, chunk := range splitTokens(text) {
		if !emit(Event{Type: EventToken, Content: chunk}) {
			return text, context.Canceled
		}
	}
	return text, nil
}

// consume drains a generation stream, forwarding each token as an event and
// accumulating the full reply. A stalled backend is aborted after
// tokenTimeout rather than hanging the turn.
func (s *TurnService) consume(ctx context.Context, stream <-chan StreamToken, emit func(Event) bool) (string, error) {
	var sb strings.Builder
	timer := time.NewTimer(s.tokenTimeout)
	defer timer.Stop()

	for {
		select {
		case tok, ok := <-stream:
			if !ok {
				return sb.String(), nil
			}
			if tok.Err != nil {
				return sb.String(), tok.Err
			}
			if tok.Content == "" {
				continue
			}
			sb.WriteString(tok.Content)
			if !emit(Event{Type: EventToken, Content: tok.Content}) {
				return sb.String(), context.Canceled
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.tokenTimeout)
		case <-timer.C:
			return sb.String(), fmt.Errorf("generation stalled: no token within %s", s.tokenTimeout)
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		}
	}
}

// splitTokens breaks text into word-sized chunks, each keeping its trailing
// whitespace so concatenation reproduces the original text.
func splitTokens(text string) []string {
	var chunks []string
	start := 0
	inWord := false
	for i, r := range text {
		switch {
		case r == ' ' || r == '\n' || r == '\t':
			inWord = false
		case !inWord:
			if i > start {
				chunks = append(chunks, text[start:i])
				start = i
			}
			inWord = true
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

func (s *TurnService) generateAndSaveChatTitle(chatID string, userID int64, basisContent string) {
	if s.titler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := s.titler.GenerateTitle(ctx, basisContent)
	if err != nil {
		s.logger.Warn("failed to generate chat title", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")

	if err := s.store.UpdateChatTitle(chatID, userID, title); err != nil {
		s.logger.Warn("failed to save chat title",
			zap.String("chat_id", chatID),
			zap.String("title", title),
			zap.Error(err))
	}
}
