package core

import (
	"fmt"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

// ChatService owns the CRUD side of chats: accounts, chat lifecycle and
// history. Turn processing lives in TurnService.
type ChatService struct {
	dbStore *store.SQLiteStore
	logger  *zap.Logger
}

func NewChatService(db *store.SQLiteStore, logger *zap.Logger) *ChatService {
	return &ChatService{dbStore: db, logger: logger}
}

func (s *ChatService) GetUserByEmail(email string) (*store.User, error) {
	return s.dbStore.GetUserByEmail(email)
}

func (s *ChatService) CreateUser(user *store.User) error {
	return s.dbStore.CreateUser(user)
}

func (s *ChatService) CreateChat(userID int64) (*store.Chat, error) {
	chat, err := s.dbStore.CreateChat(userID, nil) // Title is generated after the first exchange
	if err != nil {
		return nil, fmt.Errorf("failed to create chat in DB: %w", err)
	}
	return chat, nil
}

func (s *ChatService) GetChats(userID int64) ([]store.Chat, error) {
	return s.dbStore.GetChatsByUserID(userID)
}

func (s *ChatService) GetChatDetails(chatID string, userID int64) (*store.Chat, []store.Message, error) {
	chat, err := s.dbStore.GetChatByID(chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, ErrChatNotFound
	}

	messages, err := s.dbStore.GetMessagesByChatID(chatID, 200, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return chat, messages, nil
}

// DeleteChat removes a chat and its messages. Ownership is verified first so
// cross-user deletes surface as not-found.
func (s *ChatService) DeleteChat(chatID string, userID int64) error {
	chat, err := s.dbStore.GetChatByID(chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to verify chat: %w", err)
	}
	if chat == nil {
		return ErrChatNotFound
	}
	if err := s.dbStore.DeleteChat(chatID, userID); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	s.logger.Info("chat deleted", zap.String("chat_id", chatID), zap.Int64("user_id", userID))
	return nil
}
