package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safemindhq/safemind/internal/auth"
	"github.com/safemindhq/safemind/internal/core"
	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "userID"

// TurnStreamer runs one chat turn and yields its event stream.
type TurnStreamer interface {
	HandleTurn(ctx context.Context, userID int64, chatID, content string) (<-chan core.Event, error)
}

type APIHandler struct {
	chatService *core.ChatService
	turns       TurnStreamer
	logger      *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, turns TurnStreamer, logger *zap.Logger) *APIHandler {
	return &APIHandler{chatService: cs, turns: turns, logger: logger}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		email, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.chatService.GetUserByEmail(email)
		if err != nil {
			h.logger.Error("failed to resolve user identity", zap.String("email", email), zap.Error(err))
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Age      string `json:"age"`
	Gender   string `json:"gender"`
	Location string `json:"location"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	location := strings.TrimSpace(req.Location)

	if email == "" || req.Password == "" || name == "" || req.Age == "" || req.Gender == "" || location == "" {
		http.Error(w, "All fields are required", http.StatusBadRequest)
		return
	}
	if !emailPattern.MatchString(email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		http.Error(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}
	age, err := strconv.Atoi(req.Age)
	if err != nil || age < 13 || age > 120 {
		http.Error(w, "Age must be between 13 and 120", http.StatusBadRequest)
		return
	}

	existing, err := h.chatService.GetUserByEmail(email)
	if err != nil {
		h.logger.Error("failed to check existing user", zap.String("email", email), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "Email already registered", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user := &store.User{
		Email:        email,
		Name:         name,
		Age:          age,
		Gender:       req.Gender,
		Location:     location,
		PasswordHash: hashedPassword,
	}
	if err := h.chatService.CreateUser(user); err != nil {
		h.logger.Error("failed to create user", zap.String("email", email), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.chatService.GetUserByEmail(email)
	if err != nil {
		h.logger.Error("failed to get user", zap.String("email", email), zap.Error(err))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(email)
	if err != nil {
		h.logger.Error("failed to generate JWT", zap.String("email", email), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	chat, err := h.chatService.CreateChat(userID)
	if err != nil {
		h.logger.Error("failed to create chat", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(chat)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	chats, err := h.chatService.GetChats(userID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(chats)
}

type GetChatDetailsResponse struct {
	*store.Chat
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)
	chatID := chi.URLParam(r, "chatID")

	chat, messages, err := h.chatService.GetChatDetails(chatID, userID)
	if err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get chat details",
			zap.Int64("user_id", userID), zap.String("chat_id", chatID), zap.Error(err))
		http.Error(w, "Failed to get chat details", http.StatusInternalServerError)
		return
	}

	resp := GetChatDetailsResponse{
		Chat:     chat,
		Messages: messages,
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)
	chatID := chi.URLParam(r, "chatID")

	if err := h.chatService.DeleteChat(chatID, userID); err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete chat",
			zap.Int64("user_id", userID), zap.String("chat_id", chatID), zap.Error(err))
		http.Error(w, "Failed to delete chat", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessageHandler is the turn endpoint. It replies with a
// newline-delimited JSON stream of status/token/done/error records, flushed
// as they are produced.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)
	chatID := chi.URLParam(r, "chatID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.turns.HandleTurn(r.Context(), userID, chatID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrChatNotFound):
			http.Error(w, "Chat not found", http.StatusNotFound)
		case errors.Is(err, core.ErrEmptyMessage):
			http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		default:
			h.logger.Error("failed to start turn",
				zap.Int64("user_id", userID), zap.String("chat_id", chatID), zap.Error(err))
			http.Error(w, "Failed to process message", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client is gone; the turn goroutine notices via r.Context().
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
