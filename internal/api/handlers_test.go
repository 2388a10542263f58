package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/safemindhq/safemind/internal/config"
	"github.com/safemindhq/safemind/internal/core"
	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

// stubTurnStreamer implements TurnStreamer for handler tests.
type stubTurnStreamer struct {
	events []core.Event
	err    error
}

func (s *stubTurnStreamer) HandleTurn(ctx context.Context, userID int64, chatID, content string) (<-chan core.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan core.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestRouter(t *testing.T, turns TurnStreamer) http.Handler {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"

	dbStore, err := store.NewSQLiteStore(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { dbStore.Close() })

	chatService := core.NewChatService(dbStore, zap.NewNop())
	handler := NewAPIHandler(chatService, turns, zap.NewNop())
	return NewRouter(handler)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signupAndLogin(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/signup", "", map[string]string{
		"email": "asha@example.com", "password": "longenough",
		"name": "Asha", "age": "30", "gender": "female", "location": "Mumbai, India",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/login", "", map[string]string{
		"email": "asha@example.com", "password": "longenough",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp["token"] == "" {
		t.Fatal("login returned no token")
	}
	return resp["token"]
}

func TestSignupValidation(t *testing.T) {
	router := newTestRouter(t, &stubTurnStreamer{})

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"email": "nope", "password": "longenough", "name": "A", "age": "30", "gender": "f", "location": "x"}},
		{"short password", map[string]string{"email": "a@b.co", "password": "short", "name": "A", "age": "30", "gender": "f", "location": "x"}},
		{"age too low", map[string]string{"email": "a@b.co", "password": "longenough", "name": "A", "age": "9", "gender": "f", "location": "x"}},
		{"age not a number", map[string]string{"email": "a@b.co", "password": "longenough", "name": "A", "age": "old", "gender": "f", "location": "x"}},
		{"missing fields", map[string]string{"email": "a@b.co", "password": "longenough"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/signup", "", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400", rec.Code)
			}
		})
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	router := newTestRouter(t, &stubTurnStreamer{})
	signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/signup", "", map[string]string{
		"email": "asha@example.com", "password": "longenough",
		"name": "Asha", "age": "30", "gender": "female", "location": "Mumbai, India",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate signup returned %d, want 400", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router := newTestRouter(t, &stubTurnStreamer{})
	signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/login", "", map[string]string{
		"email": "asha@example.com", "password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestChatRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, &stubTurnStreamer{})

	rec := doJSON(t, router, http.MethodGet, "/api/chats", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list returned %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/chats", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token returned %d, want 401", rec.Code)
	}
}

func TestChatLifecycle(t *testing.T) {
	router := newTestRouter(t, &stubTurnStreamer{})
	token := signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/chats", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chat returned %d: %s", rec.Code, rec.Body.String())
	}
	var chat store.Chat
	if err := json.Unmarshal(rec.Body.Bytes(), &chat); err != nil {
		t.Fatalf("failed to decode chat: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/chats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list chats returned %d", rec.Code)
	}
	var chats []store.Chat
	if err := json.Unmarshal(rec.Body.Bytes(), &chats); err != nil {
		t.Fatalf("failed to decode chats: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != chat.ID {
		t.Fatalf("unexpected chat list: %+v", chats)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/chats/"+chat.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete chat returned %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/chats/"+chat.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted chat lookup returned %d, want 404", rec.Code)
	}
}

func TestPostMessageStreamsNDJSON(t *testing.T) {
	turns := &stubTurnStreamer{events: []core.Event{
		{Type: core.EventStatus, Content: "Analyzing message..."},
		{Type: core.EventToken, Content: "hello "},
		{Type: core.EventToken, Content: "there"},
		{Type: core.EventDone},
	}}
	router := newTestRouter(t, turns)
	token := signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/chats/any-chat/messages", token,
		map[string]string{"content": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("turn endpoint returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q, want application/x-ndjson", ct)
	}

	var got []core.Event
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", line, err)
		}
		got = append(got, ev)
	}
	if len(got) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(got), got)
	}
	if got[0].Type != core.EventStatus || got[3].Type != core.EventDone {
		t.Errorf("unexpected event sequence: %+v", got)
	}
	if got[1].Content+got[2].Content != "hello there" {
		t.Errorf("token events corrupted: %+v", got)
	}
}

func TestPostMessageValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown chat", core.ErrChatNotFound, http.StatusNotFound},
		{"empty message", core.ErrEmptyMessage, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &stubTurnStreamer{err: tt.err})
			token := signupAndLogin(t, router)

			rec := doJSON(t, router, http.MethodPost, "/api/chats/some-chat/messages", token,
				map[string]string{"content": "hi"})
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
