package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/memchat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/memory"
	"github.com/zhouzirui/memchat/backend/internal/service/orchestrator"
)

type stubCompletion string

func (s stubCompletion) Complete(context.Context, []*schema.Message, ai.Options) (string, error) {
	return string(s), nil
}

type received struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dial(t *testing.T) (*websocket.Conn, *chatservice.Service, *chatservice.Session, func()) {
	t.Helper()
	chatSvc := chatservice.NewService(chatservice.Config{})
	turns := orchestrator.New(memory.NewInMemoryStore(), stubCompletion("Hi there"), ai.NewPromptBuilder("You are a helpful assistant."))

	r := chi.NewRouter()
	New(chatSvc, turns, nil, []string{"*"}).RegisterRoutes(r)
	srv := httptest.NewServer(r)

	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, chatSvc, session, func() {
		conn.Close()
		srv.Close()
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []received {
	t.Helper()
	var seen []received
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg received
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen = append(seen, msg)
		if msg.Type == msgType {
			return seen
		}
	}
}

func TestWebSocketTurn(t *testing.T) {
	conn, _, session, cleanup := dial(t)
	defer cleanup()

	readUntil(t, conn, "ready")

	if err := conn.WriteJSON(map[string]string{"type": "turn", "message": "I like chess"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	seen := readUntil(t, conn, "message")

	var types []string
	for _, msg := range seen {
		types = append(types, msg.Type)
	}
	want := []string{"memory_saved", "memories_recalled", "completion", "message"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected event order %v", types)
	}

	var result orchestrator.TurnResult
	if err := json.Unmarshal(seen[len(seen)-1].Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Assistant.Content != "Hi there" {
		t.Fatalf("unexpected reply %q", result.Assistant.Content)
	}
	if session.Transcript().Len() != 2 {
		t.Fatalf("expected 2 turns, got %d", session.Transcript().Len())
	}
}

func TestWebSocketRejectsEmptyAndUnknown(t *testing.T) {
	conn, _, session, cleanup := dial(t)
	defer cleanup()

	readUntil(t, conn, "ready")

	_ = conn.WriteJSON(map[string]string{"type": "turn", "message": "  "})
	seen := readUntil(t, conn, "error")
	if !strings.Contains(seen[len(seen)-1].Error, "empty") {
		t.Fatalf("unexpected error %q", seen[len(seen)-1].Error)
	}

	_ = conn.WriteJSON(map[string]string{"type": "voice"})
	readUntil(t, conn, "error")

	_ = conn.WriteJSON(map[string]string{"type": "ping"})
	readUntil(t, conn, "pong")

	if session.Transcript().Len() != 0 {
		t.Fatal("expected no turns")
	}
}

func TestWebSocketClosesWhenSessionEnds(t *testing.T) {
	conn, chatSvc, session, cleanup := dial(t)
	defer cleanup()

	readUntil(t, conn, "ready")

	if err := chatSvc.EndSession(context.Background(), session.ID); err != nil {
		t.Fatalf("EndSession err: %v", err)
	}

	_ = conn.WriteJSON(map[string]string{"type": "turn", "message": "My name is Alex"})
	seen := readUntil(t, conn, "error")
	if !strings.Contains(seen[len(seen)-1].Error, "session not found") {
		t.Fatalf("unexpected error %q", seen[len(seen)-1].Error)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
	if session.Transcript().Len() != 0 {
		t.Fatalf("expected orphaned transcript untouched, got %d turns", session.Transcript().Len())
	}
}
