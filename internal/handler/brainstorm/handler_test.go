package brainstorm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Markizx/neural-chat-sub000/internal/middleware"
	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
	brainstormService "github.com/Markizx/neural-chat-sub000/internal/service/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/broadcast"
	"github.com/Markizx/neural-chat-sub000/internal/service/summary"
)

// blockingBackend holds every turn until the request context ends, keeping
// sessions active for the duration of a test.
type blockingBackend struct{}

func (blockingBackend) GenerateTurn(ctx context.Context, _ []*schema.Message, _ ai.GenerateOptions) (*ai.Reply, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func setupRouter(t *testing.T) (*chi.Mux, *broadcast.Hub) {
	t.Helper()
	registry := ai.NewRegistry()
	registry.Register(ai.KindArk, blockingBackend{})

	hub := broadcast.NewHub()
	svc := brainstormService.NewService(
		brainstorm.NewMemoryStore(),
		registry,
		hub,
		summary.NewService(nil, summary.Config{}),
		brainstormService.Config{DefaultKindA: ai.KindArk, DefaultKindB: ai.KindArk},
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})

	r := chi.NewRouter()
	r.Use(middleware.UserIdentity)
	r.Route("/api/brainstorm", New(svc, hub).RegisterRoutes)
	return r, hub
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		payload, _ = json.Marshal(v)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "user-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func expectError(t *testing.T, resp *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, resp.Code, resp.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body["code"] != code || body["error"] == "" {
		t.Fatalf("expected code %s, got %v", code, body)
	}
}

func startSession(t *testing.T, r http.Handler) *brainstorm.Session {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/api/brainstorm/start", map[string]any{
		"topic":       "Remote work",
		"description": "Pros and cons",
		"settings":    map[string]any{"maxTurns": 4, "format": "debate"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var body sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	return body.Session
}

func TestStartSession(t *testing.T) {
	r, _ := setupRouter(t)
	session := startSession(t, r)

	if session.ID == "" || session.Status != brainstorm.StatusActive || session.UserID != "user-1" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.Settings.MaxTurns != 4 || session.Settings.Format != brainstorm.FormatDebate {
		t.Fatalf("settings not applied: %+v", session.Settings)
	}
	if len(session.Messages) != 1 || session.Messages[0].Speaker != brainstorm.SpeakerUser {
		t.Fatalf("expected opening user message, got %+v", session.Messages)
	}
}

func TestStartValidationErrors(t *testing.T) {
	r, _ := setupRouter(t)

	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/start", `{"topic":`), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/start", map[string]any{"topic": ""}), http.StatusBadRequest, "TOPIC_REQUIRED")
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/start", map[string]any{
		"topic":    "x",
		"settings": map[string]any{"moderationLevel": "extreme"},
	}), http.StatusBadRequest, "INVALID_SETTINGS")
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/start", map[string]any{
		"topic":             "x",
		"participantConfig": map[string]any{"B": map[string]any{"kind": "gemini"}},
	}), http.StatusBadRequest, "BACKEND_UNAVAILABLE")
}

func TestMessageLifecycle(t *testing.T) {
	r, _ := setupRouter(t)
	session := startSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/api/brainstorm/message", map[string]any{
		"sessionId":   session.ID,
		"content":     "",
		"attachments": []map[string]any{{"name": "plan.pdf", "size": 1200}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body messageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.UserMessage.Speaker != brainstorm.SpeakerUser || len(body.Session.Messages) != 2 {
		t.Fatalf("unexpected response %+v", body)
	}

	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/message", map[string]any{"sessionId": session.ID}),
		http.StatusBadRequest, "EMPTY_MESSAGE")
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/message", map[string]any{"content": "hi"}),
		http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/message", map[string]any{"sessionId": "nope", "content": "hi"}),
		http.StatusNotFound, "SESSION_NOT_FOUND")
}

func TestStateTransitions(t *testing.T) {
	r, _ := setupRouter(t)
	session := startSession(t, r)
	id := map[string]string{"sessionId": session.ID}

	if resp := doJSON(t, r, http.MethodPost, "/api/brainstorm/pause", id); resp.Code != http.StatusOK {
		t.Fatalf("pause expected 200, got %d", resp.Code)
	}
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/pause", id), http.StatusConflict, "SESSION_NOT_ACTIVE")
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/message", map[string]string{"sessionId": session.ID, "content": "hello"}),
		http.StatusConflict, "SESSION_NOT_ACTIVE")

	if resp := doJSON(t, r, http.MethodPost, "/api/brainstorm/resume", id); resp.Code != http.StatusOK {
		t.Fatalf("resume expected 200, got %d", resp.Code)
	}
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/resume", id), http.StatusConflict, "SESSION_NOT_PAUSED")
	expectError(t, doJSON(t, r, http.MethodGet, "/api/brainstorm/"+session.ID+"/summary", nil), http.StatusConflict, "SESSION_NOT_COMPLETED")

	resp := doJSON(t, r, http.MethodPost, "/api/brainstorm/stop", id)
	if resp.Code != http.StatusOK {
		t.Fatalf("stop expected 200, got %d", resp.Code)
	}
	var stopped sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &stopped); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if stopped.Session.Status != brainstorm.StatusCompleted || stopped.Session.Summary == "" {
		t.Fatalf("unexpected stopped session %+v", stopped.Session)
	}
	expectError(t, doJSON(t, r, http.MethodPost, "/api/brainstorm/stop", id), http.StatusConflict, "SESSION_ALREADY_COMPLETED")

	resp = doJSON(t, r, http.MethodGet, "/api/brainstorm/"+session.ID+"/summary", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("summary expected 200, got %d", resp.Code)
	}
	var view brainstormService.SummaryView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if view.Summary == "" || view.Stats.MaxTurns != 4 || view.Stats.TotalMessages != 1 {
		t.Fatalf("unexpected summary %+v", view)
	}
}

func TestGetAndExport(t *testing.T) {
	r, _ := setupRouter(t)
	session := startSession(t, r)

	resp := doJSON(t, r, http.MethodGet, "/api/brainstorm/"+session.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get expected 200, got %d", resp.Code)
	}
	expectError(t, doJSON(t, r, http.MethodGet, "/api/brainstorm/missing", nil), http.StatusNotFound, "SESSION_NOT_FOUND")

	resp = doJSON(t, r, http.MethodGet, "/api/brainstorm/"+session.ID+"/export?format=markdown", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("export expected 200, got %d", resp.Code)
	}
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), session.ID+".md") {
		t.Fatalf("unexpected disposition %q", resp.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(resp.Body.String(), "# Remote work") {
		t.Fatalf("unexpected markdown %s", resp.Body.String())
	}

	resp = doJSON(t, r, http.MethodGet, "/api/brainstorm/"+session.ID+"/export", nil)
	var exported brainstorm.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &exported); err != nil || exported.ID != session.ID {
		t.Fatalf("json export should be the session document: err=%v id=%s", err, exported.ID)
	}

	expectError(t, doJSON(t, r, http.MethodGet, "/api/brainstorm/"+session.ID+"/export?format=pdf", nil), http.StatusBadRequest, "INVALID_FORMAT")
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStream(t *testing.T) {
	r, hub := setupRouter(t)
	session := startSession(t, r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/brainstorm/"+session.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events request err: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	event, data := readSSEEvent(t, reader)
	if event != string(brainstorm.EventSessionStatus) || !strings.Contains(data, `"status":"active"`) {
		t.Fatalf("expected current status first, got %s %s", event, data)
	}

	chunk := brainstorm.NewEvent(brainstorm.EventStreamChunk, session.ID)
	chunk.Speaker = brainstorm.SpeakerB
	chunk.Text = "hello there"
	hub.Publish(session.ID, chunk)

	for {
		event, data = readSSEEvent(t, reader)
		if event == string(brainstorm.EventStreamChunk) {
			break
		}
	}
	if !strings.Contains(data, "hello there") {
		t.Fatalf("unexpected chunk data %s", data)
	}
}

func TestEventsStreamUnknownSession(t *testing.T) {
	r, _ := setupRouter(t)
	expectError(t, doJSON(t, r, http.MethodGet, "/api/brainstorm/missing/events", nil), http.StatusNotFound, "SESSION_NOT_FOUND")
}

func readFrame(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if frame["type"] == wantType {
			return frame
		}
	}
}

func TestWebSocketJoinReceivesEvents(t *testing.T) {
	r, hub := setupRouter(t)
	session := startSession(t, r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/brainstorm/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn, "connected")

	if err := conn.WriteJSON(inboundMessage{Type: frameJoin, SessionID: "missing"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	readFrame(t, conn, "error")

	if err := conn.WriteJSON(inboundMessage{Type: frameJoin, SessionID: session.ID}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	joined := readFrame(t, conn, "joined")
	if joined["sessionId"] != session.ID {
		t.Fatalf("unexpected joined frame %v", joined)
	}

	done := brainstorm.NewEvent(brainstorm.EventStreamComplete, session.ID)
	done.Speaker = brainstorm.SpeakerA
	done.Message = &brainstorm.Message{ID: "t1", Speaker: brainstorm.SpeakerA, Content: "final"}
	if delivered := hub.Publish(session.ID, done); delivered != 1 {
		t.Fatalf("expected one websocket subscriber, got %d", delivered)
	}
	frame := readFrame(t, conn, string(brainstorm.EventStreamComplete))
	if msg, ok := frame["message"].(map[string]any); !ok || msg["content"] != "final" {
		t.Fatalf("unexpected event frame %v", frame)
	}

	if err := conn.WriteJSON(inboundMessage{Type: frameLeave, SessionID: session.ID}); err != nil {
		t.Fatalf("write leave: %v", err)
	}
	readFrame(t, conn, "left")
	if subs := hub.Subscribers(session.ID); len(subs) != 0 {
		t.Fatalf("expected no subscribers after leave, got %v", subs)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[string]int{
		brainstorm.ErrSessionNotFound.Code:         http.StatusNotFound,
		brainstorm.ErrSessionNotPaused.Code:        http.StatusConflict,
		brainstorm.ErrSessionNotCompleted.Code:     http.StatusConflict,
		brainstorm.ErrEmptyMessage.Code:            http.StatusBadRequest,
		brainstorm.ErrInvalidFormat.Code:           http.StatusBadRequest,
		brainstorm.ErrSessionAlreadyCompleted.Code: http.StatusConflict,
	}
	for code, want := range cases {
		if got := statusFor(code); got != want {
			t.Fatalf("statusFor(%s) = %d, want %d", code, got, want)
		}
	}
}
