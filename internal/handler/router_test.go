package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
	brainstormService "github.com/Markizx/neural-chat-sub000/internal/service/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/broadcast"
)

func newTestRouter() http.Handler {
	hub := broadcast.NewHub()
	svc := brainstormService.NewService(brainstorm.NewMemoryStore(), ai.NewRegistry(), hub, nil, brainstormService.Config{})
	return NewRouter(svc, hub, []string{"https://app.example.com"})
}

func TestHealthz(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "ok") {
		t.Fatalf("unexpected healthz response %d %s", resp.Code, resp.Body.String())
	}
}

func TestRouterMountsBrainstormRoutes(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/brainstorm/start", strings.NewReader(`{"topic":"AI"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	// 没有注册任何后端时启动会话被拒绝
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "BACKEND_UNAVAILABLE") {
		t.Fatalf("unexpected start response %d %s", resp.Code, resp.Body.String())
	}
}

func TestRouterAppliesCORS(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}
