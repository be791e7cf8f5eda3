package brainstorm

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Markizx/neural-chat-sub000/internal/middleware"
	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
	brainstormService "github.com/Markizx/neural-chat-sub000/internal/service/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/broadcast"
	"github.com/Markizx/neural-chat-sub000/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handler 头脑风暴会话的HTTP处理器
type Handler struct {
	svc      *brainstormService.Service
	hub      *broadcast.Hub
	upgrader websocket.Upgrader

	pingInterval time.Duration
	writeWait    time.Duration
}

// New 创建头脑风暴处理器
func New(svc *brainstormService.Service, hub *broadcast.Hub) *Handler {
	return &Handler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingInterval: 30 * time.Second,
		writeWait:    10 * time.Second,
	}
}

// RegisterRoutes 注册头脑风暴相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/start", h.handleStart)
	r.Post("/message", h.handleMessage)
	r.Post("/pause", h.handlePause)
	r.Post("/resume", h.handleResume)
	r.Post("/stop", h.handleStop)
	r.Get("/ws", h.handleWebSocket)
	r.Get("/{sessionID}", h.handleGet)
	r.Get("/{sessionID}/summary", h.handleSummary)
	r.Get("/{sessionID}/export", h.handleExport)
	r.Get("/{sessionID}/events", h.handleEvents)
}

type startRequest struct {
	ChatID            string                              `json:"chatId"`
	Topic             string                              `json:"topic"`
	Description       string                              `json:"description"`
	ParticipantConfig brainstormService.ParticipantConfig `json:"participantConfig"`
	Settings          brainstorm.Settings                 `json:"settings"`
}

type messageRequest struct {
	SessionID   string                  `json:"sessionId"`
	Content     string                  `json:"content"`
	Attachments []brainstorm.Attachment `json:"attachments"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type sessionResponse struct {
	Session *brainstorm.Session `json:"session"`
}

type messageResponse struct {
	UserMessage *brainstorm.Message `json:"userMessage"`
	Session     *brainstorm.Session `json:"session"`
}

// handleStart 创建会话并开始对话
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload startRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	identity := middleware.IdentityFrom(r.Context())
	session, err := h.svc.Start(r.Context(), brainstormService.StartInput{
		UserID:       identity.UserID,
		ChatID:       payload.ChatID,
		Topic:        payload.Topic,
		Description:  payload.Description,
		Participants: payload.ParticipantConfig,
		Settings:     payload.Settings,
		Profile:      ai.UserProfile{Name: identity.Name, Language: identity.Language},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{Session: session})
}

// handleMessage 追加用户消息
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload messageRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		writeError(w, brainstorm.Errorf(brainstorm.ErrInvalidRequest, "sessionId is required"))
		return
	}

	msg, session, err := h.svc.SubmitUserMessage(r.Context(), payload.SessionID, payload.Content, payload.Attachments)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, messageResponse{UserMessage: msg, Session: session})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.svc.Pause)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.svc.Resume)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.svc.Stop)
}

type transitionFunc func(ctx context.Context, sessionID string) (*brainstorm.Session, error)

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, transition transitionFunc) {
	var payload sessionRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		writeError(w, brainstorm.Errorf(brainstorm.ErrInvalidRequest, "sessionId is required"))
		return
	}

	session, err := transition(r.Context(), payload.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// handleGet 查询会话
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// handleSummary 返回总结、洞察和统计
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Summary(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

// handleExport 导出会话文档
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Export(r.Context(), chi.URLParam(r, "sessionID"), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		log.Printf("[brainstorm] write export failed: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return brainstorm.ErrInvalidRequest
	}
	return nil
}

// writeError maps command errors to HTTP status codes and stable error codes.
func writeError(w http.ResponseWriter, err error) {
	var be *brainstorm.Error
	if !errors.As(err, &be) {
		log.Printf("[brainstorm] internal error: %v", err)
		utils.RespondErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	utils.RespondErrorCode(w, statusFor(be.Code), be.Code, be.Message)
}

func statusFor(code string) int {
	switch code {
	case brainstorm.ErrSessionNotFound.Code:
		return http.StatusNotFound
	case brainstorm.ErrSessionNotActive.Code,
		brainstorm.ErrSessionNotPaused.Code,
		brainstorm.ErrSessionAlreadyCompleted.Code,
		brainstorm.ErrSessionNotCompleted.Code:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
