package brainstorm

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/pkg/utils"
)

const sseBuffer = 64

var errSlowSubscriber = errors.New("subscriber buffer full")

// sseSubscriber queues events for one SSE response. A full queue drops the
// subscriber instead of blocking the publisher.
type sseSubscriber struct {
	events chan brainstorm.Event
	done   chan struct{}
	once   sync.Once
}

func newSSESubscriber() *sseSubscriber {
	return &sseSubscriber{
		events: make(chan brainstorm.Event, sseBuffer),
		done:   make(chan struct{}),
	}
}

func (s *sseSubscriber) Deliver(evt brainstorm.Event) error {
	select {
	case <-s.done:
		return errSlowSubscriber
	default:
	}

	select {
	case s.events <- evt:
		return nil
	default:
		s.once.Do(func() { close(s.done) })
		return errSlowSubscriber
	}
}

// handleEvents 通过SSE推送会话事件
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.svc.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	subscriberID := "sse-" + uuid.NewString()
	sub := newSSESubscriber()
	h.hub.Join(sessionID, subscriberID, sub)
	defer h.hub.Leave(sessionID, subscriberID)

	log.Printf("[sse] subscriber joined session=%s id=%s", sessionID, subscriberID)
	ctx := r.Context()

	current := brainstorm.StatusEvent(sessionID, session.Status)
	if err := utils.SendSSEEvent(w, flusher, string(current.Type), current); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] subscriber left session=%s id=%s", sessionID, subscriberID)
			return
		case <-sub.done:
			log.Printf("[sse] subscriber dropped session=%s id=%s", sessionID, subscriberID)
			return
		case evt := <-sub.events:
			if err := utils.SendSSEEvent(w, flusher, string(evt.Type), evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "ping"); err != nil {
				return
			}
		}
	}
}
