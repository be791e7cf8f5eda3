package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Markizx/neural-chat-sub000/internal/handler/brainstorm"
	middlewarePkg "github.com/Markizx/neural-chat-sub000/internal/middleware"
	brainstormService "github.com/Markizx/neural-chat-sub000/internal/service/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/broadcast"
	"github.com/Markizx/neural-chat-sub000/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(svc *brainstormService.Service, hub *broadcast.Hub, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	brainstormHandler := brainstorm.New(svc, hub)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.UserIdentity)
		api.Route("/brainstorm", brainstormHandler.RegisterRoutes)
	})

	return r
}
