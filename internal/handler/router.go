package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	conversationHandler "github.com/pitchloop/sales-trainer/internal/handler/conversation"
	instructionHandler "github.com/pitchloop/sales-trainer/internal/handler/instruction"
	middlewarePkg "github.com/pitchloop/sales-trainer/internal/middleware"
	conversationService "github.com/pitchloop/sales-trainer/internal/service/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/reply"
	"github.com/pitchloop/sales-trainer/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(conversations *conversationService.Service, registry *session.Registry, generator *reply.Generator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	convHandler := conversationHandler.New(conversations, registry, generator)
	instrHandler := instructionHandler.New(conversations, generator)

	r.Route("/api", func(api chi.Router) {
		convHandler.RegisterRoutes(api)
		instrHandler.RegisterAPIRoutes(api)
	})

	// First-generation surface kept at the root, outside the /api envelope.
	instrHandler.RegisterLegacyRoutes(r)

	return r
}
