// ABOUTME: chi route table for the gateway: CORS, request logging, auth and API routes
// ABOUTME: Everything under /api requires a bearer token for a known actor

package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/bazaar-gateway/internal/auth"
)

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(g.logger))
	r.Use(middleware.Recoverer)

	if origins := g.config.CORS.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", g.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.store, g.verifier, g.logger))

		r.Get("/feed", g.handleFeed)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", g.handleListConversations)
			r.Post("/", g.handleResolveConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", g.handleGetConversation)
				r.Get("/messages", g.handleListMessages)
				r.Post("/messages", g.handleSendMessage)
				r.Get("/messages/latest", g.handleLatestMessage)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Put("/me", g.handleUpdateProfile)
			r.Get("/{id}", g.handleGetProfile)
		})
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
