package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	// Registers the generated API definitions with swag.
	_ "github.com/yusuftnc/qchat/docs"
)

// RouterConfig carries the settings the router needs.
type RouterConfig struct {
	APIKey         string
	AllowedOrigins []string
}

// NewRouter creates and configures a new chi router serving the backend
// contract under /ollama/v1.
func NewRouter(chatHandler *ChatHandler, modelHandler *ModelHandler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// --- Global Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-KEY"},
	}).Handler)

	// Generated API documentation.
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Liveness of the gateway itself, independent of the model server.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/ollama/v1", func(r chi.Router) {
		r.Use(requireAPIKey(cfg.APIKey))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/models", modelHandler.HandleListModels)
			r.Get("/health", modelHandler.HandleHealth)
		})

		// Chat and QnA may stream for a long time, so they carry no timeout.
		r.Group(func(r chi.Router) {
			r.Post("/chat", chatHandler.HandleChat)
			r.Post("/qna", chatHandler.HandleQnA)
		})
	})

	return r
}
