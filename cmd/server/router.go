package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pixforge/imagine-api/internal/api"
	apiMiddleware "github.com/pixforge/imagine-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	imaginationHandler := api.NewImaginationHandler(app.imaginationService)
	bulkHandler := api.NewBulkHandler(app.bulkService)
	bgHandler := api.NewBackgroundRemovalHandler(app.imaginationService)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)

	r.Route("/v1", func(r chi.Router) {
		// Provider callbacks carry no user token.
		r.Post("/imagination/{id}/webhook", imaginationHandler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/imagination", func(r chi.Router) {
				r.Get("/engines", imaginationHandler.Engines)

				r.Route("/bulk", func(r chi.Router) {
					r.Post("/", bulkHandler.Create)
					r.Get("/{id}", bulkHandler.Get)
				})

				r.Post("/", imaginationHandler.Create)
				r.Get("/", imaginationHandler.List)
				r.Get("/{id}", imaginationHandler.Get)
				r.Delete("/{id}", imaginationHandler.Cancel)
			})

			r.Route("/background-removal", func(r chi.Router) {
				r.Get("/engines", bgHandler.Engines)
				r.Post("/", bgHandler.Create)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
