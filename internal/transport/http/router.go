package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rifas-api/internal/application/auth"
	"github.com/rifas-api/internal/config"
	"github.com/rifas-api/internal/transport/http/handler"
	appmiddleware "github.com/rifas-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background sweepers of the rate limiters.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.Logging(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.Verifier)
	adminOnly := appmiddleware.RequireRole(auth.RoleAdmin)

	// 5 requests/second, burst of 10 for the public reservation endpoint.
	reserveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)
	// Login is slower still.
	loginRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(1), 5)

	healthH := handler.NewHealthHandler(deps.Status)
	sessionH := handler.NewSessionHandler(deps.Auth)
	raffleH := handler.NewRaffleHandler(deps.Raffles)
	reserveH := handler.NewReservationHandler(deps.Reservations, deps.Links)
	linkH := handler.NewLinkHandler(deps.Links)
	notifH := handler.NewNotificationHandler(deps.Notifications)
	exportH := handler.NewExportHandler(deps.Exports)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/status", healthH.Status)
		r.With(loginRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Get("/raffles/{id}/public", raffleH.Public)
		r.Get("/raffles/{id}/links/{linkId}", linkH.Check)
		r.With(reserveRL.Limit).Post("/raffles/{id}/reservations", reserveH.Reserve)

		// ── Admin routes ─────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw, adminOnly)

			r.Get("/raffles", raffleH.List)
			r.Post("/raffles", raffleH.Create)
			r.Get("/raffles/{id}", raffleH.Get)
			r.Delete("/raffles/{id}", raffleH.Delete)
			r.Post("/raffles/{id}/pause", raffleH.Pause)
			r.Post("/raffles/{id}/resume", raffleH.Resume)
			r.Post("/raffles/{id}/archive", raffleH.Archive)
			r.Post("/raffles/{id}/unarchive", raffleH.Unarchive)
			r.Post("/raffles/{id}/finish", raffleH.Finish)
			r.Get("/raffles/{id}/stats", raffleH.Stats)
			r.Get("/raffles/{id}/participants", raffleH.Participants)
			r.Get("/raffles/{id}/participants.csv", exportH.Download)
			r.Post("/raffles/{id}/exports", exportH.Publish)
			r.Get("/raffles/{id}/links", linkH.List)
			r.Post("/raffles/{id}/links", linkH.Create)
			r.Delete("/raffles/{id}/links/{linkId}", linkH.Delete)

			r.Get("/notifications", notifH.List)
			r.Put("/notifications/read", notifH.MarkAllRead)
			r.Get("/notifications/{id}", notifH.Get)
			r.Put("/notifications/{id}/read", notifH.MarkRead)
			r.Delete("/notifications/{id}", notifH.Delete)
		})
	})

	return r
}
