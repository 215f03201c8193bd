package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rifas-api/internal/application/auth"
	"github.com/rifas-api/internal/application/export"
	"github.com/rifas-api/internal/application/link"
	"github.com/rifas-api/internal/application/notification"
	"github.com/rifas-api/internal/application/raffle"
	"github.com/rifas-api/internal/application/reservation"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/transport/http/handler"
	appmiddleware "github.com/rifas-api/internal/transport/http/middleware"
)

// Deps holds the application services and cross-cutting collaborators the router needs.
type Deps struct {
	Raffles       raffle.Service
	Reservations  reservation.Service
	Links         link.Service
	Notifications notification.Service
	Exports       export.Service
	Auth          auth.Service
	Status        handler.StatusReporter

	// Verifier may be nil, in which case admin routes answer 503.
	Verifier appmiddleware.TokenVerifier
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
}
