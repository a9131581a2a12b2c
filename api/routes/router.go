package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hmardones/ticketero-backend/api/controllers"
	"github.com/hmardones/ticketero-backend/api/middleware"
	"github.com/hmardones/ticketero-backend/internal/advisors"
	"github.com/hmardones/ticketero-backend/internal/recovery"
	"github.com/hmardones/ticketero-backend/internal/tickets"
	"github.com/hmardones/ticketero-backend/pkg/db"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

// NewRouter wires the HTTP surface: ticket issuance and lifecycle, queue
// boards, advisor management, and the manual recovery trigger.
func NewRouter(
	logg *logger.Logger,
	dbClient *db.Client,
	ticketService *tickets.Service,
	advisorService *advisors.Service,
	recoveryService *recovery.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(dbClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", controllers.TicketCreate(ticketService, logg))
			r.Get("/{ticketID}", controllers.TicketGet(ticketService, logg))
			r.Get("/number/{number}", controllers.TicketGetByNumber(ticketService, logg))
			r.Post("/{ticketID}/finish", controllers.TicketFinish(ticketService, logg))
		})

		r.Route("/queues/{queueType}", func(r chi.Router) {
			r.Get("/board", controllers.QueueBoard(ticketService, logg))
			r.Post("/call-next", controllers.QueueCallNext(ticketService, logg))
		})

		r.Route("/advisors", func(r chi.Router) {
			r.Post("/", controllers.AdvisorCreate(advisorService, logg))
			r.Get("/", controllers.AdvisorList(advisorService, logg))
			r.Get("/{advisorID}", controllers.AdvisorGet(advisorService, logg))
			r.Patch("/{advisorID}/status", controllers.AdvisorSetStatus(advisorService, logg))
			r.Post("/{advisorID}/heartbeat", controllers.AdvisorHeartbeat(advisorService, logg))
			r.Post("/{advisorID}/recover", controllers.AdvisorRecover(recoveryService, logg))
		})

		r.Get("/recovery-events", controllers.RecoveryEventList(recoveryService, logg))
	})

	return r
}
