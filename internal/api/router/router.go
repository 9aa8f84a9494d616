// Package router wires the HTTP surface of the scheduling service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/schedule"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ScheduleHandler     *schedule.Handler
	AppointmentsHandler *appointments.Handler
	MetricsHandler      http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.AppointmentsHandler != nil {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", cfg.AppointmentsHandler.Book)
			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", cfg.AppointmentsHandler.Get)
				r.Post("/confirm", cfg.AppointmentsHandler.Confirm)
				r.Post("/start", cfg.AppointmentsHandler.Start)
				r.Post("/complete", cfg.AppointmentsHandler.Complete)
				r.Post("/cancel", cfg.AppointmentsHandler.Cancel)
				r.Post("/no-show", cfg.AppointmentsHandler.NoShow)
				r.Post("/reschedule", cfg.AppointmentsHandler.Reschedule)
			})
		})
	}

	r.Route("/providers/{providerID}", func(r chi.Router) {
		if cfg.ScheduleHandler != nil {
			r.Get("/schedule", cfg.ScheduleHandler.GetTemplate)
			r.Put("/schedule", cfg.ScheduleHandler.PutTemplate)
		}
		if cfg.AppointmentsHandler != nil {
			r.Get("/slots", cfg.AppointmentsHandler.Slots)
			r.Get("/stats", cfg.AppointmentsHandler.Stats)
		}
	})

	return r
}
