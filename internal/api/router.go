package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/taskpulse/taskpulse/internal/api/middleware"
	"github.com/taskpulse/taskpulse/internal/events"
)

// ConnectionServer upgrades and runs one websocket connection.
type ConnectionServer interface {
	ServeConnection(w http.ResponseWriter, r *http.Request, ownerID string)
}

// RouterDeps carries the services the router exposes.
type RouterDeps struct {
	TaskLifecycle     events.Handler
	ReminderLifecycle events.Handler
	TaskBroadcast     events.Handler
	Scheduler         ReminderScheduler
	Dispatcher        ReminderDispatcher
	Hub               ConnectionServer
	Gauges            HubGauges
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.TraceMiddleware)

	eventsHandler := NewEventsHandler(deps.TaskLifecycle, deps.ReminderLifecycle, deps.TaskBroadcast)
	router.Route("/events", func(r chi.Router) {
		r.Post("/"+events.TopicTaskLifecycle, eventsHandler.TaskLifecycle)
		r.Post("/"+events.TopicReminderLifecycle, eventsHandler.ReminderLifecycle)
		r.Post("/"+events.TopicTaskBroadcast, eventsHandler.TaskBroadcast)
	})

	router.Route("/api", func(r chi.Router) {
		r.Post("/reminders", NewRemindersHandler(deps.Scheduler).Schedule)
		r.Post("/jobs/reminder", NewJobsHandler(deps.Dispatcher).TriggerReminder)
	})

	router.Get("/ws/{owner_id}", func(w http.ResponseWriter, r *http.Request) {
		deps.Hub.ServeConnection(w, r, chi.URLParam(r, "owner_id"))
	})

	router.Get("/healthz", NewHealthHandler(deps.Gauges).Check)

	return router
}
