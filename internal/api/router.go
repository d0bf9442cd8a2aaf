package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/api/handler"
	apimw "github.com/notifyhub/broadcast/internal/api/middleware"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/service"
	"github.com/notifyhub/broadcast/internal/suppression"
)

// RouterDeps bundles everything the HTTP surface needs. The admin token
// guards the management API, the internal token guards the scheduler target
// and the provider webhook. The fan-out handler is built by the caller so
// shutdown can wait on its in-flight runs.
type RouterDeps struct {
	Service       *service.NotificationService
	Fanout        *handler.FanoutHandler
	Deliveries    repository.DeliveryRepository
	Suppressions  suppression.Store
	Queue         *queue.DispatchQueue
	Registry      prometheus.Gatherer
	AdminToken    string
	AdminID       string
	InternalToken string
	Logger        *zap.Logger
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(deps.Logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(deps.Service, deps.Logger)
	fh := deps.Fanout
	wh := handler.NewWebhookHandler(deps.Deliveries, deps.Suppressions, deps.Logger)
	mh := handler.NewMetricsHandler(deps.Queue)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	// Management API, admin token required.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apimw.AdminAuth(deps.AdminToken, deps.AdminID))

		r.Post("/notifications", nh.Create)
		r.Get("/notifications", nh.List)
		r.Get("/notifications/{id}", nh.GetByID)
		r.Put("/notifications/{id}", nh.Update)
		r.Delete("/notifications/{id}", nh.Cancel)
		r.Get("/notifications/{id}/deliveries", nh.DeliverySummary)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	// Scheduler invocation target.
	r.Route("/internal", func(r chi.Router) {
		r.Use(apimw.BearerAuth(deps.InternalToken))
		r.Post("/fanout", fh.Trigger)
	})

	// Provider delivery feedback.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(apimw.BearerAuth(deps.InternalToken))
		r.Post("/email", wh.EmailFeedback)
	})

	return r
}
