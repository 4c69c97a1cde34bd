package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/api/middleware"
	"github.com/example/order-saga/internal/auth"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/observability"
)

// Routes registers one service's endpoints. Mutating operator endpoints are
// wrapped with operator.
type Routes interface {
	Register(r chi.Router, operator func(http.Handler) http.Handler)
}

type RouterConfig struct {
	Service string
	// Bindings are exposed at /dapr/subscribe and served on their routes.
	Bindings []events.Binding
	Metrics  *observability.Metrics
	// JWT guards operator endpoints; nil leaves them open.
	JWT    *auth.JWTService
	Logger *zap.Logger
}

// NewRouter builds the HTTP surface shared by every service and mounts routes
// on it.
func NewRouter(cfg RouterConfig, routes ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": cfg.Service,
		})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	subs := events.Subscriptions(cfg.Bindings)
	r.Get("/dapr/subscribe", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, subs)
	})
	for _, b := range cfg.Bindings {
		r.Post(b.Route, ingress(b, cfg.Metrics, cfg.Logger))
	}

	operator := middleware.Operator(cfg.JWT)
	for _, rt := range routes {
		rt.Register(r, operator)
	}
	return r
}

// ingress serves sidecar deliveries. A 2xx acknowledges the event, anything
// else asks for redelivery.
func ingress(b events.Binding, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		err = events.Process(r.Context(), body, b.Handler)
		switch {
		case err == nil:
			metrics.EventHandled(b.Topic, "ack")
			respondJSON(w, http.StatusOK, map[string]string{"status": "SUCCESS"})
		case events.IsTerminal(err):
			logger.Warn("dropping malformed event", zap.String("topic", b.Topic), zap.Error(err))
			metrics.EventHandled(b.Topic, "dropped")
			respondJSON(w, http.StatusOK, map[string]string{"status": "DROP"})
		default:
			logger.Error("event handling failed", zap.String("topic", b.Topic), zap.Error(err))
			metrics.EventHandled(b.Topic, "retry")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"status": "RETRY"})
		}
	}
}
