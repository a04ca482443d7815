package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"

	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
)

type RouterOptions struct {
	// Limiter is optional; requests are not throttled without one.
	Limiter  *limiter.Limiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func Router(h *Handler, opts RouterOptions) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.Use(Observe(h.log, opts.Metrics))

	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	alerts := v1.PathPrefix("/alerts").Subrouter()
	alerts.Use(RequireUser)
	if opts.Limiter != nil {
		alerts.Use(RateLimit(opts.Limiter))
	}
	alerts.HandleFunc("", h.CreateAlert).Methods(http.MethodPost)
	alerts.HandleFunc("/active", h.ActiveAlert).Methods(http.MethodGet)
	alerts.HandleFunc("/history", h.History).Methods(http.MethodGet)
	alerts.HandleFunc("/{id}", h.GetAlert).Methods(http.MethodGet)
	alerts.HandleFunc("/{id}/locations", h.AddLocation).Methods(http.MethodPost)
	alerts.HandleFunc("/{id}/locations", h.ListLocations).Methods(http.MethodGet)
	alerts.HandleFunc("/{id}/locations/last", h.LastLocation).Methods(http.MethodGet)
	alerts.HandleFunc("/{id}/resolve", h.ResolveAlert).Methods(http.MethodPost)

	if n := h.notifications; n != nil {
		notifications := v1.PathPrefix("/notifications").Subrouter()
		notifications.Use(RequireUser)
		if opts.Limiter != nil {
			notifications.Use(RateLimit(opts.Limiter))
		}
		notifications.HandleFunc("/fcm-token", n.UpdatePushToken).Methods(http.MethodPost)
		notifications.HandleFunc("/test-push", n.TestPush).Methods(http.MethodPost)
		notifications.HandleFunc("/test-email", n.TestEmail).Methods(http.MethodPost)
		notifications.HandleFunc("/trusted-contacts", n.AddTrustedContact).Methods(http.MethodPost)
	}

	if a := h.admin; a != nil {
		admin := v1.PathPrefix("/admin").Subrouter()
		admin.HandleFunc("/queue/stats", a.QueueStats).Methods(http.MethodGet)
		admin.HandleFunc("/queue/pause", a.PauseQueue).Methods(http.MethodPost)
		admin.HandleFunc("/queue/resume", a.ResumeQueue).Methods(http.MethodPost)
		admin.HandleFunc("/queue/drain", a.DrainQueue).Methods(http.MethodPost)
		admin.HandleFunc("/queue/clean", a.CleanQueue).Methods(http.MethodPost)
		admin.HandleFunc("/queue/failed", a.FailedJobs).Methods(http.MethodGet)
		admin.HandleFunc("/queue/retry-failed", a.RetryFailed).Methods(http.MethodPost)

		admin.HandleFunc("/maintenance/status", a.MaintenanceStatus).Methods(http.MethodGet)
		admin.HandleFunc("/maintenance/start", a.MaintenanceStart).Methods(http.MethodPost)
		admin.HandleFunc("/maintenance/stop", a.MaintenanceStop).Methods(http.MethodPost)
	}

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("sos-dispatch"))
	}).Methods(http.MethodGet)

	return r
}
