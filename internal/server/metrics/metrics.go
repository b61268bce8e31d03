// Package metrics holds the Prometheus collectors of the server and the
// chi router of its HTTP side port.
package metrics

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RPCTotal counts handled unary calls by method and gRPC code.
	RPCTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mk_server_rpc_total",
			Help: "Handled unary RPCs by method and code.",
		},
		[]string{"method", "code"},
	)

	OpenStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mk_server_open_streams",
		Help: "Open server streams by method.",
	}, []string{"method"})

	// StatusTransitions counts pipeline driven status changes by target.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mk_server_status_transitions_total",
			Help: "Record status changes applied by the pipeline callback.",
		},
		[]string{"status"},
	)

	KeysIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mk_server_keys_issued_total",
		Help: "Field encryption keys generated for users.",
	})

	HubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mk_server_hub_dropped_total",
		Help: "Deletion events dropped because a watcher fell behind.",
	})
)

// HealthFunc reports whether the server can serve requests.
type HealthFunc func(ctx context.Context) error

// NewRouter mounts /metrics and /healthz.
func NewRouter(health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
