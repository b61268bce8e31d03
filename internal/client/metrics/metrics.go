// Package metrics holds the Prometheus collectors of the client engine and a
// small HTTP exporter for them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UploadsTotal counts finished upload attempts by result (success, failure).
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mk_client_uploads_total",
			Help: "Finished artifact upload attempts by result.",
		},
		[]string{"result"},
	)

	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mk_client_upload_duration_seconds",
		Help:    "Wall time of one artifact upload attempt.",
		Buckets: prometheus.DefBuckets,
	})

	UploadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mk_client_uploads_in_flight",
		Help: "Upload attempts currently running.",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mk_client_active_subscriptions",
		Help: "Open reconciliation subscriptions.",
	})

	// PushUpdatesTotal counts pushed snapshots by outcome (applied, dropped, rejected, transport_error).
	PushUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mk_client_push_updates_total",
			Help: "Server pushed record updates by outcome.",
		},
		[]string{"outcome"},
	)

	KeyExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mk_client_key_exchanges_total",
			Help: "Key exchange calls by result.",
		},
		[]string{"result"},
	)

	// FieldReadsTotal counts materialized encrypted fields (decrypted, degraded).
	FieldReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mk_client_encrypted_field_reads_total",
			Help: "Encrypted fields materialized for display by outcome.",
		},
		[]string{"outcome"},
	)

	ViewCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mk_client_view_cache_hits_total",
		Help: "Decrypted field cache hits.",
	})
	ViewCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mk_client_view_cache_misses_total",
		Help: "Decrypted field cache misses.",
	})
)

// Serve exposes /metrics on addr until ctx is done. An empty addr disables
// the exporter.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
