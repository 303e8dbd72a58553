package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search pipeline Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annols",
			Name:      "searches_total",
			Help:      "Total number of annotation searches by outcome",
		},
		[]string{"outcome"}, // "ok" / "empty" / error kind
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "annols",
			Name:      "search_duration_seconds",
			Help:      "Annotation search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annols",
			Name:      "files_total",
			Help:      "Candidate files by pipeline result",
		},
		[]string{"result"}, // "scanned" / "filtered" / "too_large" / "io_failure" / "parse_failure"
	)

	OccurrencesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "annols",
			Name:      "occurrences_total",
			Help:      "Total annotation occurrences returned",
		},
	)

	SymbolLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annols",
			Name:      "symbol_lookups_total",
			Help:      "Symbol index lookups by result",
		},
		[]string{"result"}, // "found" / "not_found" / "fallback"
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annols",
			Name:      "protocol_requests_total",
			Help:      "Protocol requests by method and status",
		},
		[]string{"method", "status"},
	)
)

var registerOnce sync.Once

// Register registers all metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SearchesTotal)
		prometheus.MustRegister(SearchDuration)
		prometheus.MustRegister(FilesTotal)
		prometheus.MustRegister(OccurrencesTotal)
		prometheus.MustRegister(SymbolLookupsTotal)
		prometheus.MustRegister(RequestsTotal)
	})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
