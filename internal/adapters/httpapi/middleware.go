package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
)

// RequestLogger logs each request and stores a request-scoped logger in the
// context for handlers.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := chimw.GetReqID(r.Context())
			reqLogger := logger.With().Str("request_id", reqID).Logger()
			r = r.WithContext(reqLogger.WithContext(r.Context()))

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			reqLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// httpMetrics owns a private registry so several handlers can coexist in one
// process.
type httpMetrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newHTTPMetrics(dispatcher *usecase.Dispatcher, relay *usecase.EventRelay) *httpMetrics {
	m := &httpMetrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if dispatcher != nil {
		m.registry.MustRegister(
			outcomeCounter("dpp_playground_dispatch_total", "Playground dispatch cycles by outcome", "success", func() float64 {
				return float64(dispatcher.Metrics().SuccessTotal)
			}),
			outcomeCounter("dpp_playground_dispatch_total", "Playground dispatch cycles by outcome", "http_error", func() float64 {
				return float64(dispatcher.Metrics().ErrorTotal)
			}),
			outcomeCounter("dpp_playground_dispatch_total", "Playground dispatch cycles by outcome", "request_failed", func() float64 {
				return float64(dispatcher.Metrics().FailureTotal)
			}),
		)
	}
	if relay != nil {
		m.registry.MustRegister(
			outcomeCounter("dpp_outbox_events_total", "Outbox events by relay outcome", "relayed", func() float64 {
				return float64(relay.Metrics().Relayed)
			}),
			outcomeCounter("dpp_outbox_events_total", "Outbox events by relay outcome", "retried", func() float64 {
				return float64(relay.Metrics().Retried)
			}),
			outcomeCounter("dpp_outbox_events_total", "Outbox events by relay outcome", "abandoned", func() float64 {
				return float64(relay.Metrics().Abandoned)
			}),
		)
	}
	return m
}

func outcomeCounter(name, help, outcome string, fn func() float64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"outcome": outcome},
	}, fn)
}

func (m *httpMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		// Route pattern keeps label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
