package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Token pairs issued, by flow (login, refresh).",
		},
		[]string{"flow"},
	)

	tokensRevokedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_revoked_total",
			Help: "Access tokens added to the revocation ledger, by reason.",
		},
		[]string{"reason"},
	)

	tokenReuseTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_reuse_detected_total",
		Help: "Rotated refresh tokens presented again.",
	})

	guardDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_guard_denials_total",
			Help: "Authorization guard denials, by reason.",
		},
		[]string{"reason"},
	)

	blacklistSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_blacklist_swept_total",
		Help: "Expired blacklist entries deleted by sweeps.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "Whether the service reports ready (1) or not (0).",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		tokensIssuedTotal, tokensRevokedTotal, tokenReuseTotal,
		guardDenialsTotal, blacklistSweptTotal, readyGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TokenIssued records an issued token pair.
func TokenIssued(flow string) { tokensIssuedTotal.WithLabelValues(flow).Inc() }

// TokenRevoked records a blacklist insert.
func TokenRevoked(reason string) { tokensRevokedTotal.WithLabelValues(reason).Inc() }

// TokenReuseDetected records a replayed refresh token.
func TokenReuseDetected() { tokenReuseTotal.Inc() }

// GuardDenied records a guard denial.
func GuardDenied(reason string) { guardDenialsTotal.WithLabelValues(reason).Inc() }

// BlacklistSwept records deleted expired blacklist entries.
func BlacklistSwept(n int64) {
	if n > 0 {
		blacklistSweptTotal.Add(float64(n))
	}
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
	} else {
		readyGauge.Set(0)
	}
}

// Instrument wraps a handler with request metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
