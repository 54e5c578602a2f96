package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oracle_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oracle_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	priceReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "pricing",
			Name:      "reads_total",
			Help:      "Total number of LP price reads, by outcome.",
		},
		[]string{"result"},
	)

	priceReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "oracle_layer",
			Subsystem: "pricing",
			Name:      "read_duration_seconds",
			Help:      "Duration of LP price reads.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	registrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Total number of liquidity-token registrations.",
		},
	)

	nebulas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oracle_layer",
			Subsystem: "registry",
			Name:      "nebulas",
			Help:      "Number of oracle instances known to the registry.",
		},
	)

	lpPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "oracle_layer",
			Subsystem: "pricing",
			Name:      "lp_price",
			Help:      "Last observed LP price in denomination units.",
		},
		[]string{"token"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		priceReads,
		priceReadDuration,
		registrations,
		nebulas,
		lpPrice,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPriceRead records one price-read attempt and its outcome.
func RecordPriceRead(result string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	priceReads.WithLabelValues(result).Inc()
	priceReadDuration.Observe(duration.Seconds())
}

// RecordRegistration counts a successful liquidity-token registration.
func RecordRegistration() {
	registrations.Inc()
}

// SetNebulaCount publishes the number of registered oracle instances.
func SetNebulaCount(n int) {
	nebulas.Set(float64(n))
}

// SetLPPrice publishes the last observed price for a token.
func SetLPPrice(token string, price float64) {
	lpPrice.WithLabelValues(token).Set(price)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "nebulas":
		if len(parts) == 1 {
			return "/nebulas"
		}
		if len(parts) == 2 {
			return "/nebulas/:id"
		}
		return "/nebulas/:id/" + parts[2]
	case "prices":
		if len(parts) == 1 {
			return "/prices"
		}
		if len(parts) == 2 {
			return "/prices/:token"
		}
		return "/prices/:token/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
