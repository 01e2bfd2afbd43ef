package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

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

	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Register, login and logout attempts by outcome.",
		},
		[]string{"op", "result"},
	)

	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Bearer token validations by outcome.",
		},
		[]string{"result"},
	)
)

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authOperations, tokenValidations)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthOperation counts one register/login/logout attempt.
func RecordAuthOperation(op, result string) {
	authOperations.WithLabelValues(op, result).Inc()
}

// RecordTokenValidation counts one bearer validation ("ok" or "rejected").
func RecordTokenValidation(result string) {
	tokenValidations.WithLabelValues(result).Inc()
}

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// otherPath labels every request that matches no route.
const otherPath = "other"

var staticRoutes = map[string]struct{}{
	"/":              {},
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
	"/auth/register": {},
	"/auth/login":    {},
	"/auth/logout":   {},
	"/auth/me":       {},
	"/api/projects":  {},
}

// CanonicalPath maps a request path to its route template. Ids become ":id"
// and unknown paths collapse into "other" so label cardinality stays bounded
// whatever clients send.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if _, ok := staticRoutes[p]; ok {
		return p
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "api" && (parts[1] == "projects" || parts[1] == "tasks") && parts[2] != "":
		return "/api/" + parts[1] + "/:id"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "projects" && parts[2] != "" && parts[3] == "tasks":
		return "/api/projects/:id/tasks"
	}
	return otherPath
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
