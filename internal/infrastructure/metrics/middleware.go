package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware records request count, status and duration per chi route
// pattern. exporter may be nil.
func HTTPMiddleware(collector *Collector, exporter *PrometheusExporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := RoutePattern(r)
			duration := time.Since(start).Seconds()

			collector.RecordRequest(route, status, duration)
			if exporter != nil {
				exporter.RecordHTTPRequest(route, r.Method, status, duration)
			}
		})
	}
}

// RoutePattern returns the matched chi pattern, keeping label cardinality
// bounded. Unmatched requests share one label.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
