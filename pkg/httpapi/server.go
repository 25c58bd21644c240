// Package httpapi is the ambient health/metrics HTTP surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wtthornton/homeiq-insight/pkg/metrics"
)

// Pinger is the narrow readiness dependency: anything that can confirm
// the single-writer store is reachable (storage.Store.DB satisfies this
// via *sql.DB.PingContext).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RunStatusReader supplies the most recent AnalysisRun summary for
// /ready, so a dashboard can show "last run succeeded at ..." without a
// full query-API round trip.
type RunStatusReader interface {
	LatestRunSummary() (id string, status string, finishedAt *time.Time, err error)
}

// Server wraps a chi.Mux exposing /health, /ready, and /metrics, with
// request-duration instrumentation on every route.
type Server struct {
	router *chi.Mux
	http   *http.Server
}

// NewServer builds a Server listening on addr. store may be nil (health
// then reports "unknown" instead of pinging); runs may be nil (ready
// omits the last-run summary).
func NewServer(addr string, store Pinger, runs RunStatusReader, m *metrics.Metrics, log *logrus.Logger) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(requestMetrics(m))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(store, runs))
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		router: r,
		http:   &http.Server{Addr: addr, Handler: r},
	}
}

// ListenAndServe blocks serving the ambient surface until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func readyHandler(store Pinger, runs RunStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok"}

		if store != nil {
			if err := store.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "error": err.Error()})
				return
			}
		}

		if runs != nil {
			id, status, finishedAt, err := runs.LatestRunSummary()
			if err == nil {
				body["last_run_id"] = id
				body["last_run_status"] = status
				body["last_run_finished_at"] = finishedAt
			}
		}

		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestMetrics records per-request duration labeled by method,
// normalized endpoint, and status code. A nil m disables recording
// without disabling the middleware.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			endpoint := metrics.NormalizePath(r.URL.Path)
			m.ObserveHTTPRequest(r.Method, endpoint, statusLabel(rec.status), time.Since(started))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "500"
	case code >= 400:
		return "400"
	case code >= 300:
		return "300"
	default:
		return "200"
	}
}
