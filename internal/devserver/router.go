package devserver

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/metrics"
)

// NewRouter wires the devserver's HTTP surface.
func NewRouter(s *Server, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogging(log))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HandleHealth).Methods("GET")
	api.HandleFunc("/token", s.HandleToken).Methods("POST")
	api.HandleFunc("/sessions", s.HandleSessions).Methods("GET")
	api.HandleFunc("/reservations/lock", s.HandleLock).Methods("POST")
	api.HandleFunc("/reservations/release", s.HandleRelease).Methods("POST")
	api.HandleFunc("/reservations/confirm", s.HandleConfirm).Methods("POST")
	api.HandleFunc("/ws", s.HandleWS).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// responseWriter wraps http.ResponseWriter to capture the status code.
// It implements http.Hijacker so websocket upgrades keep working.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return h.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogging logs each request and records it in the request counter.
func requestLogging(log *zap.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.status),
				zap.Int("size", wrapped.size),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
