package api

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// instrument logs each request and records it under its route template,
// so /withdrawals/{id} is one series regardless of id.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		if route == "/metrics" || route == "/healthz" {
			return
		}
		zap.L().Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", wrapped.status),
			zap.Duration("duration", elapsed),
			zap.Int64("bytes", wrapped.written),
			zap.String("remote_addr", r.RemoteAddr))
	})
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				zap.L().Error("Handler panicked",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: genericFailure, Code: "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
