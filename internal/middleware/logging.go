// Package middleware holds the HTTP middleware wrapped around the host router.
package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"traffic-duplicator/internal/common/logging"
)

// statusRecorder remembers what the handler answered
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += int64(n)
	return n, err
}

// Flush lets handlers push the answer out before duplicating
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AccessLog logs one line per inbound request. Answered requests go to
// debug since every duplicated request passes through here; client errors
// are warnings and server errors are errors.
func AccessLog(logger logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("uri", r.RequestURI),
				logging.Int("status", rec.status),
				logging.Int64("bytes", rec.bytes),
				logging.Duration("took", time.Since(start)),
				logging.String("remote_addr", r.RemoteAddr),
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Error("Request answered", nil, fields...)
			case rec.status >= http.StatusBadRequest:
				logger.Warn("Request answered", fields...)
			default:
				logger.Debug("Request answered", fields...)
			}
		})
	}
}
