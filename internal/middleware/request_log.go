package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"sealdrive/internal/httputil"
)

// statusRecorder captures the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed blob downloads flowing through the wrapper
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger logs one line per request. Server errors log at error level,
// client errors at info, everything else at debug.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r = httputil.TrackCaller(r)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if userID := httputil.GetUserID(r); userID != "" {
				attrs = append(attrs, "user_id", userID)
			}

			switch {
			case rec.status >= 500:
				logger.Error("request failed", attrs...)
			case rec.status >= 400:
				logger.Info("request rejected", attrs...)
			default:
				logger.Debug("request served", attrs...)
			}
		})
	}
}
