package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"sealdrive/internal/httputil"
)

// Recovery turns a handler panic into a 500 problem response. An aborted
// stream (http.ErrAbortHandler) is passed through so the server drops the
// connection instead of appending an error body to a half-written blob.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = httputil.TrackCaller(r)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", httputil.GetUserID(r),
					"stack", string(debug.Stack()),
				)
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
