package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/localrivet/fichas-mcp/types"
)

// requestLogger logs one line per HTTP request through the server logger.
// For SSE streams the line is written when the stream ends.
func requestLogger(logger types.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Info
			switch {
			case status >= 500:
				log = logger.Error
			case status >= 400:
				log = logger.Warn
			}
			log("http_request method=%s path=%s status=%d bytes=%d duration=%s client_ip=%s request_id=%s",
				r.Method, r.URL.Path, status, ww.BytesWritten(), time.Since(start), r.RemoteAddr,
				middleware.GetReqID(r.Context()))
		})
	}
}
