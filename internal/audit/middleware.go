package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder records mutating HTTP requests after they complete.
type HTTPRecorder struct {
	Service Service
	OnError func(error)
}

// Middleware records every non-read request that passes through it. The entry
// is written after the handler responds so the recorded status is final.
func (rec HTTPRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rec.Service.Enabled || isReadOnly(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		resourceID := chi.URLParam(r, "id")
		if err := rec.Service.Record(r.Context(), r, sw.Status(), resourceID, nil); err != nil && rec.OnError != nil {
			rec.OnError(err)
		}
	})
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
