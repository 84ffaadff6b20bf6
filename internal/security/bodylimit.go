package security

import (
	"net/http"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// BodyLimit caps request payload sizes. Zero or negative Max disables the cap.
type BodyLimit struct {
	Max int64
}

// Middleware rejects requests whose declared length exceeds the cap and wraps
// the body with http.MaxBytesReader so oversized chunked uploads fail on read.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds limit", map[string]any{
				"max_bytes": b.Max,
			})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
