package audit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/audit"
)

func TestMiddlewareRecordsMutations(t *testing.T) {
	store := &fakeStore{}
	recorder := audit.HTTPRecorder{Service: audit.Service{Store: store, Enabled: true}}

	r := chi.NewRouter()
	r.Use(recorder.Middleware)
	r.Delete("/api/v1/expenses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/v1/expenses", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/expenses/exp-7", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/expenses", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.entries, 1, "reads are not audited")
	entry := store.entries[0]
	require.Equal(t, "expenses", entry.Resource)
	require.Equal(t, "exp-7", entry.ResourceID)
	require.Equal(t, http.StatusNoContent, entry.Status)
}
