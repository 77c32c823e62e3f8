package api

import (
	"net/http"

	"github.com/blueclef/receiptify/internal/contextutil"
	"github.com/google/uuid"
)

// TraceMiddleware tags every request with a trace id so storage and service
// logs can be correlated.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := contextutil.WithTraceID(r.Context(), uuid.New().String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
