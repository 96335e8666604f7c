package middleware

import (
	"log/slog"
	"net/http"

	id "fleetguard/pkg/domain"
	"fleetguard/pkg/requestcontext"
)

// ViewerHeader names the user on whose behalf the request is made.
// Authentication happens upstream; this service only scopes notifications.
const ViewerHeader = "X-Fleet-Viewer"

// Viewer stores the viewer id from ViewerHeader in the context. A missing or
// malformed header leaves the request anonymous.
func Viewer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(ViewerHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := id.ParseUserID(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "ignoring malformed viewer header",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
