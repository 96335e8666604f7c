package testutil

import (
	"net/http"

	id "fleetguard/pkg/domain"
	"fleetguard/pkg/requestcontext"
)

// ViewerHeader is the header the viewer middleware reads the current user from.
const ViewerHeader = "X-Fleet-Viewer"

// WithViewer adds a viewer id to the request context.
// This simulates what the viewer middleware does for requests that carry the
// header. Invalid ids are silently ignored.
func WithViewer(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
	}
	return req
}

// WithViewerHeader sets the viewer header so the request exercises the
// middleware path instead of a pre-populated context.
func WithViewerHeader(req *http.Request, userID string) *http.Request {
	req.Header.Set(ViewerHeader, userID)
	return req
}
