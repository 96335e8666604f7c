package notify

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "fleetguard/pkg/domain-errors"
	"fleetguard/pkg/platform/httputil"
	"fleetguard/pkg/requestcontext"
)

// Handler exposes the queue over HTTP.
type Handler struct {
	queue  *Queue
	logger *slog.Logger
}

func NewHandler(queue *Queue, logger *slog.Logger) *Handler {
	return &Handler{queue: queue, logger: logger}
}

// Register mounts notification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/notifications", h.HandleList)
	r.Delete("/v1/notifications/{notificationID}", h.HandleDismiss)
}

type listResponse struct {
	Notifications []Notification `json:"notifications"`
}

// HandleList handles GET /v1/notifications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, listResponse{Notifications: h.queue.Active()})
}

// HandleDismiss handles DELETE /v1/notifications/{notificationID}.
func (h *Handler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid notification id"))
		return
	}
	if !h.queue.Dismiss(notificationID) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "notification not found"))
		return
	}
	h.logger.InfoContext(ctx, "notification dismissed",
		"request_id", requestcontext.RequestID(ctx),
		"notification_id", notificationID,
	)
	w.WriteHeader(http.StatusNoContent)
}
