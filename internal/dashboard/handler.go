package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetguard/internal/compliance/aggregate"
	id "fleetguard/pkg/domain"
	dErrors "fleetguard/pkg/domain-errors"
	"fleetguard/pkg/platform/httputil"
	"fleetguard/pkg/requestcontext"
)

// Handler wires dashboard endpoints to the service and the live board.
type Handler struct {
	service *Service
	board   *Board
	logger  *slog.Logger
}

// NewHandler constructs a handler. board may be nil when live sync is off.
func NewHandler(service *Service, board *Board, logger *slog.Logger) *Handler {
	return &Handler{service: service, board: board, logger: logger}
}

// Register mounts dashboard endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/dashboard", h.HandleDashboard)
	r.Get("/v1/live/dashboard", h.HandleLiveDashboard)
	r.Get("/v1/sanctions", h.HandleSanctions)
	r.Get("/v1/drivers/{driverID}/license", h.HandleDriverLicense)
	r.Get("/v1/infractions/{infractionID}/severity", h.HandleSeverity)
}

func (h *Handler) scope(r *http.Request) (aggregate.ScopeFilter, error) {
	q := r.URL.Query()
	return aggregate.ParseScope(q.Get("partner"), q.Get("driver"), q.Get("year"),
		requestcontext.Now(r.Context()).Year())
}

type liveDashboardResponse struct {
	aggregate.Dashboard
	UpdatedAt time.Time `json:"updated_at"`
}

// HandleDashboard handles GET /v1/dashboard.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := h.scope(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.Dashboard(ctx, scope)
	if err != nil {
		h.logger.ErrorContext(ctx, "dashboard failed",
			"request_id", requestcontext.RequestID(ctx),
			"scope", scope.Key(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// HandleLiveDashboard handles GET /v1/live/dashboard.
func (h *Handler) HandleLiveDashboard(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scope(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	engine, updated, ok := h.liveEngine()
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "live board is not ready"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, liveDashboardResponse{
		Dashboard: engine.Dashboard(scope),
		UpdatedAt: updated,
	})
}

func (h *Handler) liveEngine() (*aggregate.Engine, time.Time, bool) {
	if h.board == nil {
		return nil, time.Time{}, false
	}
	return h.board.Engine()
}

type sanctionsResponse struct {
	Scope     aggregate.ScopeView        `json:"scope"`
	Sanctions []aggregate.LicenseBalance `json:"sanctions"`
}

// HandleSanctions handles GET /v1/sanctions.
func (h *Handler) HandleSanctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := h.scope(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var sanctions []aggregate.LicenseBalance
	if engine, _, ok := h.liveEngine(); ok {
		sanctions = engine.Sanctions(scope)
	} else if sanctions, err = h.service.Sanctions(ctx, scope); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sanctionsResponse{Scope: scope.View(), Sanctions: sanctions})
}

// HandleDriverLicense handles GET /v1/drivers/{driverID}/license.
func (h *Handler) HandleDriverLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driver, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid driver id"))
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var detail aggregate.DriverDetail
	if engine, _, ok := h.liveEngine(); ok {
		detail, err = driverDetail(engine, driver, scope)
	} else {
		detail, err = h.service.DriverDetail(ctx, driver, scope)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleSeverity handles GET /v1/infractions/{infractionID}/severity.
func (h *Handler) HandleSeverity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	infID, err := id.ParseInfractionID(chi.URLParam(r, "infractionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid infraction id"))
		return
	}

	var view SeverityView
	if engine, _, ok := h.liveEngine(); ok {
		view, err = severityOf(engine, infID)
	} else {
		view, err = h.service.Severity(ctx, infID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}
