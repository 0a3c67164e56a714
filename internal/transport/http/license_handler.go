package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/HarshalJain-cs/Dhandha-sub003/internal/errors"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/infrastructure"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/license"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/services"
)

var validate = validator.New()

// LicenseHandler handles license HTTP requests.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the activation payload.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=8"`
}

// Bind implements render.Binder.
func (a *ActivationRequest) Bind(r *http.Request) error {
	if err := validate.Struct(a); err != nil {
		return errors.New("license_key is required")
	}
	return nil
}

// ActivationResponse is returned after a successful activation.
type ActivationResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Routes returns a chi router for the license endpoints. The optional
// middleware is applied to the activation route only, so the caller
// can rate-limit key attempts without slowing status polling.
func (h *LicenseHandler) Routes(activationLimit ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)
	r.With(activationLimit...).Post("/activate", h.Activate)
	r.Delete("/", h.Deactivate)
	r.Get("/hardware", h.GetHardware)

	return r
}

// GetStatus handles GET /api/license/status.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response, err := h.service.GetStatus(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "license status request failed",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.InternalServerError(err))
		return
	}

	render.JSON(w, r, response)
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &ActivationRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if err := h.service.Activate(ctx, data.LicenseKey); err != nil {
		render.Render(w, r, activationError(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, &ActivationResponse{
		Success:   true,
		Message:   "License activated successfully.",
		TraceID:   infrastructure.GetTraceID(ctx),
		Timestamp: time.Now(),
	})
}

// Deactivate handles DELETE /api/license.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Deactivate(ctx); err != nil {
		if errors.Is(err, license.ErrNotActivated) {
			render.Render(w, r, apierrors.New(http.StatusNotFound, "NOT_ACTIVATED",
				"No license is activated on this machine."))
			return
		}
		render.Render(w, r, apierrors.InternalServerError(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{"success": true})
}

// GetHardware handles GET /api/license/hardware. Diagnostics only;
// the fingerprint never participates in request authorization here.
func (h *LicenseHandler) GetHardware(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response, err := h.service.GetHardware(ctx)
	if err != nil {
		render.Render(w, r, apierrors.InternalServerError(err))
		return
	}

	render.JSON(w, r, response)
}

// activationError maps engine sentinels to API responses.
func activationError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, license.ErrInvalidKeyFormat):
		return apierrors.New(http.StatusBadRequest, "INVALID_KEY_FORMAT",
			"License key format is invalid. Expected: DH-XXXX-XXXX-XXXX-XXXX.")
	case errors.Is(err, license.ErrInvalidKey):
		return apierrors.New(http.StatusNotFound, "INVALID_KEY",
			"License key was not recognized. Check the key and try again.")
	case errors.Is(err, license.ErrActivationLimit):
		return apierrors.New(http.StatusConflict, "ACTIVATION_LIMIT",
			"This license key has reached its activation limit.")
	case errors.Is(err, license.ErrAlreadyActivated):
		return apierrors.New(http.StatusConflict, "ALREADY_ACTIVATED",
			"A valid license is already activated on this machine.")
	case errors.Is(err, license.ErrRevoked):
		return apierrors.New(http.StatusForbidden, "REVOKED",
			"This license key has been revoked. Please contact support.")
	case license.IsNetworkError(err):
		return apierrors.New(http.StatusServiceUnavailable, "AUTHORITY_UNREACHABLE",
			"Could not reach the license server. Check your connection and try again.")
	default:
		return apierrors.InternalServerError(err)
	}
}
