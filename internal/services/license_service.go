package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HarshalJain-cs/Dhandha-sub003/internal/infrastructure"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/license"
)

// LicenseService provides business logic for license operations.
type LicenseService interface {
	GetStatus(ctx context.Context) (*LicenseStatusResponse, error)
	Activate(ctx context.Context, key string) error
	Deactivate(ctx context.Context) error
	GetHardware(ctx context.Context) (*HardwareResponse, error)
}

// LicenseStatusResponse is the standardized license status payload.
type LicenseStatusResponse struct {
	LicenseStatus string          `json:"license_status"` // active|grace_period|expired|revoked|not_activated
	Valid         bool            `json:"valid"`
	Message       string          `json:"message,omitempty"`
	LicenseInfo   *license.Record `json:"license_info,omitempty"`
	TraceID       string          `json:"trace_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// HardwareResponse carries the fingerprint diagnostics payload.
type HardwareResponse struct {
	HardwareID string            `json:"hardware_id"`
	Components map[string]string `json:"components"`
	TraceID    string            `json:"trace_id"`
	Timestamp  time.Time         `json:"timestamp"`
}

// licenseService implements LicenseService on top of the license
// manager.
type licenseService struct {
	manager *license.Manager
	logger  *slog.Logger
}

// NewLicenseService creates a new license service.
func NewLicenseService(manager *license.Manager, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		manager: manager,
		logger:  logger.With(slog.String("service", "license")),
	}
}

// GetStatus returns the current license status and warning for the UI.
func (s *licenseService) GetStatus(ctx context.Context) (*LicenseStatusResponse, error) {
	traceID := infrastructure.GetTraceID(ctx)

	result, err := s.manager.Validate(ctx)
	if err != nil {
		if errors.Is(err, license.ErrNotActivated) {
			return &LicenseStatusResponse{
				LicenseStatus: "not_activated",
				Valid:         false,
				Message:       "No license activated. Please activate a license to use Dhandha.",
				TraceID:       traceID,
				Timestamp:     time.Now(),
			}, nil
		}
		s.logger.ErrorContext(ctx, "license status check failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	info := s.manager.Info()
	status := "not_activated"
	if info != nil {
		status = string(info.Status)
	}

	return &LicenseStatusResponse{
		LicenseStatus: status,
		Valid:         result.Valid,
		Message:       result.Warning,
		LicenseInfo:   info,
		TraceID:       traceID,
		Timestamp:     time.Now(),
	}, nil
}

// Activate binds the given key to this machine through the authority.
func (s *licenseService) Activate(ctx context.Context, key string) error {
	traceID := infrastructure.GetTraceID(ctx)
	s.logger.InfoContext(ctx, "license activation requested",
		slog.String("trace_id", traceID),
		slog.String("license_key", license.MaskKey(key)),
	)
	return s.manager.Activate(ctx, key)
}

// Deactivate releases the activation and clears local state.
func (s *licenseService) Deactivate(ctx context.Context) error {
	traceID := infrastructure.GetTraceID(ctx)
	s.logger.InfoContext(ctx, "license deactivation requested",
		slog.String("trace_id", traceID),
	)
	return s.manager.Deactivate(ctx)
}

// GetHardware returns the machine fingerprint and its factor
// breakdown for support diagnostics.
func (s *licenseService) GetHardware(ctx context.Context) (*HardwareResponse, error) {
	return &HardwareResponse{
		HardwareID: s.manager.HardwareID(),
		Components: s.manager.HardwareInfo(),
		TraceID:    infrastructure.GetTraceID(ctx),
		Timestamp:  time.Now(),
	}, nil
}
