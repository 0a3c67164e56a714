package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// HardwareProvider yields the machine fingerprint and its factor
// breakdown.
type HardwareProvider interface {
	Derive() string
	Components() map[string]string
}

// AuthorityClient is the remote authority protocol surface the engine
// depends on.
type AuthorityClient interface {
	Activate(ctx context.Context, key, hardwareID string, info DeviceInfo) (*ActivationResult, error)
	Verify(ctx context.Context, key, hardwareID string) (VerificationOutcome, error)
	Deactivate(ctx context.Context, key, hardwareID string) error
}

// ValidationResult is the verdict returned to the host application.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Warning string `json:"warning,omitempty"`
}

// ManagerConfig carries the engine's tuning knobs.
type ManagerConfig struct {
	// DefaultGraceDays applies when the authority omits a grace budget
	DefaultGraceDays int
	// AppVersion is reported to the authority in device info
	AppVersion string
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Manager is the license engine facade. Foreground calls (Validate,
// Info) are synchronous reads of the in-memory record and never touch
// the network; Activate and Deactivate are user-triggered and
// serialized against background verification through a single mutex.
type Manager struct {
	store            *Store
	client           AuthorityClient
	hardware         HardwareProvider
	defaultGraceDays int
	appVersion       string
	logger           *slog.Logger
	metrics          *Metrics

	// opMu serializes activate, deactivate, and scheduler verification
	opMu sync.Mutex
	// recMu guards the in-memory record pointer for lock-free-ish reads
	recMu  sync.RWMutex
	record *Record
}

// NewManager wires the engine together. The in-memory record starts
// empty; call Load to restore persisted state.
func NewManager(store *Store, client AuthorityClient, hardware HardwareProvider, cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	graceDays := cfg.DefaultGraceDays
	if graceDays <= 0 {
		graceDays = 30
	}
	return &Manager{
		store:            store,
		client:           client,
		hardware:         hardware,
		defaultGraceDays: graceDays,
		appVersion:       cfg.AppVersion,
		logger:           logger.With(slog.String("component", "license_manager")),
		metrics:          cfg.Metrics,
	}
}

// Load restores the persisted record into memory. Call once at
// startup before the scheduler starts.
func (m *Manager) Load() error {
	record, err := m.store.Load()
	if err != nil {
		return err
	}
	m.setRecord(record)
	if record != nil {
		m.logger.Info("license record restored",
			slog.String("license_key", MaskKey(record.LicenseKey)),
			slog.String("status", string(record.Status)),
			slog.Int("grace_remaining_days", record.GraceRemainingDays),
		)
	}
	return nil
}

// Activate performs the one-time key-to-fingerprint binding against
// the authority and persists the resulting record. Requires network;
// a failed attempt leaves no local state behind.
func (m *Manager) Activate(ctx context.Context, key string) error {
	key = NormalizeKey(key)
	if err := ValidateKeyFormat(key); err != nil {
		m.metrics.recordActivation(ctx, "invalid_format")
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	now := time.Now()
	if existing := m.snapshot(); existing != nil && IsValid(*existing, now) {
		m.metrics.recordActivation(ctx, "already_activated")
		return ErrAlreadyActivated
	}

	fpStart := time.Now()
	hardwareID := m.hardware.Derive()
	m.metrics.recordFingerprint(ctx, time.Since(fpStart))

	hostName, _ := os.Hostname()
	info := DeviceInfo{
		Hostname:   hostName,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		AppVersion: m.appVersion,
	}

	result, err := m.client.Activate(ctx, key, hardwareID, info)
	if err != nil {
		m.metrics.recordActivation(ctx, classifyActivationError(err))
		m.logger.Warn("license activation failed",
			slog.String("license_key", MaskKey(key)),
			slog.String("error", err.Error()),
		)
		return err
	}

	graceDays := result.GracePeriodDays
	if graceDays <= 0 {
		graceDays = m.defaultGraceDays
	}
	licenseType := result.LicenseType
	if licenseType == "" {
		licenseType = TypePerpetual
	}

	now = time.Now()
	verifiedAt := now
	record := Record{
		LicenseKey:         key,
		HardwareID:         hardwareID,
		ActivationID:       result.ActivationID,
		ActivationDate:     now,
		Type:               licenseType,
		Status:             StatusActive,
		ExpiryDate:         result.ExpiryDate,
		GracePeriodDays:    graceDays,
		GraceRemainingDays: graceDays,
		LastVerifiedAt:     &verifiedAt,
		Metadata:           result.Metadata,
	}

	m.persist(record)
	m.metrics.recordActivation(ctx, "success")
	m.metrics.recordGraceDays(ctx, record.GraceRemainingDays)
	m.logger.Info("license activated",
		slog.String("license_key", MaskKey(key)),
		slog.String("license_type", string(licenseType)),
		slog.Int("grace_period_days", graceDays),
	)
	return nil
}

// Validate answers whether the application may run right now,
// together with an optional user-facing warning. It reads the
// in-memory record and applies offline-decay arithmetic for stale
// verifications; it never blocks on network or disk.
func (m *Manager) Validate(ctx context.Context) (ValidationResult, error) {
	record := m.snapshot()
	if record == nil {
		m.metrics.recordValidation(ctx, false)
		return ValidationResult{}, ErrNotActivated
	}

	now := time.Now()
	view := offlineView(*record, now)
	result := ValidationResult{
		Valid:   IsValid(view, now),
		Warning: WarningMessage(view, now),
	}
	m.metrics.recordValidation(ctx, result.Valid)
	return result, nil
}

// Deactivate releases the activation slot (best effort) and removes
// the local record. A dead network must not prevent local
// deactivation, so the authority call failing only logs.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	record := m.snapshot()
	if record == nil {
		return ErrNotActivated
	}

	if err := m.client.Deactivate(ctx, record.LicenseKey, record.HardwareID); err != nil {
		m.logger.Warn("authority deactivation failed, clearing local record anyway",
			slog.String("license_key", MaskKey(record.LicenseKey)),
			slog.String("error", err.Error()),
		)
	}

	m.setRecord(nil)
	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear license file",
			slog.String("error", err.Error()),
		)
		return err
	}

	m.logger.Info("license deactivated",
		slog.String("license_key", MaskKey(record.LicenseKey)),
	)
	return nil
}

// Info returns a redacted snapshot of the current record, or nil when
// no license is activated. The key is masked and the authority's
// activation identifier is withheld.
func (m *Manager) Info() *Record {
	record := m.snapshot()
	if record == nil {
		return nil
	}
	out := record.Clone()
	out.LicenseKey = MaskKey(out.LicenseKey)
	out.ActivationID = ""
	return &out
}

// HardwareID returns the derived machine fingerprint.
func (m *Manager) HardwareID() string {
	return m.hardware.Derive()
}

// HardwareInfo returns the human-readable factor breakdown for
// support diagnostics. Not used in validation logic.
func (m *Manager) HardwareInfo() map[string]string {
	return m.hardware.Components()
}

// verifyDisposition tells the scheduler what a verification attempt
// did.
type verifyDisposition int

const (
	verifySkipped verifyDisposition = iota
	verifySucceeded
	verifyFailedNetwork
	verifyTerminal
)

// verifyOnce performs a single remote check-in and applies the
// outcome to the record. Called only by the scheduler, under the same
// mutex as Activate/Deactivate. A cancelled attempt is abandoned
// without any write.
func (m *Manager) verifyOnce(ctx context.Context) (verifyDisposition, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	record := m.snapshot()
	if record == nil {
		return verifySkipped, nil
	}
	now := time.Now()
	if record.Status == StatusRevoked {
		return verifyTerminal, nil
	}
	if !NeedsVerification(*record, now) {
		return verifySkipped, nil
	}

	start := time.Now()
	outcome, err := m.client.Verify(ctx, record.LicenseKey, record.HardwareID)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown or cancellation: abandon with no partial write
			return verifyFailedNetwork, err
		}
		updated := record.withFailure(time.Now())
		m.persist(updated)
		m.metrics.recordVerification(ctx, "network_error", elapsed)
		m.metrics.recordGraceDays(ctx, updated.GraceRemainingDays)
		m.logger.Warn("license verification failed",
			slog.String("license_key", MaskKey(record.LicenseKey)),
			slog.Int("consecutive_failures", updated.VerificationFailures),
			slog.Int("grace_remaining_days", updated.GraceRemainingDays),
			slog.String("error", err.Error()),
		)
		return verifyFailedNetwork, err
	}

	switch outcome {
	case OutcomeConfirmed:
		updated := record.withVerified(time.Now())
		m.persist(updated)
		m.metrics.recordVerification(ctx, "confirmed", elapsed)
		m.metrics.recordGraceDays(ctx, updated.GraceRemainingDays)
		m.logger.Debug("license verification confirmed",
			slog.String("license_key", MaskKey(record.LicenseKey)),
		)
		return verifySucceeded, nil

	case OutcomeRevoked:
		m.persist(record.withRevoked())
		m.metrics.recordVerification(ctx, "revoked", elapsed)
		m.logger.Error("license revoked by authority",
			slog.String("license_key", MaskKey(record.LicenseKey)),
		)
		return verifyTerminal, ErrRevoked

	case OutcomeKeyInvalid:
		m.persist(record.withRevoked())
		m.metrics.recordVerification(ctx, "key_invalid", elapsed)
		m.logger.Error("license key reported invalid by authority",
			slog.String("license_key", MaskKey(record.LicenseKey)),
		)
		return verifyTerminal, ErrInvalidKey

	case OutcomeFingerprintMismatch:
		// Hard failure: the bound fingerprint no longer matches, so the
		// license requires re-activation on this hardware
		m.persist(record.withRevoked())
		m.metrics.recordVerification(ctx, "fingerprint_mismatch", elapsed)
		m.logger.Error("hardware fingerprint mismatch reported by authority",
			slog.String("license_key", MaskKey(record.LicenseKey)),
		)
		return verifyTerminal, ErrFingerprintMismatch

	default:
		return verifyFailedNetwork, fmt.Errorf("unhandled verification outcome %q", outcome)
	}
}

// persist updates the in-memory record and writes it through the
// store. A transient write failure keeps the in-memory record
// authoritative so a disk hiccup never locks the user out.
func (m *Manager) persist(record Record) {
	m.setRecord(&record)
	if err := m.store.Save(record); err != nil {
		m.logger.Error("failed to persist license record, keeping in-memory state",
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) snapshot() *Record {
	m.recMu.RLock()
	defer m.recMu.RUnlock()
	if m.record == nil {
		return nil
	}
	out := m.record.Clone()
	return &out
}

func (m *Manager) setRecord(record *Record) {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	m.record = record
}

func classifyActivationError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrActivationLimit):
		return "activation_limit"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case IsNetworkError(err):
		return "network_error"
	default:
		return "error"
	}
}
