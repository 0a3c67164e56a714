package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerificationOutcome is the authority's verdict on an existing
// activation.
type VerificationOutcome string

const (
	OutcomeConfirmed           VerificationOutcome = "confirmed"
	OutcomeRevoked             VerificationOutcome = "revoked"
	OutcomeKeyInvalid          VerificationOutcome = "key-invalid"
	OutcomeFingerprintMismatch VerificationOutcome = "fingerprint-mismatch"
)

// DeviceInfo accompanies an activation so the authority can show the
// user which machines hold their activation slots.
type DeviceInfo struct {
	Hostname   string `json:"hostname"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	AppVersion string `json:"app_version"`
}

// ActivationResult is the authority payload for a successful
// activation.
type ActivationResult struct {
	ActivationID    string            `json:"activation_id"`
	Status          string            `json:"status"`
	LicenseType     Type              `json:"license_type"`
	ExpiryDate      *time.Time        `json:"expiry_date,omitempty"`
	GracePeriodDays int               `json:"grace_period_days"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type activateRequest struct {
	LicenseKey string     `json:"license_key"`
	HardwareID string     `json:"hardware_id"`
	DeviceInfo DeviceInfo `json:"device_info"`
}

type verifyRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
}

type verifyResponse struct {
	Status string `json:"status"`
}

type deactivateRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
}

// authorityError is the error envelope the authority returns on
// non-2xx responses.
type authorityError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the remote license authority. It performs no
// retries; retry and backoff policy belongs to the scheduler. Every
// failure is either a typed authority verdict or a *NetworkError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an authority client. The timeout bounds each
// individual request; callers can cancel earlier through context.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "activation_client")),
	}
}

// Activate binds the license key to the hardware fingerprint at the
// authority and returns the authority's license parameters.
func (c *Client) Activate(ctx context.Context, key, hardwareID string, info DeviceInfo) (*ActivationResult, error) {
	req := activateRequest{LicenseKey: key, HardwareID: hardwareID, DeviceInfo: info}

	var result ActivationResult
	status, authErr, err := c.post(ctx, "/activate", req, &result)
	if err != nil {
		return nil, &NetworkError{Op: "activate", Err: err}
	}

	switch {
	case status >= 200 && status < 300:
		c.logger.Info("license activated at authority",
			slog.String("license_key", MaskKey(key)),
			slog.String("activation_id", result.ActivationID),
			slog.String("license_type", string(result.LicenseType)),
		)
		return &result, nil
	case status == http.StatusNotFound, authErr.Code == "key-invalid":
		return nil, ErrInvalidKey
	case status == http.StatusConflict, authErr.Code == "activation-limit":
		return nil, ErrActivationLimit
	case status == http.StatusForbidden, authErr.Code == "revoked":
		return nil, ErrRevoked
	default:
		return nil, &NetworkError{Op: "activate",
			Err: fmt.Errorf("unexpected authority response %d: %s", status, authErr.Message)}
	}
}

// Verify re-checks an existing activation. The outcome is a verdict,
// not a transport status: only genuine connectivity problems produce
// an error.
func (c *Client) Verify(ctx context.Context, key, hardwareID string) (VerificationOutcome, error) {
	req := verifyRequest{LicenseKey: key, HardwareID: hardwareID}

	var resp verifyResponse
	status, authErr, err := c.post(ctx, "/verify", req, &resp)
	if err != nil {
		return "", &NetworkError{Op: "verify", Err: err}
	}
	if status < 200 || status >= 300 {
		// The authority answers verdicts with 200; anything else is a
		// server-side problem and is absorbed as a network failure.
		return "", &NetworkError{Op: "verify",
			Err: fmt.Errorf("unexpected authority response %d: %s", status, authErr.Message)}
	}

	switch VerificationOutcome(resp.Status) {
	case OutcomeConfirmed, OutcomeRevoked, OutcomeKeyInvalid, OutcomeFingerprintMismatch:
		c.logger.Debug("verification verdict received",
			slog.String("license_key", MaskKey(key)),
			slog.String("outcome", resp.Status),
		)
		return VerificationOutcome(resp.Status), nil
	default:
		return "", &NetworkError{Op: "verify",
			Err: fmt.Errorf("unknown verification status %q", resp.Status)}
	}
}

// Deactivate releases the activation slot at the authority. Best
// effort: the caller clears the local record regardless.
func (c *Client) Deactivate(ctx context.Context, key, hardwareID string) error {
	req := deactivateRequest{LicenseKey: key, HardwareID: hardwareID}

	status, authErr, err := c.post(ctx, "/deactivate", req, &struct{}{})
	if err != nil {
		return &NetworkError{Op: "deactivate", Err: err}
	}
	if status < 200 || status >= 300 {
		return &NetworkError{Op: "deactivate",
			Err: fmt.Errorf("unexpected authority response %d: %s", status, authErr.Message)}
	}

	c.logger.Info("activation slot released at authority",
		slog.String("license_key", MaskKey(key)),
	)
	return nil
}

// post sends a JSON request and decodes either the success payload or
// the authority error envelope. The returned error covers transport
// failures only.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) (int, authorityError, error) {
	var authErr authorityError

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, authErr, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, authErr, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, authErr, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, authErr, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(data) > 0 && out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return 0, authErr, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp.StatusCode, authErr, nil
	}

	// Error envelopes are optional; status codes alone are enough
	_ = json.Unmarshal(data, &authErr)
	return resp.StatusCode, authErr, nil
}
