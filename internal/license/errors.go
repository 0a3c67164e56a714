package license

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine. Handlers map these onto
// HTTP responses; nothing below this package ever sees a raw
// transport error.
var (
	// ErrInvalidKeyFormat means the key failed local format checks
	ErrInvalidKeyFormat = errors.New("invalid license key format")

	// ErrInvalidKey means the authority does not recognize the key
	ErrInvalidKey = errors.New("license key not recognized")

	// ErrActivationLimit means the key has no free activation slots
	ErrActivationLimit = errors.New("license activation limit reached")

	// ErrAlreadyActivated means this installation already holds a
	// valid license record
	ErrAlreadyActivated = errors.New("a license is already activated on this device")

	// ErrNotActivated means no license record exists locally
	ErrNotActivated = errors.New("no license is activated on this device")

	// ErrRevoked means the authority has revoked the license
	ErrRevoked = errors.New("license has been revoked")

	// ErrFingerprintMismatch means the authority rejected the bound
	// hardware fingerprint; the license must be re-activated
	ErrFingerprintMismatch = errors.New("hardware fingerprint does not match the activated device")
)

// NetworkError wraps a transport failure talking to the authority.
// Callers distinguish it from authority verdicts: network failures
// feed the offline grace mechanism, verdicts are final.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("license authority %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transport failure rather
// than an authority verdict.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
