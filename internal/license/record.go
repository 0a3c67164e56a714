package license

import (
	"fmt"
	"time"
)

// Type controls expiry semantics of a license
type Type string

const (
	TypeTrial        Type = "trial"
	TypePerpetual    Type = "perpetual"
	TypeSubscription Type = "subscription"
)

// Status is the lifecycle state of a license record
type Status string

const (
	StatusActive      Status = "active"
	StatusGracePeriod Status = "grace_period"
	StatusExpired     Status = "expired"
	StatusRevoked     Status = "revoked"
)

const (
	// RecheckInterval is how long a successful verification stays fresh
	RecheckInterval = 24 * time.Hour

	// neverVerifiedDays is the sentinel returned by DaysSinceVerification
	// for records that have never checked in
	neverVerifiedDays = 999

	// Warning thresholds
	graceLowDays      = 5
	expiryWarningDays = 7
	renewalNoticeDays = 30
)

// Record is the persisted local license state. It is treated as an
// immutable value: the validity predicates below are pure functions
// over a snapshot and an explicit clock, and state transitions return
// a new record.
type Record struct {
	LicenseKey           string            `json:"license_key"`
	HardwareID           string            `json:"hardware_id"`
	ActivationID         string            `json:"activation_id,omitempty"`
	ActivationDate       time.Time         `json:"activation_date"`
	Type                 Type              `json:"license_type"`
	Status               Status            `json:"status"`
	ExpiryDate           *time.Time        `json:"expiry_date,omitempty"`
	GracePeriodDays      int               `json:"grace_period_days"`
	GraceRemainingDays   int               `json:"offline_grace_remaining_days"`
	LastVerifiedAt       *time.Time        `json:"last_verified_at,omitempty"`
	VerificationFailures int               `json:"verification_failures"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// IsValid reports whether the license permits use of the application
// at the given instant. Revoked and expired records are never valid;
// trial and subscription records are invalid past their expiry date;
// a record in its grace period is valid only while offline budget
// remains; active perpetual records are always valid.
func IsValid(r Record, now time.Time) bool {
	switch r.Status {
	case StatusRevoked, StatusExpired:
		return false
	}
	if r.Type != TypePerpetual && r.ExpiryDate != nil && now.After(*r.ExpiryDate) {
		return false
	}
	if r.Status == StatusGracePeriod {
		return r.GraceRemainingDays > 0
	}
	return r.Status == StatusActive
}

// NeedsVerification reports whether the record is due for a remote
// check-in. Being due does not invalidate the license; it only
// signals the scheduler.
func NeedsVerification(r Record, now time.Time) bool {
	if r.LastVerifiedAt == nil {
		return true
	}
	return now.Sub(*r.LastVerifiedAt) > RecheckInterval
}

// DaysSinceVerification returns whole days elapsed since the last
// successful check-in, or 999 if the record has never been verified.
func DaysSinceVerification(r Record, now time.Time) int {
	if r.LastVerifiedAt == nil {
		return neverVerifiedDays
	}
	days := int(now.Sub(*r.LastVerifiedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// daysUntil returns the number of days from now until t, counting a
// partial day as a full one. Negative when t is in the past.
func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d.Hours() / 24)
	if d > 0 && d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// WarningMessage returns at most one user-displayable warning for the
// record, chosen by severity: revoked, expired, grace exhausted, grace
// low, grace general, expiry approaching, subscription renewal notice.
// An empty string means no warning.
func WarningMessage(r Record, now time.Time) string {
	if r.Status == StatusRevoked {
		return "This license has been revoked. Please contact support."
	}

	expired := r.Status == StatusExpired ||
		(r.Type != TypePerpetual && r.ExpiryDate != nil && now.After(*r.ExpiryDate))
	if expired {
		return "Your license has expired. Please renew to continue using Dhandha."
	}

	if r.Status == StatusGracePeriod {
		switch {
		case r.GraceRemainingDays <= 0:
			return "Offline grace period exhausted. Connect to the internet to re-verify your license."
		case r.GraceRemainingDays <= graceLowDays:
			return fmt.Sprintf("License verification required. Only %d days of offline use remaining.", r.GraceRemainingDays)
		default:
			return fmt.Sprintf("Running in offline mode. %d days of offline use remaining.", r.GraceRemainingDays)
		}
	}

	if r.Type != TypePerpetual && r.ExpiryDate != nil {
		days := daysUntil(now, *r.ExpiryDate)
		if days >= 0 && days <= expiryWarningDays {
			return fmt.Sprintf("Your %s license expires in %d days.", r.Type, days)
		}
		if r.Type == TypeSubscription && days >= 0 && days <= renewalNoticeDays {
			return fmt.Sprintf("Your subscription renewal is due in %d days.", days)
		}
	}

	return ""
}

// withVerified returns the record after a successful remote check-in:
// failures cleared, grace budget restored, timestamp updated. A
// revoked record is returned unchanged; revocation is terminal.
func (r Record) withVerified(now time.Time) Record {
	if r.Status == StatusRevoked {
		return r
	}
	r.Status = StatusActive
	r.VerificationFailures = 0
	r.GraceRemainingDays = r.GracePeriodDays
	t := now
	r.LastVerifiedAt = &t
	return r
}

// withFailure returns the record after a failed remote check-in. Once
// the record has been offline longer than the recheck interval it
// enters the grace period, and the remaining offline budget is
// recomputed from elapsed days so a machine that was powered off
// decays correctly on its first tick back.
func (r Record) withFailure(now time.Time) Record {
	if r.Status == StatusRevoked {
		return r
	}
	r.VerificationFailures++

	days := DaysSinceVerification(r, now)
	if r.Status == StatusActive && NeedsVerification(r, now) && days >= 1 {
		r.Status = StatusGracePeriod
	}
	if r.Status == StatusGracePeriod {
		remaining := r.GracePeriodDays - days
		if remaining < 0 {
			remaining = 0
		}
		r.GraceRemainingDays = remaining
	}
	return r
}

// withRevoked returns the record revoked. The transition is
// irreversible regardless of remaining grace budget or expiry date.
func (r Record) withRevoked() Record {
	r.Status = StatusRevoked
	return r
}

// withExpired marks a trial or subscription record expired.
func (r Record) withExpired() Record {
	if r.Status == StatusRevoked {
		return r
	}
	r.Status = StatusExpired
	return r
}

// offlineView returns the record as validate() should see it when the
// last verification is stale: an active record past the recheck
// interval is presented in its grace period with the offline budget
// decayed by elapsed days. The view is never persisted; the scheduler
// owns durable transitions.
func offlineView(r Record, now time.Time) Record {
	if r.Status != StatusActive && r.Status != StatusGracePeriod {
		return r
	}
	days := DaysSinceVerification(r, now)
	if r.Status == StatusActive {
		if !NeedsVerification(r, now) || days < 1 {
			return r
		}
		r.Status = StatusGracePeriod
	}
	remaining := r.GracePeriodDays - days
	if remaining < 0 {
		remaining = 0
	}
	r.GraceRemainingDays = remaining
	return r
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.ExpiryDate != nil {
		t := *r.ExpiryDate
		out.ExpiryDate = &t
	}
	if r.LastVerifiedAt != nil {
		t := *r.LastVerifiedAt
		out.LastVerifiedAt = &t
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
