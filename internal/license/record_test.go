package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func activeRecord(licenseType Type) Record {
	verified := testNow.Add(-time.Hour)
	return Record{
		LicenseKey:         "DH-AAAA-BBBB-CCCC-DDDD",
		HardwareID:         "deadbeef",
		ActivationDate:     testNow.AddDate(0, -1, 0),
		Type:               licenseType,
		Status:             StatusActive,
		GracePeriodDays:    30,
		GraceRemainingDays: 30,
		LastVerifiedAt:     &verified,
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name   string
		record func() Record
		want   bool
	}{
		{
			name:   "active perpetual with no expiry is valid",
			record: func() Record { return activeRecord(TypePerpetual) },
			want:   true,
		},
		{
			name: "revoked is invalid regardless of other fields",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.Status = StatusRevoked
				r.ExpiryDate = timePtr(testNow.AddDate(1, 0, 0))
				r.GraceRemainingDays = 30
				return r
			},
			want: false,
		},
		{
			name: "expired status is invalid",
			record: func() Record {
				r := activeRecord(TypeSubscription)
				r.Status = StatusExpired
				return r
			},
			want: false,
		},
		{
			name: "trial past expiry is invalid even while status active",
			record: func() Record {
				r := activeRecord(TypeTrial)
				r.ExpiryDate = timePtr(testNow.AddDate(0, 0, -1))
				return r
			},
			want: false,
		},
		{
			name: "subscription before expiry is valid",
			record: func() Record {
				r := activeRecord(TypeSubscription)
				r.ExpiryDate = timePtr(testNow.AddDate(0, 0, 10))
				return r
			},
			want: true,
		},
		{
			name: "perpetual ignores a stale expiry date",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.ExpiryDate = timePtr(testNow.AddDate(0, 0, -1))
				return r
			},
			want: true,
		},
		{
			name: "grace period with budget remaining is valid",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.Status = StatusGracePeriod
				r.GraceRemainingDays = 10
				return r
			},
			want: true,
		},
		{
			name: "grace period exhausted is invalid",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.Status = StatusGracePeriod
				r.GraceRemainingDays = 0
				return r
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.record(), testNow))
		})
	}
}

func TestNeedsVerification(t *testing.T) {
	r := activeRecord(TypePerpetual)

	r.LastVerifiedAt = nil
	assert.True(t, NeedsVerification(r, testNow), "never verified")

	r.LastVerifiedAt = timePtr(testNow.Add(-time.Hour))
	assert.False(t, NeedsVerification(r, testNow), "verified recently")

	r.LastVerifiedAt = timePtr(testNow.Add(-25 * time.Hour))
	assert.True(t, NeedsVerification(r, testNow), "past the recheck interval")

	r.LastVerifiedAt = timePtr(testNow.Add(-RecheckInterval))
	assert.False(t, NeedsVerification(r, testNow), "exactly at the interval boundary")
}

func TestDaysSinceVerification(t *testing.T) {
	r := activeRecord(TypePerpetual)

	r.LastVerifiedAt = nil
	assert.Equal(t, 999, DaysSinceVerification(r, testNow), "sentinel when never verified")

	r.LastVerifiedAt = timePtr(testNow)
	assert.Equal(t, 0, DaysSinceVerification(r, testNow), "verified now")

	r.LastVerifiedAt = timePtr(testNow.Add(-36 * time.Hour))
	assert.Equal(t, 1, DaysSinceVerification(r, testNow), "whole days only")

	r.LastVerifiedAt = timePtr(testNow.Add(-10 * 24 * time.Hour))
	assert.Equal(t, 10, DaysSinceVerification(r, testNow))

	r.LastVerifiedAt = timePtr(testNow.Add(time.Hour))
	assert.Equal(t, 0, DaysSinceVerification(r, testNow), "future timestamp clamps to zero")
}

func TestWarningMessage(t *testing.T) {
	tests := []struct {
		name     string
		record   func() Record
		contains string
		empty    bool
	}{
		{
			name: "revoked outranks everything",
			record: func() Record {
				r := activeRecord(TypeTrial)
				r.Status = StatusRevoked
				r.ExpiryDate = timePtr(testNow.AddDate(0, 0, -1))
				return r
			},
			contains: "revoked",
		},
		{
			name: "expired outranks grace warnings",
			record: func() Record {
				r := activeRecord(TypeSubscription)
				r.Status = StatusGracePeriod
				r.GraceRemainingDays = 2
				r.ExpiryDate = timePtr(testNow.AddDate(0, 0, -1))
				return r
			},
			contains: "expired",
		},
		{
			name: "grace exhausted",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.Status = StatusGracePeriod
				r.GraceRemainingDays = 0
				return r
			},
			contains: "exhausted",
		},
		{
			name: "grace low mentions remaining days",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.Status = StatusGracePeriod
				r.GraceRemainingDays = 3
				return r
			},
			contains: "3 days",
		},
		{
			name: "grace general mentions remaining days",
			record: func() Record {
				r := activeRecord(TypePerpetual)
				r.Status = StatusGracePeriod
				r.GraceRemainingDays = 10
				return r
			},
			contains: "10 days",
		},
		{
			name: "expiry approaching for subscription",
			record: func() Record {
				r := activeRecord(TypeSubscription)
				r.ExpiryDate = timePtr(testNow.Add(5 * 24 * time.Hour))
				return r
			},
			contains: "5 days",
		},
		{
			name: "renewal notice for subscription within 30 days",
			record: func() Record {
				r := activeRecord(TypeSubscription)
				r.ExpiryDate = timePtr(testNow.Add(20 * 24 * time.Hour))
				return r
			},
			contains: "renewal",
		},
		{
			name: "trial outside the warning window gets no renewal notice",
			record: func() Record {
				r := activeRecord(TypeTrial)
				r.ExpiryDate = timePtr(testNow.Add(20 * 24 * time.Hour))
				return r
			},
			empty: true,
		},
		{
			name:   "healthy perpetual has no warning",
			record: func() Record { return activeRecord(TypePerpetual) },
			empty:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := WarningMessage(tt.record(), testNow)
			if tt.empty {
				assert.Empty(t, msg)
			} else {
				require.NotEmpty(t, msg)
				assert.Contains(t, msg, tt.contains)
			}
		})
	}
}

func TestWithVerified(t *testing.T) {
	r := activeRecord(TypePerpetual)
	r.Status = StatusGracePeriod
	r.GraceRemainingDays = 4
	r.VerificationFailures = 7

	updated := r.withVerified(testNow)

	assert.Equal(t, StatusActive, updated.Status)
	assert.Equal(t, 0, updated.VerificationFailures)
	assert.Equal(t, r.GracePeriodDays, updated.GraceRemainingDays, "grace budget restored")
	require.NotNil(t, updated.LastVerifiedAt)
	assert.True(t, updated.LastVerifiedAt.Equal(testNow))

	// Original snapshot untouched
	assert.Equal(t, StatusGracePeriod, r.Status)
	assert.Equal(t, 7, r.VerificationFailures)
}

func TestWithVerified_RevokedIsTerminal(t *testing.T) {
	r := activeRecord(TypePerpetual).withRevoked()
	updated := r.withVerified(testNow)
	assert.Equal(t, StatusRevoked, updated.Status, "revoked never reverts")
}

func TestWithFailure(t *testing.T) {
	t.Run("recent verification stays active", func(t *testing.T) {
		r := activeRecord(TypePerpetual)
		updated := r.withFailure(testNow)

		assert.Equal(t, StatusActive, updated.Status)
		assert.Equal(t, 1, updated.VerificationFailures)
	})

	t.Run("stale verification enters grace period with decayed budget", func(t *testing.T) {
		r := activeRecord(TypePerpetual)
		r.LastVerifiedAt = timePtr(testNow.Add(-3 * 24 * time.Hour))

		updated := r.withFailure(testNow)

		assert.Equal(t, StatusGracePeriod, updated.Status)
		assert.Equal(t, 27, updated.GraceRemainingDays, "30 day budget minus 3 elapsed")
	})

	t.Run("grace decays to zero but not below", func(t *testing.T) {
		r := activeRecord(TypePerpetual)
		r.Status = StatusGracePeriod
		r.LastVerifiedAt = timePtr(testNow.Add(-45 * 24 * time.Hour))

		updated := r.withFailure(testNow)

		assert.Equal(t, 0, updated.GraceRemainingDays)
		assert.False(t, IsValid(updated, testNow))
	})

	t.Run("offline budget after n days equals grace minus n", func(t *testing.T) {
		for _, n := range []int{1, 5, 29, 30, 31, 100} {
			r := activeRecord(TypePerpetual)
			r.LastVerifiedAt = timePtr(testNow.Add(-time.Duration(n)*24*time.Hour - time.Hour))

			updated := r.withFailure(testNow)

			want := 30 - n
			if want < 0 {
				want = 0
			}
			assert.Equal(t, want, updated.GraceRemainingDays, "n=%d", n)
		}
	})

	t.Run("revoked records do not decay", func(t *testing.T) {
		r := activeRecord(TypePerpetual).withRevoked()
		updated := r.withFailure(testNow)
		assert.Equal(t, StatusRevoked, updated.Status)
		assert.Equal(t, 0, updated.VerificationFailures)
	})
}

func TestOfflineView(t *testing.T) {
	t.Run("fresh record is unchanged", func(t *testing.T) {
		r := activeRecord(TypePerpetual)
		assert.Equal(t, r, offlineView(r, testNow))
	})

	t.Run("stale active record is seen in grace period", func(t *testing.T) {
		r := activeRecord(TypePerpetual)
		r.LastVerifiedAt = timePtr(testNow.Add(-10 * 24 * time.Hour))

		view := offlineView(r, testNow)

		assert.Equal(t, StatusGracePeriod, view.Status)
		assert.Equal(t, 20, view.GraceRemainingDays)
		assert.True(t, IsValid(view, testNow))

		// The view is derived, not persisted
		assert.Equal(t, StatusActive, r.Status)
	})

	t.Run("fully decayed record is invalid", func(t *testing.T) {
		r := activeRecord(TypePerpetual)
		r.LastVerifiedAt = timePtr(testNow.Add(-31 * 24 * time.Hour))

		view := offlineView(r, testNow)

		assert.Equal(t, 0, view.GraceRemainingDays)
		assert.False(t, IsValid(view, testNow))
	})

	t.Run("revoked record passes through", func(t *testing.T) {
		r := activeRecord(TypePerpetual).withRevoked()
		assert.Equal(t, r, offlineView(r, testNow))
	})
}

func TestClone(t *testing.T) {
	r := activeRecord(TypeSubscription)
	r.ExpiryDate = timePtr(testNow.AddDate(0, 1, 0))
	r.Metadata = map[string]string{"plan": "pro"}

	clone := r.Clone()
	clone.Metadata["plan"] = "tampered"
	*clone.ExpiryDate = testNow

	assert.Equal(t, "pro", r.Metadata["plan"])
	assert.True(t, r.ExpiryDate.After(testNow))
}
