package license

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for the license engine.
// A nil *Metrics is valid and records nothing, which keeps tests free
// of meter setup.
type Metrics struct {
	activations      metric.Int64Counter
	verifications    metric.Int64Counter
	validations      metric.Int64Counter
	verifyDuration   metric.Float64Histogram
	graceDaysLeft    metric.Int64Gauge
	fingerprintTime  metric.Float64Histogram
}

// NewMetrics creates the engine's instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.activations, err = meter.Int64Counter("license_activations_total",
		metric.WithDescription("License activation attempts by result"))
	if err != nil {
		return nil, err
	}

	m.verifications, err = meter.Int64Counter("license_verifications_total",
		metric.WithDescription("Background re-verification attempts by outcome"))
	if err != nil {
		return nil, err
	}

	m.validations, err = meter.Int64Counter("license_validations_total",
		metric.WithDescription("Local validity checks by verdict"))
	if err != nil {
		return nil, err
	}

	m.verifyDuration, err = meter.Float64Histogram("license_verification_duration_seconds",
		metric.WithDescription("Latency of authority verification calls"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.graceDaysLeft, err = meter.Int64Gauge("license_offline_grace_days_remaining",
		metric.WithDescription("Remaining offline grace budget in days"))
	if err != nil {
		return nil, err
	}

	m.fingerprintTime, err = meter.Float64Histogram("license_fingerprint_duration_seconds",
		metric.WithDescription("Latency of hardware fingerprint derivation"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordActivation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.activations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) recordVerification(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.verifications.Add(ctx, 1, attrs)
	m.verifyDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) recordValidation(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

func (m *Metrics) recordGraceDays(ctx context.Context, days int) {
	if m == nil {
		return
	}
	m.graceDaysLeft.Record(ctx, int64(days))
}

func (m *Metrics) recordFingerprint(ctx context.Context, duration time.Duration) {
	if m == nil {
		return
	}
	m.fingerprintTime.Record(ctx, duration.Seconds())
}
