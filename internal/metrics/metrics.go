package metrics

import (
	"context"
	"sync"

	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsRefused   *telemetry.Counter

	// Queue counters
	AlertsRegistered *telemetry.Counter
	AlertsWithdrawn  *telemetry.Counter
	Promotions       *telemetry.Counter
	HoldsExpired     *telemetry.Counter
	HoldsClaimed     *telemetry.Counter

	// Collaborator failures
	NotificationFailures *telemetry.Counter
	SweepFailures        *telemetry.Counter
	ErrorsTotal          *telemetry.Counter

	// Histograms
	SweepDuration   *telemetry.Histogram
	ClaimLatency    *telemetry.Histogram
	RequestDuration *telemetry.Histogram

	// Gauges
	OpenAlerts *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all reservation metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&BookingsCreated, telemetry.MetricOpts{Name: "reservation_bookings_total", Description: "Total number of bookings created", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "reservation_cancellations_total", Description: "Total number of bookings cancelled", Unit: "1"}},
		{&BookingsRefused, telemetry.MetricOpts{Name: "reservation_refusals_total", Description: "Booking and queue refusals by code", Unit: "1"}},
		{&AlertsRegistered, telemetry.MetricOpts{Name: "reservation_alerts_registered_total", Description: "Total number of alerts registered", Unit: "1"}},
		{&AlertsWithdrawn, telemetry.MetricOpts{Name: "reservation_alerts_withdrawn_total", Description: "Total number of alerts withdrawn", Unit: "1"}},
		{&Promotions, telemetry.MetricOpts{Name: "reservation_promotions_total", Description: "Total number of queue heads given a hold", Unit: "1"}},
		{&HoldsExpired, telemetry.MetricOpts{Name: "reservation_holds_expired_total", Description: "Total number of holds that lapsed unclaimed", Unit: "1"}},
		{&HoldsClaimed, telemetry.MetricOpts{Name: "reservation_holds_claimed_total", Description: "Total number of holds converted to bookings", Unit: "1"}},
		{&NotificationFailures, telemetry.MetricOpts{Name: "reservation_notification_failures_total", Description: "Claim notifications that could not be dispatched", Unit: "1"}},
		{&SweepFailures, telemetry.MetricOpts{Name: "reservation_sweep_failures_total", Description: "Slots the expiry sweeper failed to process", Unit: "1"}},
		{&ErrorsTotal, telemetry.MetricOpts{Name: "reservation_errors_total", Description: "Total number of errors by type", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	SweepDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reservation_sweep_duration_seconds",
		Description: "Duration of one expiry sweep",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30})
	if err != nil {
		return err
	}

	ClaimLatency, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reservation_claim_latency_seconds",
		Description: "Time from promotion to claim",
		Unit:        "s",
	}, []float64{10, 30, 60, 120, 300, 600, 900}) // 10s to 15min
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reservation_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	if err != nil {
		return err
	}

	OpenAlerts, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "reservation_open_alerts",
		Description: "Current number of open alerts across all slots",
		Unit:        "1",
	})
	return err
}

// RecordBooking records a created booking
func RecordBooking(ctx context.Context, lastMinute bool) {
	if BookingsCreated != nil {
		BookingsCreated.Inc(ctx, attribute.Bool("last_minute", lastMinute))
	}
}

// RecordRefusal records a refusal by code and operation
func RecordRefusal(ctx context.Context, operation, code string) {
	if BookingsRefused != nil {
		BookingsRefused.Inc(ctx,
			attribute.String("operation", operation),
			attribute.String("code", code),
		)
	}
}

// RecordCancellation records a cancelled booking
func RecordCancellation(ctx context.Context) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx)
	}
}

// RecordAlertRegistered records a queue join
func RecordAlertRegistered(ctx context.Context) {
	if AlertsRegistered != nil {
		AlertsRegistered.Inc(ctx)
	}
	if OpenAlerts != nil {
		OpenAlerts.Inc(ctx)
	}
}

// RecordAlertClosed records an alert leaving the open set (withdrawn, expired, claimed)
func RecordAlertClosed(ctx context.Context, reason string) {
	switch reason {
	case "withdrawn":
		if AlertsWithdrawn != nil {
			AlertsWithdrawn.Inc(ctx)
		}
	case "expired":
		if HoldsExpired != nil {
			HoldsExpired.Inc(ctx)
		}
	case "claimed":
		if HoldsClaimed != nil {
			HoldsClaimed.Inc(ctx)
		}
	}
	if OpenAlerts != nil {
		OpenAlerts.Dec(ctx)
	}
}

// RecordPromotion records a queue head receiving a hold
func RecordPromotion(ctx context.Context, trigger string) {
	if Promotions != nil {
		Promotions.Inc(ctx, attribute.String("trigger", trigger))
	}
}

// RecordClaimLatency records how long a promoted diner took to book
func RecordClaimLatency(ctx context.Context, seconds float64) {
	if ClaimLatency != nil {
		ClaimLatency.Record(ctx, seconds)
	}
}

// RecordNotificationFailure records a claim notification that was not delivered
func RecordNotificationFailure(ctx context.Context) {
	if NotificationFailures != nil {
		NotificationFailures.Inc(ctx)
	}
}

// RecordSweep records a finished sweep
func RecordSweep(ctx context.Context, durationSeconds float64, failed int) {
	if SweepDuration != nil {
		SweepDuration.Record(ctx, durationSeconds)
	}
	if failed > 0 && SweepFailures != nil {
		SweepFailures.Add(ctx, int64(failed))
	}
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_type", errorType),
			attribute.String("operation", operation),
		)
	}
}

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	if RequestDuration != nil {
		RequestDuration.Record(ctx, durationSeconds,
			attribute.String("operation", operation),
		)
	}
}
