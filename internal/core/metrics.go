package core

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type hubMetrics struct {
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	online    metric.Int64UpDownCounter
	rejected  metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) *hubMetrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("commhub/core")
	}
	fallback := noop.NewMeterProvider().Meter("commhub/core")

	m := &hubMetrics{}
	var err error
	if m.delivered, err = meter.Int64Counter("commhub.events.delivered",
		metric.WithDescription("Events handed to a connection buffer")); err != nil {
		m.delivered, _ = fallback.Int64Counter("commhub.events.delivered")
	}
	if m.dropped, err = meter.Int64Counter("commhub.events.dropped",
		metric.WithDescription("Events dropped because the target was offline or slow")); err != nil {
		m.dropped, _ = fallback.Int64Counter("commhub.events.dropped")
	}
	if m.online, err = meter.Int64UpDownCounter("commhub.presence.online",
		metric.WithDescription("Identities currently registered")); err != nil {
		m.online, _ = fallback.Int64UpDownCounter("commhub.presence.online")
	}
	if m.rejected, err = meter.Int64Counter("commhub.commands.rejected",
		metric.WithDescription("Commands answered with an error event")); err != nil {
		m.rejected, _ = fallback.Int64Counter("commhub.commands.rejected")
	}
	return m
}

func (m *hubMetrics) record(ctx context.Context, kind EventKind, delivered, dropped int) {
	attrs := metric.WithAttributes(attribute.String("event", kind.String()))
	if delivered > 0 {
		m.delivered.Add(ctx, int64(delivered), attrs)
	}
	if dropped > 0 {
		m.dropped.Add(ctx, int64(dropped), attrs)
	}
}

func (m *hubMetrics) reject(ctx context.Context, code string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
