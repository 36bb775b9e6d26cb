package realtime

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/meetly/meetly/backend-go/internal/realtime"

type hubMetrics struct {
	connections metric.Int64UpDownCounter
	online      metric.Int64UpDownCounter
	joins       metric.Int64Counter
	dispatched  metric.Int64Counter
	dropped     metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) *hubMetrics {
	return &hubMetrics{
		connections: upDownCounter(meter, "realtime.connections", "Live realtime connections"),
		online:      upDownCounter(meter, "realtime.users.online", "Users holding at least one connection"),
		joins:       counter(meter, "realtime.room.joins", "Room join requests accepted"),
		dispatched:  counter(meter, "realtime.events.dispatched", "Frames enqueued to connections"),
		dropped:     counter(meter, "realtime.events.dropped", "Frames dropped on full or closed connections"),
	}
}

func defaultMeter() metric.Meter {
	return otel.Meter(meterName)
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		slog.Warn("create counter", "name", name, "error", err)
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func upDownCounter(meter metric.Meter, name, desc string) metric.Int64UpDownCounter {
	c, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		slog.Warn("create up/down counter", "name", name, "error", err)
		c, _ = noop.Meter{}.Int64UpDownCounter(name)
	}
	return c
}

func (m *hubMetrics) delivered(msgType string, sent, dropped int) {
	attrs := metric.WithAttributes(attribute.String("type", msgType))
	if sent > 0 {
		m.dispatched.Add(context.Background(), int64(sent), attrs)
	}
	if dropped > 0 {
		m.dropped.Add(context.Background(), int64(dropped), attrs)
	}
}
