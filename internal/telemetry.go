package internal

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and meter of a pipeline stage.
type Telemetry struct {
	stageKind string
	stageName string

	l *Logger

	tracer trace.Tracer
	meter  metric.Meter
}

func NewTelemetry(stageKind, stageName string) *Telemetry {
	return &Telemetry{
		stageKind: stageKind,
		stageName: stageName,

		l: NewLogger(stageKind, stageName),

		tracer: otel.GetTracerProvider().Tracer("ecattel"),
		meter:  otel.GetMeterProvider().Meter("ecattel"),
	}
}

func (t *Telemetry) Logger() *Logger {
	return t.l
}

func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.l.Info(msg, args...)
}

func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.l.Warn(msg, args...)
}

func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.l.Error(msg, err, args...)
}

func (t *Telemetry) setDefaultAttributes(span trace.Span) {
	span.SetAttributes(
		attribute.String("ecattel.stage_kind", t.stageKind),
		attribute.String("ecattel.stage_name", t.stageName),
	)
}

func (t *Telemetry) NewTrace(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, spanName, opts...)
	t.setDefaultAttributes(span)
	return ctx, span
}

func (t *Telemetry) getMeterName(name string) string {
	return fmt.Sprintf("%s_%s_%s", t.stageKind, t.stageName, name)
}

// NewCounter registers an observable counter that reports the value
// returned by the given callback on every metric collection.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	counterName := t.getMeterName(name)

	_, err := t.meter.Int64ObservableCounter(counterName,
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(callback())
			return nil
		}),
	)
	if err != nil {
		t.LogError("failed to create counter", err, "name", counterName)
		return
	}

	t.LogInfo("created counter", "name", counterName)
}
