package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperconf/hyperconf/pkg/errs"
)

// Telemetry bundles the logger, tracer, metrics and event publisher of one
// process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryKey struct{}

// NewTelemetry builds every component described by cfg.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel := &Telemetry{Config: cfg}
	var err error
	if tel.Logger, err = NewLogger(cfg.Logging); err != nil {
		return nil, err
	}
	if tel.Tracer, err = NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment); err != nil {
		return nil, err
	}
	if tel.Metrics, err = NewMetrics(cfg.Metrics); err != nil {
		return nil, err
	}
	if tel.Events, err = NewEventPublisher(cfg.Events); err != nil {
		return nil, err
	}
	return tel, nil
}

// WithContext stores t and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(context.WithValue(ctx, telemetryKey{}, t))
}

// FromTelemetryContext returns the telemetry stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryKey{}).(*Telemetry)
	return t
}

// Shutdown drains the event publisher and flushes pending spans. Both are
// attempted even when the first fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Events.Shutdown(ctx), t.Tracer.Shutdown(ctx))
}

// Operation is one traced and timed unit of CLI work, such as validating a
// file.
type Operation struct {
	Name   string
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation opens a span named operation when ctx carries telemetry.
// Without telemetry the operation only times itself.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *Operation {
	op := &Operation{Name: operation, Ctx: ctx, Timer: NewTimer()}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		op.Logger = FromContext(ctx)
		return op
	}

	op.Ctx, op.Span = tel.Tracer.StartSpan(ctx, operation, attrs...)
	op.Logger = tel.Logger.WithField("operation", operation)
	if sc := op.Span.SpanContext(); sc.IsValid() {
		op.Logger = op.Logger.WithField("trace_id", sc.TraceID().String())
	}
	op.Ctx = op.Logger.WithContext(op.Ctx)
	return op
}

// End closes the span, tagging it with the error kind of a failed load, and
// logs the elapsed time at debug level.
func (op *Operation) End(err error) {
	if op.Span != nil {
		if err != nil {
			if kind := errs.KindOf(err); kind != "" {
				op.Span.SetAttributes(AttrErrorKind.String(string(kind)))
			}
			RecordError(op.Span, err)
		} else {
			RecordSuccess(op.Span)
		}
		op.Span.End()
	}
	op.Logger.WithField("duration", op.Timer.Duration().String()).Debug(op.Name + " finished")
}
