// Package telemetry provides observability for hyperconf.
//
// It bundles structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics and a small event publisher.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	loader := config.NewLoader(reg,
//	    config.WithLogger(tel.Logger.NewComponentLogger("config-loader").Zerolog()),
//	    config.WithMetrics(tel.Metrics),
//	    config.WithEvents(tel.Events),
//	)
//
// # Metrics
//
// All metrics live in a private registry exposed through Metrics.Handler:
//
//   - loads_total{mode,status}
//   - load_duration_seconds{status}
//   - errors_total{kind}
//   - template_files_loaded_total{source}
//   - definitions_registered_total, definitions
//   - expression_evaluations_total{role,status}
//   - policy_violations_total{policy,severity}
//   - reloads_total{status}
//
// A nil *Metrics or *EventPublisher is valid and records nothing, so library
// packages can hold one unconditionally.
//
// # Tracing
//
// NewTracer installs its provider globally when enabled. Library packages
// start spans through otel.Tracer and need no reference to a Tracer.
package telemetry
