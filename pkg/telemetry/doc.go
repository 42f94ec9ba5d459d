// Package telemetry exports pipeline activity: Prometheus metrics through
// Collector, and OpenTelemetry traces through InitTracing.
//
// Collector implements pipeline.Observer:
//
//	reg := prometheus.NewRegistry()
//	metrics := telemetry.NewCollector(telemetry.WithRegistry(reg))
//	owner := pipeline.NewOwner(pipeline.WithObserver(metrics))
//	metrics.WatchOwner(owner)
//
// InitTracing installs a global tracer provider exporting spans over
// OTLP/HTTP. The pipelines start their spans from the global provider, so no
// further wiring is needed:
//
//	shutdown, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
//	    Enabled:  true,
//	    Endpoint: "localhost:4318",
//	    Insecure: true,
//	})
//	defer shutdown(context.Background())
package telemetry
