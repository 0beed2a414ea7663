// Package telemetry wires OpenTelemetry tracing and metrics for helmd.
//
// The governance pipeline records a span per intake, approval, rejection
// and config update; validation and the operator API record counters and
// histograms on meters handed out here. With export disabled the global
// no-op providers are returned, so instrumented code never checks whether
// telemetry is on.
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	p, err := governance.New(router, governance.WithTracer(tel.Tracer("helmd.governance")))
//
// Configuration lives under the telemetry section:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc        # or http/protobuf
//	  sampling:
//	    rate: 0.25
//	  metrics:
//	    export_interval: "15s"
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
