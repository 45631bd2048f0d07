// Package instrument wires OpenTelemetry tracing, metrics and logging.
//
// Structured logging is always installed as the slog default: JSON on stdout,
// masked fields and the request correlation id attached to every record.
// When instrumentation is enabled, spans and logs are exported over OTLP and
// metrics either over OTLP or through a Prometheus scrape handler.
package instrument
