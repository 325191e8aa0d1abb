// Package observability provides extensions that turn attempt lifecycle
// events into OpenTelemetry counters ([MetricsExtension]) and structured
// log lines ([LogExtension]).
//
// For per-attempt spans and durations, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
