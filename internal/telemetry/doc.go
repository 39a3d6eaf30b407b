// Package telemetry records statement throughput in InfluxDB.
//
// The recorder attaches to a worker as statement hooks that count
// executed statements per kind. A background flusher periodically
// writes the accumulated counts and the current queue depth as
// measurement points. Writes are non-blocking and batched by the
// client; an InfluxDB outage never affects statement execution.
package telemetry
