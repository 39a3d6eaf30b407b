// Package events publishes statement activity to an MQTT broker.
//
// The publisher attaches to a worker as a set of statement hooks and
// emits one JSON event per observed statement on
// sqlworker/events/<kind>. Events are fire-and-forget at the configured
// QoS; a broker outage never blocks or fails statement execution, since
// hooks run after the statement's outcome is already decided and
// publish failures are only logged.
//
// Connection status is announced on sqlworker/system/status, with a
// Last Will message so subscribers can detect a crashed process.
package events
