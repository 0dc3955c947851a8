// Package metrics implements gauge emission (SPEC_FULL §4.17): seconds
// spent awake per wake cycle, the current schedule ETag, per-device
// busy/idle duration, and the count of door toggle-reversals.
//
// Grounded on the teacher's internal/datadog package (same
// github.com/DataDog/datadog-go/statsd client, same namespace/tags
// lifecycle), generalized from a package-level global client into a
// small struct so tests can construct one against a nil client without
// reaching into process-wide state. "Gauge never returns an error to the
// caller" is carried over verbatim — a statsd send failure is logged at
// warn and never affects control flow.
package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

// Emitter wraps a DogStatsD client. A nil client (construction failure,
// or metrics disabled) makes every Gauge call a silent no-op.
type Emitter struct {
	client    *statsd.Client
	namespace string
	tags      []string
}

// New constructs an Emitter against addr. A connection failure is logged
// at warn and yields an Emitter whose Gauge calls are no-ops, matching
// the teacher's "metrics are best-effort" posture.
func New(addr, namespace string, tags []string) *Emitter {
	client, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create DogStatsD client; metrics disabled")
		return &Emitter{namespace: namespace, tags: tags}
	}
	client.Namespace = namespace
	client.Tags = tags

	log.Info().Str("addr", addr).Str("namespace", namespace).Strs("tags", tags).
		Msg("metrics initialized")
	return &Emitter{client: client, namespace: namespace, tags: tags}
}

// Gauge emits a single gauge sample. Never returns an error; a send
// failure is logged at warn and dropped.
func (e *Emitter) Gauge(name string, value float64, tags ...string) {
	if e.client == nil {
		return
	}
	if err := e.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("failed to emit gauge metric")
	}
}

// AwakeSeconds records how long one wake cycle ran before re-entering
// sleep (§4.11 steps 1-8's wall-clock span).
func (e *Emitter) AwakeSeconds(seconds float64) {
	e.Gauge("coop.awake_seconds", seconds)
}

// ScheduleEtag records the scheduler facade's current ETag.
func (e *Emitter) ScheduleEtag(etag uint32) {
	e.Gauge("coop.schedule_etag", float64(etag))
}

// DeviceBusyDuration records how long a device's Tick-driven state
// machine remained busy, in seconds, tagged by device name.
func (e *Emitter) DeviceBusyDuration(device string, seconds float64) {
	e.Gauge("coop.device_busy_seconds", seconds, "device:"+device)
}

// DoorReversalCount records the running total of manual door
// toggle-reversals observed since boot.
func (e *Emitter) DoorReversalCount(count float64) {
	e.Gauge("coop.door_reversal_count", count)
}
