// Package metrics exposes link rewriting and market sync counters.
//
// Components take a Recorder and default to NoopRecorder, so metrics stay
// optional: cmd/linker swaps in a PrometheusRecorder bound to the registry it
// serves on /metrics.
package metrics

import "time"

// LinkResult labels the per-link outcome of a rewrite.
type LinkResult string

const (
	LinkRewritten LinkResult = "rewritten"
	LinkSkipped   LinkResult = "skipped"
	LinkFailed    LinkResult = "failed"
)

// SyncOutcome labels how a market sync finished.
type SyncOutcome string

const (
	SyncWritten   SyncOutcome = "written"   // new fingerprint persisted
	SyncUnchanged SyncOutcome = "unchanged" // fingerprint equal to the stored one
	SyncStale     SyncOutcome = "stale"     // fetch failed, served from a stale cache entry
	SyncFailed    SyncOutcome = "failed"
)

// Recorder receives observations from the localizer.
type Recorder interface {
	AddLinks(result LinkResult, n int)
	IncSync(outcome SyncOutcome)
	ObserveSyncDuration(d time.Duration)
	IncCache(hit bool)
}

// NoopRecorder discards every observation.
type NoopRecorder struct{}

func (NoopRecorder) AddLinks(LinkResult, int)          {}
func (NoopRecorder) IncSync(SyncOutcome)               {}
func (NoopRecorder) ObserveSyncDuration(time.Duration) {}
func (NoopRecorder) IncCache(bool)                     {}
