package ingest

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of the pipeline counters, exported for
// status tiles and the HTTP API.
type Stats struct {
	Received     uint64 `json:"received"`
	Decoded      uint64 `json:"decoded"`
	DecodeErrors uint64 `json:"decodeErrors"`
	Stale        uint64 `json:"stale"`
	UnknownDrone uint64 `json:"unknownDrone"`
	Detections   uint64 `json:"detections"`
	Commands     uint64 `json:"commands"`

	PersistedBatches uint64 `json:"persistedBatches"`
	DroppedBatches   uint64 `json:"droppedBatches"`
	FailedBatches    uint64 `json:"failedBatches"`
}

// counters is the scheduler's atomic counter block. The loop goroutine
// writes, anyone may snapshot.
type counters struct {
	received     atomic.Uint64
	decoded      atomic.Uint64
	decodeErrors atomic.Uint64
	stale        atomic.Uint64
	unknownDrone atomic.Uint64
	detections   atomic.Uint64
	commands     atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:     c.received.Load(),
		Decoded:      c.decoded.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Stale:        c.stale.Load(),
		UnknownDrone: c.unknownDrone.Load(),
		Detections:   c.detections.Load(),
		Commands:     c.commands.Load(),
	}
}
