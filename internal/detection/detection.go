// Package detection keeps the in-session log of payload detections.
package detection

import (
	"sort"
	"sync"
	"time"

	"github.com/nidar-uav/ground-control/internal/telemetry"
)

// Log is an append-only record of detection events. Events are never
// mutated or removed once appended.
type Log struct {
	mu     sync.RWMutex
	events []telemetry.DetectionEvent
}

// NewLog creates an empty detection log.
func NewLog() *Log {
	return &Log{}
}

// Append records one detection event.
func (l *Log) Append(ev telemetry.DetectionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// All returns a copy of every recorded event in receive order.
func (l *Log) All() []telemetry.DetectionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]telemetry.DetectionEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Query returns events received within [from, to], ordered by receive time
// ascending. A zero from or to leaves that bound open; droneID 0 matches
// all drones.
func (l *Log) Query(from, to time.Time, droneID int) []telemetry.DetectionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []telemetry.DetectionEvent
	for _, ev := range l.events {
		if droneID != 0 && ev.DroneID != droneID {
			continue
		}
		if !from.IsZero() && ev.ReceivedAt.Before(from) {
			continue
		}
		if !to.IsZero() && ev.ReceivedAt.After(to) {
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out
}
