// Package events keeps the operator-facing mission event log: a fixed
// capacity ring of the most recent events, mirrored to the structured log
// and optionally fanned out to a persistence hook.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity holds a full mission of operator events at typical rates.
const DefaultCapacity = 1024

// Severity grades an event for the operator.
type Severity string

const (
	Info    Severity = "INFO"
	Warning Severity = "WARNING"
	Alert   Severity = "ALERT"
)

// Kind identifies the source condition of an event.
type Kind string

const (
	KindMission             Kind = "MISSION"
	KindDetection           Kind = "DETECTION"
	KindCommand             Kind = "COMMAND"
	KindGeofenceBreach      Kind = "GEOFENCE_BREACH"
	KindGeofenceClear       Kind = "GEOFENCE_CLEAR"
	KindDecodeAlarm         Kind = "DECODE_ALARM"
	KindPersistenceOverflow Kind = "PERSISTENCE_OVERFLOW"
	KindPersistenceFailure  Kind = "PERSISTENCE_FAILURE"
	KindTransportLost       Kind = "TRANSPORT_LOST"
)

// Event is one mission log entry. Seq increases monotonically from 1 for
// the life of the log, so consumers can detect gaps after the ring wraps.
type Event struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Kind     Kind      `json:"kind"`
	DroneID  int       `json:"droneID,omitempty"`
	Message  string    `json:"message"`
}

// Log is a fixed-capacity ring of mission events. New events overwrite the
// oldest once the ring is full. All methods are safe for concurrent use.
type Log struct {
	logger *slog.Logger
	notify func(Event)

	mu    sync.Mutex
	buf   []Event
	head  int // index of the oldest retained event
	size  int
	total uint64 // sequence counter, total events ever recorded
}

// NewLog creates an event log with the given ring capacity, mirroring
// every event to logger.
func NewLog(capacity int, logger *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		logger: logger,
		buf:    make([]Event, capacity),
	}
}

// OnEvent installs a hook invoked after each recorded event, outside the
// log's lock. Install before recording begins; the hook must not call back
// into the log.
func (l *Log) OnEvent(fn func(Event)) {
	l.notify = fn
}

// Record appends an event, mirrors it to the structured log and invokes the
// persistence hook. DroneID 0 means the event is not about a single drone.
func (l *Log) Record(sev Severity, kind Kind, droneID int, msg string) Event {
	l.mu.Lock()
	l.total++
	ev := Event{
		Seq:      l.total,
		Time:     time.Now(),
		Severity: sev,
		Kind:     kind,
		DroneID:  droneID,
		Message:  msg,
	}
	pos := (l.head + l.size) % len(l.buf)
	l.buf[pos] = ev
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.head = (l.head + 1) % len(l.buf)
	}
	l.mu.Unlock()

	l.mirror(ev)
	if l.notify != nil {
		l.notify(ev)
	}
	return ev
}

func (l *Log) mirror(ev Event) {
	if l.logger == nil {
		return
	}
	attrs := []any{"kind", string(ev.Kind), "seq", ev.Seq}
	if ev.DroneID != 0 {
		attrs = append(attrs, "drone", ev.DroneID)
	}
	switch ev.Severity {
	case Alert:
		l.logger.Error(ev.Message, attrs...)
	case Warning:
		l.logger.Warn(ev.Message, attrs...)
	default:
		l.logger.Info(ev.Message, attrs...)
	}
}

// Total returns the number of events ever recorded.
func (l *Log) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Recent returns up to n of the most recent events in chronological order.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.head+l.size-n+i)%len(l.buf)]
	}
	return out
}

// Since returns retained events with sequence numbers greater than seq, in
// chronological order. If the ring has wrapped past seq the caller missed
// events; the gap shows in the sequence numbers of the result.
func (l *Log) Since(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size == 0 || seq >= l.total {
		return nil
	}
	oldest := l.total - uint64(l.size) // seq of the event before the oldest retained
	skip := 0
	if seq > oldest {
		skip = int(seq - oldest)
	}
	out := make([]Event, l.size-skip)
	for i := range out {
		out[i] = l.buf[(l.head+skip+i)%len(l.buf)]
	}
	return out
}
