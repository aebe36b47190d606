// Package ingest runs the telemetry pipeline: it pulls raw records off the
// transport, decodes them, applies them to the live stores and batches the
// accepted rows toward the persistence sink. One goroutine owns the loop
// and is the sole writer to the state store and detection log.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nidar-uav/ground-control/internal/detection"
	"github.com/nidar-uav/ground-control/internal/events"
	"github.com/nidar-uav/ground-control/internal/geofence"
	"github.com/nidar-uav/ground-control/internal/state"
	"github.com/nidar-uav/ground-control/internal/storage"
	"github.com/nidar-uav/ground-control/internal/telemetry"
	"github.com/nidar-uav/ground-control/internal/transport"
)

const (
	// DecodeErrorThreshold is the default number of consecutive decode
	// failures that raises a link-quality alarm.
	DecodeErrorThreshold = 5

	defaultBatchSize     = 32
	defaultFlushInterval = time.Second
	defaultShutdownWait  = 5 * time.Second
)

// State is the scheduler's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// WithLogger sets the logger for the scheduler.
func WithLogger(logger *slog.Logger) func(*Scheduler) {
	return func(s *Scheduler) {
		s.logger = logger.With(slog.String("component", "ingest"))
	}
}

// WithGeofence installs a geofence monitor observed on every accepted
// packet.
func WithGeofence(m *geofence.Monitor) func(*Scheduler) {
	return func(s *Scheduler) {
		s.monitor = m
	}
}

// WithDecodeErrorThreshold sets the number of consecutive decode failures
// that raises a single link-quality alarm.
func WithDecodeErrorThreshold(threshold int) func(*Scheduler) {
	return func(s *Scheduler) {
		if threshold > 0 {
			s.decodeErrorThreshold = threshold
		}
	}
}

// WithBatching sets the persistence batch size and flush interval.
func WithBatching(size int, flushInterval time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		if size > 0 {
			s.batchSize = size
		}
		if flushInterval > 0 {
			s.flushInterval = flushInterval
		}
	}
}

// WithShutdownTimeout bounds the persistence drain during Stop.
func WithShutdownTimeout(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// rawRecord is one line off the transport plus its arrival time.
type rawRecord struct {
	line string
	at   time.Time
}

// Scheduler drives the ingestion loop. Its lifecycle is STOPPED → RUNNING
// → STOPPED, with RUNNING ⇄ PAUSED in between; once stopped it cannot be
// restarted. Pausing keeps the link drained but discards records, so the
// radio buffer never backs up and bursts on resume.
type Scheduler struct {
	source     transport.Source
	states     *state.Store
	detections *detection.Log
	events     *events.Log
	sink       *storage.Sink
	monitor    *geofence.Monitor
	logger     *slog.Logger

	decodeErrorThreshold int
	batchSize            int
	flushInterval        time.Duration
	shutdownTimeout      time.Duration

	state       atomic.Int32
	everStarted atomic.Bool
	stopOnce    sync.Once
	cancel      context.CancelFunc
	done        chan struct{}

	counters counters

	// Loop-local decode alarm state and command-echo tracking.
	consecutiveDecodeErrors int
	alarmRaised             bool
	lastCommand             map[int]string

	mu      sync.Mutex
	pending *storage.Batch
}

// NewScheduler assembles the pipeline around its collaborators. Mission
// events recorded anywhere in the process are queued into the pending
// batch for persistence.
func NewScheduler(source transport.Source, states *state.Store, detections *detection.Log, eventLog *events.Log, sink *storage.Sink, options ...func(*Scheduler)) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := &Scheduler{
		source:               source,
		states:               states,
		detections:           detections,
		events:               eventLog,
		sink:                 sink,
		logger:               logger,
		decodeErrorThreshold: DecodeErrorThreshold,
		batchSize:            defaultBatchSize,
		flushInterval:        defaultFlushInterval,
		shutdownTimeout:      defaultShutdownWait,
		done:                 make(chan struct{}),
		lastCommand:          make(map[int]string),
		pending:              &storage.Batch{},
	}

	for _, option := range options {
		option(s)
	}

	eventLog.OnEvent(func(ev events.Event) {
		s.QueueEvent(storage.NewEventRow(ev))
	})

	return s
}

// Start launches the ingestion loop. The loop also stops when ctx is
// canceled. Starting twice, or after Stop, is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.everStarted.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}

	s.state.Store(int32(StateRunning))
	ctx, s.cancel = context.WithCancel(ctx)

	go s.run(ctx)
	return nil
}

// Stop halts the loop and drains batches accepted before the call, bounded
// by the shutdown timeout. It is safe to call from any goroutine and more
// than once; it returns after the drain completes.
func (s *Scheduler) Stop() {
	if !s.everStarted.Load() {
		return
	}
	s.stopOnce.Do(s.cancel)
	<-s.done
}

// Pause suspends decoding. Records arriving while paused are counted as
// received and discarded.
func (s *Scheduler) Pause() error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		return fmt.Errorf("cannot pause while %s", s.State())
	}
	s.events.Record(events.Info, events.KindMission, 0, "ingestion paused")
	return nil
}

// Resume restarts decoding after a Pause.
func (s *Scheduler) Resume() error {
	if !s.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return fmt.Errorf("cannot resume while %s", s.State())
	}
	s.events.Record(events.Info, events.KindMission, 0, "ingestion resumed")
	return nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Done returns a channel closed when the loop has fully stopped, whether by
// Stop, context cancellation or a lost transport.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the pipeline counters, including the sink's.
func (s *Scheduler) Stats() Stats {
	st := s.counters.snapshot()
	st.PersistedBatches = s.sink.Persisted()
	st.DroppedBatches = s.sink.Dropped()
	st.FailedBatches = s.sink.Failed()
	return st
}

// QueueEvent adds a mission event row to the pending batch.
func (s *Scheduler) QueueEvent(row storage.EventRow) {
	s.mu.Lock()
	s.pending.Events = append(s.pending.Events, row)
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.logger.Info("ingestion started")
	s.events.Record(events.Info, events.KindMission, 0, "ingestion started")

	records := make(chan rawRecord)
	lost := make(chan error, 1)
	go s.readRecords(ctx, records, lost)

	flush := time.NewTicker(s.flushInterval)
	defer flush.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case err := <-lost:
			s.logger.Error("telemetry link lost", "error", err)
			s.events.Record(events.Alert, events.KindTransportLost, 0,
				fmt.Sprintf("telemetry link lost: %v", err))
			break loop

		case rec := <-records:
			if s.State() == StatePaused {
				s.counters.received.Add(1)
				continue
			}
			s.process(rec)

		case <-flush.C:
			s.flush()
		}
	}

	// Unblock the reader, push out what is pending and drain the sink. The
	// stopped event is recorded before the final flush so it is persisted.
	s.stopOnce.Do(s.cancel)
	_ = s.source.Close()
	s.events.Record(events.Info, events.KindMission, 0, "ingestion stopped")
	s.flush()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.sink.Close(drainCtx); err != nil {
		s.logger.Error("persistence drain incomplete", "error", err)
	}

	s.state.Store(int32(StateStopped))
	s.logger.Info("ingestion stopped")
}

// readRecords polls the transport and hands lines to the loop. Timeouts
// re-poll; a close from our own shutdown ends the reader quietly; anything
// else is a lost link.
func (s *Scheduler) readRecords(ctx context.Context, records chan<- rawRecord, lost chan<- error) {
	for {
		line, err := s.source.ReadLine()
		switch {
		case err == nil:

		case errors.Is(err, transport.ErrTimeout):
			if ctx.Err() != nil {
				return
			}
			continue

		case errors.Is(err, transport.ErrClosed):
			return

		default:
			if errors.Is(err, io.EOF) {
				err = errors.New("connection closed by remote end")
			}
			lost <- err
			return
		}

		select {
		case records <- rawRecord{line: line, at: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) process(rec rawRecord) {
	s.counters.received.Add(1)

	packet, err := telemetry.ParsePacket(rec.line)
	if err != nil {
		s.recordDecodeError(rec.line, err)
		return
	}

	snapshot := telemetry.DroneState{Packet: packet, ReceivedAt: rec.at}
	if err := s.states.Apply(snapshot); err != nil {
		switch {
		case errors.Is(err, state.ErrStalePacket):
			s.counters.stale.Add(1)
			s.logger.Debug("dropped stale packet",
				"drone", packet.DroneID, "count", packet.PacketCount)
		case errors.Is(err, state.ErrUnknownDrone):
			s.counters.unknownDrone.Add(1)
			s.logger.Warn("dropped packet from unknown drone", "drone", packet.DroneID)
		default:
			s.logger.Warn("dropped packet", "error", err)
		}
		return
	}

	s.counters.decoded.Add(1)
	s.consecutiveDecodeErrors = 0
	s.alarmRaised = false

	if s.monitor != nil {
		switch s.monitor.Observe(packet.DroneID, packet.Latitude, packet.Longitude, packet.GeofenceBreach) {
		case geofence.Breach:
			s.events.Record(events.Alert, events.KindGeofenceBreach, packet.DroneID,
				fmt.Sprintf("drone %d outside the operating zone at %.4f, %.4f", packet.DroneID, packet.Latitude, packet.Longitude))
		case geofence.Clear:
			s.events.Record(events.Info, events.KindGeofenceClear, packet.DroneID,
				fmt.Sprintf("drone %d back inside the operating zone", packet.DroneID))
		}
	}

	var detectionRow *storage.DetectionRow
	if ev, ok := packet.Detection(rec.at); ok {
		s.detections.Append(ev)
		s.counters.detections.Add(1)
		s.events.Record(events.Info, events.KindDetection, packet.DroneID,
			fmt.Sprintf("%s detected with confidence %.2f at %.4f, %.4f", ev.Type, ev.Confidence, ev.Latitude, ev.Longitude))

		row := storage.NewDetectionRow(ev)
		detectionRow = &row
	}

	var commandRow *storage.CommandRow
	if cmd := packet.CmdEcho; cmd != "" && cmd != s.lastCommand[packet.DroneID] {
		s.lastCommand[packet.DroneID] = cmd
		s.counters.commands.Add(1)
		s.events.Record(events.Info, events.KindCommand, packet.DroneID,
			fmt.Sprintf("drone %d acknowledged %s", packet.DroneID, cmd))

		row := storage.NewCommandRow(packet.DroneID, rec.at, cmd)
		commandRow = &row
	}

	s.mu.Lock()
	s.pending.Telemetry = append(s.pending.Telemetry, storage.NewTelemetryRow(snapshot))
	if detectionRow != nil {
		s.pending.Detections = append(s.pending.Detections, *detectionRow)
	}
	if commandRow != nil {
		s.pending.Commands = append(s.pending.Commands, *commandRow)
	}
	full := s.pending.Len() >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

func (s *Scheduler) recordDecodeError(line string, err error) {
	s.counters.decodeErrors.Add(1)
	s.consecutiveDecodeErrors++
	s.logger.Warn("dropping undecodable record", "error", err, "line", line)

	if s.consecutiveDecodeErrors >= s.decodeErrorThreshold && !s.alarmRaised {
		s.alarmRaised = true
		s.events.Record(events.Alert, events.KindDecodeAlarm, 0,
			fmt.Sprintf("%d consecutive decode failures, check link quality", s.consecutiveDecodeErrors))
	}
}

// flush hands the pending batch to the sink and starts a fresh one.
func (s *Scheduler) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = &storage.Batch{}
	s.mu.Unlock()

	if batch.Empty() {
		return
	}
	if err := s.sink.Enqueue(batch); err != nil {
		s.logger.Warn("failed to enqueue batch", "rows", batch.Len(), "error", err)
	}
}
