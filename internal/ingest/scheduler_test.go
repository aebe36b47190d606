package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nidar-uav/ground-control/internal/detection"
	"github.com/nidar-uav/ground-control/internal/events"
	"github.com/nidar-uav/ground-control/internal/state"
	"github.com/nidar-uav/ground-control/internal/storage"
	"github.com/nidar-uav/ground-control/internal/telemetry"
	"github.com/nidar-uav/ground-control/internal/transport"
)

// fakeSource scripts a telemetry link for the loop to poll.
type fakeSource struct {
	lines  chan string
	broken chan struct{}

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		lines:   make(chan string, 64),
		broken:  make(chan struct{}),
		closing: make(chan struct{}),
	}
}

func (f *fakeSource) push(lines ...string) {
	for _, line := range lines {
		f.lines <- line
	}
}

// dropLink simulates the remote end going away.
func (f *fakeSource) dropLink() {
	close(f.broken)
}

func (f *fakeSource) ReadLine() (string, error) {
	select {
	case <-f.closing:
		return "", transport.ErrClosed
	case <-f.broken:
		return "", io.EOF
	case line := <-f.lines:
		return line, nil
	case <-time.After(10 * time.Millisecond):
		return "", transport.ErrTimeout
	}
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closing)
	}
	return nil
}

// memStore records written batches in memory. The embedded Store panics on
// anything the pipeline is not supposed to call.
type memStore struct {
	storage.Store

	mu      sync.Mutex
	fail    bool
	batches []*storage.Batch
}

func (m *memStore) WriteBatch(ctx context.Context, missionID string, batch *storage.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *memStore) rowCounts() (telemetryRows, detections, commands, eventRows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		telemetryRows += len(b.Telemetry)
		detections += len(b.Detections)
		commands += len(b.Commands)
		eventRows += len(b.Events)
	}
	return
}

func (m *memStore) commandNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, b := range m.batches {
		for _, c := range b.Commands {
			names = append(names, c.Command)
		}
	}
	return names
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testPacket(droneID int, count uint64) telemetry.Packet {
	return telemetry.Packet{
		DroneID:       droneID,
		TeamID:        "1000",
		MissionTime:   "00:04:12",
		PacketCount:   count,
		Mode:          telemetry.ModeAuto,
		State:         telemetry.StateScanning,
		Altitude:      120.5,
		Temperature:   24.3,
		Pressure:      1008.2,
		Voltage:       11.1,
		GyroRoll:      0.02,
		GyroPitch:     -0.01,
		GyroYaw:       0.15,
		AccelRoll:     0.1,
		AccelPitch:    0.05,
		AccelYaw:      9.81,
		MagRoll:       32.1,
		MagPitch:      -12.4,
		MagYaw:        54.2,
		GPSTime:       "09:34:12",
		GPSAltitude:   121.3,
		Latitude:      12.9718,
		Longitude:     77.5943,
		Satellites:    9,
		Battery:       87.5,
		LinkStatus:    telemetry.LinkGood,
		AutonomyMode:  telemetry.AutonomyAuto,
		PayloadStatus: telemetry.PayloadReady,
		DetectionType: telemetry.DetectionNone,
	}
}

func packetLine(droneID int, count uint64) string {
	return testPacket(droneID, count).Format()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func countEvents(log *events.Log, kind events.Kind) int {
	n := 0
	for _, ev := range log.Recent(1024) {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// pipeline wires a scheduler to fakes for a test.
type pipeline struct {
	source     *fakeSource
	store      *memStore
	states     *state.Store
	detections *detection.Log
	eventLog   *events.Log
	sched      *Scheduler
}

func newPipeline(t *testing.T, options ...func(*Scheduler)) *pipeline {
	t.Helper()

	p := &pipeline{
		source:     newFakeSource(),
		store:      &memStore{},
		states:     state.NewStore(1, 2),
		detections: detection.NewLog(),
		eventLog:   events.NewLog(128, discardLogger()),
	}
	sink := storage.NewSink(p.store, "mission", discardLogger())

	// Batches only flush on Stop unless a test opts into smaller batches.
	opts := append([]func(*Scheduler){
		WithBatching(1000, time.Hour),
		WithShutdownTimeout(2 * time.Second),
	}, options...)
	p.sched = NewScheduler(p.source, p.states, p.detections, p.eventLog, sink, opts...)

	t.Cleanup(p.sched.Stop)
	return p
}

func (p *pipeline) start(t *testing.T) {
	t.Helper()
	if err := p.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestScheduler_ProcessesAndPersists(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	p.source.push(packetLine(1, 1), packetLine(2, 5))
	waitFor(t, "packets to decode", func() bool { return p.sched.Stats().Decoded == 2 })

	snap, ok := p.states.Get(1)
	if !ok || snap.PacketCount != 1 {
		t.Errorf("Expected drone 1 at packet 1, got %v %d", ok, snap.PacketCount)
	}
	snap, ok = p.states.Get(2)
	if !ok || snap.PacketCount != 5 {
		t.Errorf("Expected drone 2 at packet 5, got %v %d", ok, snap.PacketCount)
	}

	p.sched.Stop()
	if got := p.sched.State(); got != StateStopped {
		t.Errorf("Expected STOPPED after Stop, got %s", got)
	}

	telemetryRows, detections, _, eventRows := p.store.rowCounts()
	if telemetryRows != 2 {
		t.Errorf("Expected 2 telemetry rows persisted, got %d", telemetryRows)
	}
	if detections != 0 {
		t.Errorf("Expected no detection rows, got %d", detections)
	}
	// The mission start and stop events ride along in the final batch.
	if eventRows < 2 {
		t.Errorf("Expected at least 2 event rows, got %d", eventRows)
	}

	stats := p.sched.Stats()
	if stats.Received != 2 || stats.PersistedBatches == 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestScheduler_DecodeAlarmRaisedOnceAndRearmed(t *testing.T) {
	p := newPipeline(t, WithDecodeErrorThreshold(3))
	p.start(t)

	p.source.push("garbage", "garbage", "garbage", "garbage")
	waitFor(t, "decode errors", func() bool { return p.sched.Stats().DecodeErrors == 4 })
	if got := countEvents(p.eventLog, events.KindDecodeAlarm); got != 1 {
		t.Errorf("Expected a single decode alarm, got %d", got)
	}

	// A good packet re-arms the alarm.
	p.source.push(packetLine(1, 1))
	waitFor(t, "a good packet", func() bool { return p.sched.Stats().Decoded == 1 })

	p.source.push("garbage", "garbage", "garbage")
	waitFor(t, "more decode errors", func() bool { return p.sched.Stats().DecodeErrors == 7 })
	if got := countEvents(p.eventLog, events.KindDecodeAlarm); got != 2 {
		t.Errorf("Expected a second decode alarm, got %d", got)
	}
}

func TestScheduler_RejectsStaleAndUnknown(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	p.source.push(packetLine(1, 10))
	waitFor(t, "the first packet", func() bool { return p.sched.Stats().Decoded == 1 })

	p.source.push(packetLine(1, 10), packetLine(1, 9), packetLine(9, 1))
	waitFor(t, "rejections", func() bool {
		stats := p.sched.Stats()
		return stats.Stale == 2 && stats.UnknownDrone == 1
	})

	snap, _ := p.states.Get(1)
	if snap.PacketCount != 10 {
		t.Errorf("Expected the store to retain packet 10, got %d", snap.PacketCount)
	}

	p.sched.Stop()
	telemetryRows, _, _, _ := p.store.rowCounts()
	if telemetryRows != 1 {
		t.Errorf("Expected only the accepted packet persisted, got %d rows", telemetryRows)
	}
}

func TestScheduler_DetectionPipeline(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	packet := testPacket(2, 3)
	packet.DetectionFlag = true
	packet.DetectionType = telemetry.DetectionCrop
	packet.DetectionConf = 0.87
	packet.DetectionLat = 12.9720
	packet.DetectionLon = 77.5950
	p.source.push(packet.Format())

	waitFor(t, "the detection", func() bool { return p.detections.Len() == 1 })

	ev := p.detections.All()[0]
	if ev.Type != telemetry.DetectionCrop || ev.Confidence != 0.87 || ev.DroneID != 2 {
		t.Errorf("Unexpected detection event: %+v", ev)
	}
	if got := countEvents(p.eventLog, events.KindDetection); got != 1 {
		t.Errorf("Expected 1 detection event in the feed, got %d", got)
	}

	p.sched.Stop()
	_, detections, _, _ := p.store.rowCounts()
	if detections != 1 {
		t.Errorf("Expected 1 detection row persisted, got %d", detections)
	}
}

func TestScheduler_CommandEchoTransitions(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	for i, cmd := range []string{"SCAN_AREA", "SCAN_AREA", "RTB"} {
		packet := testPacket(1, uint64(i+1))
		packet.CmdEcho = cmd
		p.source.push(packet.Format())
	}
	waitFor(t, "command transitions", func() bool { return p.sched.Stats().Commands == 2 })

	p.sched.Stop()
	names := p.store.commandNames()
	if len(names) != 2 || names[0] != "SCAN_AREA" || names[1] != "RTB" {
		t.Errorf("Expected commands [SCAN_AREA RTB], got %v", names)
	}
}

func TestScheduler_TransportLostStopsLoop(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	p.source.push(packetLine(1, 1))
	waitFor(t, "the first packet", func() bool { return p.sched.Stats().Decoded == 1 })

	p.source.dropLink()
	waitFor(t, "the loop to stop", func() bool { return p.sched.State() == StateStopped })

	if got := countEvents(p.eventLog, events.KindTransportLost); got != 1 {
		t.Errorf("Expected 1 transport lost event, got %d", got)
	}

	// Stop after a self-stop is a no-op.
	p.sched.Stop()

	telemetryRows, _, _, _ := p.store.rowCounts()
	if telemetryRows != 1 {
		t.Errorf("Expected the accepted packet persisted, got %d rows", telemetryRows)
	}
}

func TestScheduler_PauseAndResume(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	if err := p.sched.Resume(); err == nil {
		t.Error("Expected Resume to fail while RUNNING")
	}

	p.source.push(packetLine(1, 1))
	waitFor(t, "the first packet", func() bool { return p.sched.Stats().Decoded == 1 })

	if err := p.sched.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if got := p.sched.State(); got != StatePaused {
		t.Fatalf("Expected PAUSED, got %s", got)
	}

	// Records during a pause are counted and discarded.
	p.source.push(packetLine(1, 2), packetLine(1, 3))
	waitFor(t, "paused records", func() bool { return p.sched.Stats().Received == 3 })
	if got := p.sched.Stats().Decoded; got != 1 {
		t.Errorf("Expected no decoding while paused, got %d", got)
	}

	if err := p.sched.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	p.source.push(packetLine(1, 4))
	waitFor(t, "decoding to resume", func() bool { return p.sched.Stats().Decoded == 2 })

	p.sched.Stop()
	if err := p.sched.Pause(); err == nil {
		t.Error("Expected Pause to fail after Stop")
	}
}

func TestScheduler_StartIsOneShot(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	if err := p.sched.Start(context.Background()); err == nil {
		t.Error("Expected a second Start to fail")
	}

	p.sched.Stop()
	if err := p.sched.Start(context.Background()); err == nil {
		t.Error("Expected Start after Stop to fail")
	}
}

func TestScheduler_StopDrainsPendingRows(t *testing.T) {
	p := newPipeline(t)
	p.start(t)

	for i := 1; i <= 5; i++ {
		p.source.push(packetLine(1, uint64(i)))
	}
	waitFor(t, "all packets", func() bool { return p.sched.Stats().Decoded == 5 })

	// Nothing has flushed yet; Stop must push the pending batch through.
	p.sched.Stop()
	telemetryRows, _, _, _ := p.store.rowCounts()
	if telemetryRows != 5 {
		t.Errorf("Expected 5 telemetry rows after the drain, got %d", telemetryRows)
	}
}

func TestScheduler_PersistenceFailureDoesNotStall(t *testing.T) {
	source := newFakeSource()
	store := &memStore{fail: true}
	states := state.NewStore(1, 2)
	detections := detection.NewLog()
	eventLog := events.NewLog(128, discardLogger())

	sink := storage.NewSink(store, "mission", discardLogger(),
		storage.WithRetry(1, time.Millisecond),
		storage.WithOnWriteFailure(func(b *storage.Batch, err error) {
			eventLog.Record(events.Warning, events.KindPersistenceFailure, 0,
				"telemetry batch lost after retries")
		}))

	sched := NewScheduler(source, states, detections, eventLog, sink,
		WithBatching(1, time.Hour),
		WithShutdownTimeout(2*time.Second))
	t.Cleanup(sched.Stop)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source.push(packetLine(1, 1), packetLine(1, 2))

	// One health event per abandoned batch, and the loop keeps going.
	waitFor(t, "failure events", func() bool {
		return countEvents(eventLog, events.KindPersistenceFailure) == 2
	})
	if got := sched.Stats().FailedBatches; got != 2 {
		t.Errorf("Expected 2 failed batches, got %d", got)
	}
	if got := sched.State(); got != StateRunning {
		t.Errorf("Expected the scheduler to keep running, got %s", got)
	}

	store.setFail(false)
	source.push(packetLine(1, 3))
	waitFor(t, "a persisted batch", func() bool { return sched.Stats().PersistedBatches >= 1 })
}
