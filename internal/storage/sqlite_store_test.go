package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	store := NewSqliteStore(filepath.Join(t.TempDir(), "mission.db"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Closing store: %v", err)
		}
	})
	return store
}

func makeTelemetryRow(droneID int, count uint64, at time.Time) TelemetryRow {
	return TelemetryRow{
		DroneID:       droneID,
		ReceivedAt:    at,
		MissionTime:   "00:04:12",
		PacketCount:   count,
		Mode:          "AUTO",
		State:         "SCANNING",
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
		LinkStatus:    "GOOD",
		AutonomyMode:  "AUTO",
		PayloadStatus: "READY",
		CmdEcho:       "SCAN_AREA",
	}
}

func TestSqliteStore_MissionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	missionID, err := store.CreateMission(ctx, "1000", map[string]any{"drones": []int{1, 2}})
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}
	if missionID == "" {
		t.Fatal("Expected non-empty mission ID")
	}

	mission, err := store.Mission(ctx, missionID)
	if err != nil {
		t.Fatalf("Mission failed: %v", err)
	}
	if mission.TeamID != "1000" {
		t.Errorf("Expected team ID 1000, got %s", mission.TeamID)
	}
	if mission.EndTime != nil {
		t.Errorf("Expected open mission, got end time %v", mission.EndTime)
	}
	if mission.Config == nil || !strings.Contains(*mission.Config, "drones") {
		t.Errorf("Expected config JSON with drones, got %v", mission.Config)
	}

	if err := store.EndMission(ctx, missionID); err != nil {
		t.Fatalf("EndMission failed: %v", err)
	}
	mission, err = store.Mission(ctx, missionID)
	if err != nil {
		t.Fatalf("Mission after end failed: %v", err)
	}
	if mission.EndTime == nil {
		t.Error("Expected end time to be set")
	}

	// Ending again must not move the recorded end time.
	ended := *mission.EndTime
	if err := store.EndMission(ctx, missionID); err != nil {
		t.Fatalf("Second EndMission failed: %v", err)
	}
	mission, err = store.Mission(ctx, missionID)
	if err != nil {
		t.Fatalf("Mission after second end failed: %v", err)
	}
	if !mission.EndTime.Equal(ended) {
		t.Errorf("Expected end time %v unchanged, got %v", ended, mission.EndTime)
	}
}

func TestSqliteStore_LatestMission(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.LatestMission(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Expected sql.ErrNoRows on empty store, got %v", err)
	}

	if _, err := store.CreateMission(ctx, "1000", nil); err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	second, err := store.CreateMission(ctx, "1000", "raw config")
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	latest, err := store.LatestMission(ctx)
	if err != nil {
		t.Fatalf("LatestMission failed: %v", err)
	}
	if latest.ID != second {
		t.Errorf("Expected latest mission %s, got %s", second, latest.ID)
	}
	if latest.Config == nil || *latest.Config != "raw config" {
		t.Errorf("Expected raw config string, got %v", latest.Config)
	}

	missions, err := store.Missions(ctx)
	if err != nil {
		t.Fatalf("Missions failed: %v", err)
	}
	if len(missions) != 2 {
		t.Fatalf("Expected 2 missions, got %d", len(missions))
	}
	if missions[1].ID != second {
		t.Errorf("Expected missions ordered by start time, got %s last", missions[1].ID)
	}
}

func TestSqliteStore_WriteBatchAndReadBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	missionID, err := store.CreateMission(ctx, "1000", nil)
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	t0 := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	batch := &Batch{
		Telemetry: []TelemetryRow{
			makeTelemetryRow(1, 42, t0),
			makeTelemetryRow(2, 7, t0.Add(time.Second)),
		},
		Detections: []DetectionRow{{
			DroneID:     2,
			ReceivedAt:  t0.Add(time.Second),
			MissionTime: "00:04:13",
			Type:        "CROP",
			Confidence:  0.87,
			Latitude:    12.9718,
			Longitude:   77.5943,
		}},
		Commands: []CommandRow{{
			DroneID:    1,
			ReceivedAt: t0,
			Command:    "SCAN_AREA",
		}},
		Events: []EventRow{
			{Seq: 1, Time: t0, Severity: "INFO", Kind: "MISSION", Message: "mission started"},
			{Seq: 2, Time: t0.Add(time.Second), Severity: "ALERT", Kind: "GEOFENCE_BREACH", DroneID: 2, Message: "drone 2 left the zone"},
		},
	}
	if err := store.WriteBatch(ctx, missionID, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	// An empty batch is a no-op, not an error.
	if err := store.WriteBatch(ctx, missionID, &Batch{}); err != nil {
		t.Fatalf("Empty WriteBatch failed: %v", err)
	}

	rows, err := store.Telemetry(ctx, missionID)
	if err != nil {
		t.Fatalf("Telemetry failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 telemetry rows, got %d", len(rows))
	}
	got := rows[0]
	if got.DroneID != 1 || got.PacketCount != 42 {
		t.Errorf("Expected drone 1 packet 42 first, got drone %d packet %d", got.DroneID, got.PacketCount)
	}
	if got.Mode != "AUTO" || got.State != "SCANNING" || got.LinkStatus != "GOOD" {
		t.Errorf("Unexpected enums: mode %s state %s link %s", got.Mode, got.State, got.LinkStatus)
	}
	if got.Battery != 87.5 || got.Satellites != 9 || got.CmdEcho != "SCAN_AREA" {
		t.Errorf("Unexpected fields: battery %v sats %d echo %s", got.Battery, got.Satellites, got.CmdEcho)
	}
	if got.GeofenceBreach {
		t.Error("Expected geofence breach false")
	}
	if !got.ReceivedAt.Equal(t0) {
		t.Errorf("Expected received at %v, got %v", t0, got.ReceivedAt)
	}
	if got.MissionID != missionID {
		t.Errorf("Expected mission ID %s, got %s", missionID, got.MissionID)
	}

	detections, err := store.Detections(ctx, missionID)
	if err != nil {
		t.Fatalf("Detections failed: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(detections))
	}
	if detections[0].Type != "CROP" || detections[0].Confidence != 0.87 {
		t.Errorf("Unexpected detection: %+v", detections[0])
	}

	commands, err := store.Commands(ctx, missionID)
	if err != nil {
		t.Fatalf("Commands failed: %v", err)
	}
	if len(commands) != 1 || commands[0].Command != "SCAN_AREA" {
		t.Errorf("Unexpected commands: %+v", commands)
	}

	eventRows, err := store.Events(ctx, missionID)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(eventRows) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(eventRows))
	}
	if eventRows[0].DroneID != 0 {
		t.Errorf("Expected system event drone ID 0, got %d", eventRows[0].DroneID)
	}
	if eventRows[1].Kind != "GEOFENCE_BREACH" || eventRows[1].DroneID != 2 {
		t.Errorf("Unexpected event: %+v", eventRows[1])
	}
}

func TestSqliteStore_WriteBatchChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	missionID, err := store.CreateMission(ctx, "1000", nil)
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	t0 := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	batch := &Batch{}
	for i := 0; i < 65; i++ {
		batch.Telemetry = append(batch.Telemetry, makeTelemetryRow(1, uint64(i+1), t0.Add(time.Duration(i)*time.Second)))
	}
	if err := store.WriteBatch(ctx, missionID, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	rows, err := store.Telemetry(ctx, missionID)
	if err != nil {
		t.Fatalf("Telemetry failed: %v", err)
	}
	if len(rows) != 65 {
		t.Fatalf("Expected 65 telemetry rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.PacketCount != uint64(i+1) {
			t.Fatalf("Expected packet %d at index %d, got %d", i+1, i, row.PacketCount)
		}
	}
}

func TestSqliteStore_TelemetryFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	missionID, err := store.CreateMission(ctx, "1000", nil)
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	t0 := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	batch := &Batch{}
	for i := 0; i < 10; i++ {
		droneID := 1 + i%2
		batch.Telemetry = append(batch.Telemetry, makeTelemetryRow(droneID, uint64(i+1), t0.Add(time.Duration(i)*time.Second)))
	}
	if err := store.WriteBatch(ctx, missionID, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	tests := []struct {
		name string
		opts []QueryOption
		want int
	}{
		{"all", nil, 10},
		{"drone 1 only", []QueryOption{WithDrone(1)}, 5},
		{"time range", []QueryOption{WithTimeRange(t0.Add(2 * time.Second), t0.Add(5 * time.Second))}, 4},
		{"start time", []QueryOption{WithStartTime(t0.Add(8 * time.Second))}, 2},
		{"end time", []QueryOption{WithEndTime(t0.Add(1 * time.Second))}, 2},
		{"limit", []QueryOption{WithLimit(3)}, 3},
		{"drone 2 in range", []QueryOption{WithDrone(2), WithTimeRange(t0, t0.Add(3 * time.Second))}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.Telemetry(ctx, missionID, tt.opts...)
			if err != nil {
				t.Fatalf("Telemetry failed: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("Expected %d rows, got %d", tt.want, len(rows))
			}
		})
	}

	// Filters apply to the other readers through the same builder.
	rows, err := store.Telemetry(ctx, missionID, WithDrone(2), WithLimit(1))
	if err != nil {
		t.Fatalf("Telemetry failed: %v", err)
	}
	if len(rows) != 1 || rows[0].DroneID != 2 {
		t.Errorf("Expected a single drone 2 row, got %+v", rows)
	}
}

func TestSqliteStore_UnknownMission(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.CreateMission(ctx, "1000", nil); err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	if _, err := store.Mission(ctx, "no-such-mission"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}

	rows, err := store.Telemetry(ctx, "no-such-mission")
	if err != nil {
		t.Fatalf("Telemetry failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}
