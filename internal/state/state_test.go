package state

import (
	"errors"
	"testing"
	"time"

	"github.com/nidar-uav/ground-control/internal/telemetry"
)

func snapshot(droneID int, count uint64, battery float64) telemetry.DroneState {
	return telemetry.DroneState{
		Packet: telemetry.Packet{
			DroneID:     droneID,
			TeamID:      "1000",
			PacketCount: count,
			Battery:     battery,
		},
		ReceivedAt: time.Now(),
	}
}

func TestStore_ApplyAndGet(t *testing.T) {
	s := NewStore(1, 2)

	if _, ok := s.Get(1); ok {
		t.Error("Expected no snapshot before first apply")
	}

	if err := s.Apply(snapshot(1, 1, 99)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := s.Apply(snapshot(1, 2, 98)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, ok := s.Get(1)
	if !ok {
		t.Fatal("Expected snapshot for drone 1")
	}
	if got.PacketCount != 2 || got.Battery != 98 {
		t.Errorf("Expected count 2 battery 98, got count %d battery %v", got.PacketCount, got.Battery)
	}

	if _, ok := s.Get(2); ok {
		t.Error("Expected no snapshot for drone 2 yet")
	}
}

func TestStore_RejectsUnknownDrone(t *testing.T) {
	s := NewStore(1, 2)

	err := s.Apply(snapshot(7, 1, 100))
	if !errors.Is(err, ErrUnknownDrone) {
		t.Fatalf("Expected ErrUnknownDrone, got %v", err)
	}
	if _, ok := s.Get(7); ok {
		t.Error("Rejected drone must not appear in the store")
	}
}

func TestStore_RejectsStalePacket(t *testing.T) {
	s := NewStore(1)

	if err := s.Apply(snapshot(1, 5, 90)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// Duplicate and regressed sequence numbers are both stale.
	for _, count := range []uint64{5, 4, 0} {
		err := s.Apply(snapshot(1, count, 10))
		if !errors.Is(err, ErrStalePacket) {
			t.Errorf("count %d: expected ErrStalePacket, got %v", count, err)
		}
	}

	got, _ := s.Get(1)
	if got.PacketCount != 5 || got.Battery != 90 {
		t.Errorf("Stale apply must not change the snapshot, got %+v", got.Packet)
	}
}

func TestStore_FirstPacketAlwaysAccepted(t *testing.T) {
	s := NewStore(1)

	// A session can begin mid-flight at an arbitrary sequence number.
	if err := s.Apply(snapshot(1, 900, 50)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	s.Reset()

	// After a reset the drone restarts its counter; the first packet of the
	// new session is accepted regardless of the old high-water mark.
	if err := s.Apply(snapshot(1, 1, 100)); err != nil {
		t.Fatalf("Apply after reset failed: %v", err)
	}
	got, ok := s.Get(1)
	if !ok || got.PacketCount != 1 {
		t.Errorf("Expected count 1 after reset, got %+v ok=%v", got.Packet, ok)
	}
}

func TestStore_AllSortedByID(t *testing.T) {
	s := NewStore(2, 1)

	if err := s.Apply(snapshot(2, 1, 80)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := s.Apply(snapshot(1, 1, 70)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(all))
	}
	if all[0].DroneID != 1 || all[1].DroneID != 2 {
		t.Errorf("Expected order [1 2], got [%d %d]", all[0].DroneID, all[1].DroneID)
	}

	// Mutating the returned slice must not touch the store.
	all[0].Battery = 0
	got, _ := s.Get(1)
	if got.Battery != 70 {
		t.Error("All must return copies, not live references")
	}
}
