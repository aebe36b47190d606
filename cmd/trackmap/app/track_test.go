package app

import (
	"math"
	"testing"
	"time"

	"github.com/nidar-uav/ground-control/internal/storage"
)

func TestTrackData_Update(t *testing.T) {
	data := NewTrackData("m1", "1000")

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	data.Update(1, 12.9716, 77.5946, 40, base)
	data.Update(1, 12.9720, 77.5950, 60, base.Add(time.Second))
	data.Update(2, 12.9710, 77.5940, 35, base.Add(2*time.Second))

	if data.Points != 3 {
		t.Errorf("Expected 3 points, got %d", data.Points)
	}
	if len(data.DroneIDs) != 2 {
		t.Fatalf("Expected 2 drones, got %d", len(data.DroneIDs))
	}
	if len(data.Tracks[1]) != 2 || len(data.Tracks[2]) != 1 {
		t.Errorf("Expected tracks of 2 and 1 points, got %d and %d", len(data.Tracks[1]), len(data.Tracks[2]))
	}
	if data.LatMin != 12.9710 || data.LatMax != 12.9720 {
		t.Errorf("Expected latitude bounds [12.9710, 12.9720], got [%v, %v]", data.LatMin, data.LatMax)
	}
	if data.ValueMin != 35 || data.ValueMax != 60 {
		t.Errorf("Expected value bounds [35, 60], got [%v, %v]", data.ValueMin, data.ValueMax)
	}
	if !data.TimestampStart.Equal(base) || !data.TimestampEnd.Equal(base.Add(2*time.Second)) {
		t.Errorf("Unexpected time bounds: %v to %v", data.TimestampStart, data.TimestampEnd)
	}
}

func TestTrackData_UpdateSkipsNoFix(t *testing.T) {
	data := NewTrackData("m1", "1000")
	data.Update(1, 0, 0, 40, time.Now())

	if data.Points != 0 {
		t.Errorf("Expected positions without a GPS fix to be skipped, got %d points", data.Points)
	}
}

func TestTrackData_Finalize(t *testing.T) {
	data := NewTrackData("m1", "1000")
	if data.Finalize() {
		t.Error("Expected Finalize to report nothing renderable for an empty mission")
	}

	data = NewTrackData("m1", "1000")
	data.Update(1, 12.9716, 77.5946, 40, time.Now())
	if !data.Finalize() {
		t.Fatal("Expected Finalize to succeed with one point")
	}
	if data.LatMin >= data.LatMax || data.LonMin >= data.LonMax {
		t.Errorf("Expected padded bounds, got lat [%v, %v] lon [%v, %v]",
			data.LatMin, data.LatMax, data.LonMin, data.LonMax)
	}
}

func TestTrackData_SetZonesGrowsBounds(t *testing.T) {
	data := NewTrackData("m1", "1000")
	data.Update(1, 12.9716, 77.5946, 40, time.Now())
	data.SetZones([]Zone{{Name: "alpha", CenterLat: 12.9716, CenterLon: 77.5946, RadiusKM: 2}})

	latSpan := 2 * 2.0 / kmPerLatDegree
	if got := data.LatMax - data.LatMin; math.Abs(got-latSpan) > 1e-9 {
		t.Errorf("Expected latitude span %v, got %v", latSpan, got)
	}
}

func TestTrackData_SpanMeters(t *testing.T) {
	data := NewTrackData("m1", "1000")
	data.LatMin, data.LatMax = 0, 1
	data.LonMin, data.LonMax = 0, 1

	ew, ns := data.SpanMeters()
	if ns != 111320 {
		t.Errorf("Expected 111320 m north-south, got %v", ns)
	}
	if want := 111320 * math.Cos(0.5*math.Pi/180); math.Abs(ew-want) > 1 {
		t.Errorf("Expected %v m east-west, got %v", want, ew)
	}
}

func TestMissionZones(t *testing.T) {
	config := `{"TeamID":"1000","Zones":[{"Name":"alpha","CenterLat":12.9716,"CenterLon":77.5946,"RadiusKM":1.5}]}`
	mission := &storage.Mission{ID: "m1", Config: &config}

	zones := missionZones(mission)
	if len(zones) != 1 {
		t.Fatalf("Expected 1 zone, got %d", len(zones))
	}
	if zones[0].Name != "alpha" || zones[0].RadiusKM != 1.5 {
		t.Errorf("Unexpected zone %+v", zones[0])
	}

	if got := missionZones(&storage.Mission{ID: "m2"}); got != nil {
		t.Errorf("Expected no zones without a recorded config, got %+v", got)
	}
}
