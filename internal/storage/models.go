package storage

import (
	"time"

	"github.com/nidar-uav/ground-control/internal/events"
	"github.com/nidar-uav/ground-control/internal/telemetry"
)

// Mission is one recording session of the ground station.
type Mission struct {
	ID        string
	TeamID    string
	StartTime time.Time
	EndTime   *time.Time
	Config    *string
}

// TelemetryRow is one persisted telemetry record. MissionID is stamped by
// the store at write time.
type TelemetryRow struct {
	ID             int64
	MissionID      string
	DroneID        int
	ReceivedAt     time.Time
	MissionTime    string
	PacketCount    uint64
	Mode           string
	State          string
	Altitude       float64
	Temperature    float64
	Pressure       float64
	Voltage        float64
	GyroRoll       float64
	GyroPitch      float64
	GyroYaw        float64
	AccelRoll      float64
	AccelPitch     float64
	AccelYaw       float64
	MagRoll        float64
	MagPitch       float64
	MagYaw         float64
	GPSTime        string
	GPSAltitude    float64
	Latitude       float64
	Longitude      float64
	Satellites     int
	Battery        float64
	LinkStatus     string
	AutonomyMode   string
	GeofenceBreach bool
	PayloadStatus  string
	CmdEcho        string
}

// DetectionRow is one persisted payload detection.
type DetectionRow struct {
	ID          int64
	MissionID   string
	DroneID     int
	ReceivedAt  time.Time
	MissionTime string
	Type        string
	Confidence  float64
	Latitude    float64
	Longitude   float64
}

// CommandRow is one acknowledged command observed in the echo field.
type CommandRow struct {
	ID         int64
	MissionID  string
	DroneID    int
	ReceivedAt time.Time
	Command    string
}

// EventRow is one persisted mission event. DroneID 0 means the event is not
// about a single drone and is stored as NULL.
type EventRow struct {
	ID        int64
	MissionID string
	Seq       uint64
	Time      time.Time
	Severity  string
	Kind      string
	DroneID   int
	Message   string
}

// NewTelemetryRow flattens an accepted snapshot into its persisted form.
func NewTelemetryRow(s telemetry.DroneState) TelemetryRow {
	return TelemetryRow{
		DroneID:        s.DroneID,
		ReceivedAt:     s.ReceivedAt.UTC(),
		MissionTime:    s.MissionTime,
		PacketCount:    s.PacketCount,
		Mode:           string(s.Mode),
		State:          string(s.State),
		Altitude:       s.Altitude,
		Temperature:    s.Temperature,
		Pressure:       s.Pressure,
		Voltage:        s.Voltage,
		GyroRoll:       s.GyroRoll,
		GyroPitch:      s.GyroPitch,
		GyroYaw:        s.GyroYaw,
		AccelRoll:      s.AccelRoll,
		AccelPitch:     s.AccelPitch,
		AccelYaw:       s.AccelYaw,
		MagRoll:        s.MagRoll,
		MagPitch:       s.MagPitch,
		MagYaw:         s.MagYaw,
		GPSTime:        s.GPSTime,
		GPSAltitude:    s.GPSAltitude,
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		Satellites:     s.Satellites,
		Battery:        s.Battery,
		LinkStatus:     string(s.LinkStatus),
		AutonomyMode:   string(s.AutonomyMode),
		GeofenceBreach: s.GeofenceBreach,
		PayloadStatus:  string(s.PayloadStatus),
		CmdEcho:        s.CmdEcho,
	}
}

// NewDetectionRow flattens a detection event into its persisted form.
func NewDetectionRow(ev telemetry.DetectionEvent) DetectionRow {
	return DetectionRow{
		DroneID:     ev.DroneID,
		ReceivedAt:  ev.ReceivedAt.UTC(),
		MissionTime: ev.MissionTime,
		Type:        string(ev.Type),
		Confidence:  ev.Confidence,
		Latitude:    ev.Latitude,
		Longitude:   ev.Longitude,
	}
}

// NewCommandRow records one acknowledged command.
func NewCommandRow(droneID int, at time.Time, command string) CommandRow {
	return CommandRow{
		DroneID:    droneID,
		ReceivedAt: at.UTC(),
		Command:    command,
	}
}

// NewEventRow flattens a mission event into its persisted form.
func NewEventRow(ev events.Event) EventRow {
	return EventRow{
		Seq:      ev.Seq,
		Time:     ev.Time.UTC(),
		Severity: string(ev.Severity),
		Kind:     string(ev.Kind),
		DroneID:  ev.DroneID,
		Message:  ev.Message,
	}
}
