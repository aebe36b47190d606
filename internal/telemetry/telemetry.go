package telemetry

import (
	"fmt"
	"time"
)

// FieldCount is the number of comma-delimited fields in one telemetry record.
const FieldCount = 35

// Mode is the flight controller mode reported by the drone.
type Mode string

const (
	ModeManual    Mode = "MANUAL"
	ModeStabilize Mode = "STABILIZE"
	ModeGuided    Mode = "GUIDED"
	ModeAuto      Mode = "AUTO"
	ModeRTL       Mode = "RTL"
	ModeLand      Mode = "LAND"
)

// ParseMode parses a wire mode token.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeManual, ModeStabilize, ModeGuided, ModeAuto, ModeRTL, ModeLand:
		return m, nil
	}
	return "", fmt.Errorf("unknown flight mode %q", s)
}

// FlightState is the mission phase reported by the drone.
type FlightState string

const (
	StateIdle      FlightState = "IDLE"
	StateArmed     FlightState = "ARMED"
	StateTakeoff   FlightState = "TAKEOFF"
	StateEnroute   FlightState = "ENROUTE"
	StateScanning  FlightState = "SCANNING"
	StateSpraying  FlightState = "SPRAYING"
	StateReturning FlightState = "RETURNING"
	StateLanded    FlightState = "LANDED"
	StateEmergency FlightState = "EMERGENCY"
)

// ParseFlightState parses a wire flight state token.
func ParseFlightState(s string) (FlightState, error) {
	switch fs := FlightState(s); fs {
	case StateIdle, StateArmed, StateTakeoff, StateEnroute, StateScanning,
		StateSpraying, StateReturning, StateLanded, StateEmergency:
		return fs, nil
	}
	return "", fmt.Errorf("unknown flight state %q", s)
}

// LinkStatus is the drone's view of the radio link quality.
type LinkStatus string

const (
	LinkGood LinkStatus = "GOOD"
	LinkWeak LinkStatus = "WEAK"
	LinkLost LinkStatus = "LOST"
)

// ParseLinkStatus parses a wire link status token.
func ParseLinkStatus(s string) (LinkStatus, error) {
	switch l := LinkStatus(s); l {
	case LinkGood, LinkWeak, LinkLost:
		return l, nil
	}
	return "", fmt.Errorf("unknown link status %q", s)
}

// AutonomyMode reports whether the drone is flying its own mission plan.
type AutonomyMode string

const (
	AutonomyAuto     AutonomyMode = "AUTO"
	AutonomyManual   AutonomyMode = "MANUAL"
	AutonomyFailsafe AutonomyMode = "FAILSAFE"
)

// ParseAutonomyMode parses a wire autonomy token.
func ParseAutonomyMode(s string) (AutonomyMode, error) {
	switch a := AutonomyMode(s); a {
	case AutonomyAuto, AutonomyManual, AutonomyFailsafe:
		return a, nil
	}
	return "", fmt.Errorf("unknown autonomy mode %q", s)
}

// PayloadStatus is the state of the spray payload.
type PayloadStatus string

const (
	PayloadNone     PayloadStatus = "NONE"
	PayloadReady    PayloadStatus = "READY"
	PayloadActive   PayloadStatus = "ACTIVE"
	PayloadReleased PayloadStatus = "RELEASED"
)

// ParsePayloadStatus parses a wire payload token.
func ParsePayloadStatus(s string) (PayloadStatus, error) {
	switch p := PayloadStatus(s); p {
	case PayloadNone, PayloadReady, PayloadActive, PayloadReleased:
		return p, nil
	}
	return "", fmt.Errorf("unknown payload status %q", s)
}

// DetectionType classifies an onboard payload detection.
type DetectionType string

const (
	DetectionNone  DetectionType = "NONE"
	DetectionHuman DetectionType = "HUMAN"
	DetectionCrop  DetectionType = "CROP"
)

// ParseDetectionType parses a wire detection type token.
func ParseDetectionType(s string) (DetectionType, error) {
	switch d := DetectionType(s); d {
	case DetectionNone, DetectionHuman, DetectionCrop:
		return d, nil
	}
	return "", fmt.Errorf("unknown detection type %q", s)
}

// Packet is one decoded telemetry record, field for field as transmitted.
type Packet struct {
	DroneID        int           `json:"droneID"`        // Vehicle identifier (1 = scout, 2 = spray)
	TeamID         string        `json:"teamID"`         // Competition team identifier
	MissionTime    string        `json:"missionTime"`    // Onboard mission clock, HH:MM:SS
	PacketCount    uint64        `json:"packetCount"`    // Per-drone sequence number
	Mode           Mode          `json:"mode"`           // Flight controller mode
	State          FlightState   `json:"state"`          // Mission phase
	Altitude       float64       `json:"altitude"`       // Barometric altitude in meters
	Temperature    float64       `json:"temperature"`    // Airframe temperature in °C
	Pressure       float64       `json:"pressure"`       // Static pressure in hPa
	Voltage        float64       `json:"voltage"`        // Battery bus voltage in volts
	GyroRoll       float64       `json:"gyroRoll"`       // Roll rate in deg/s
	GyroPitch      float64       `json:"gyroPitch"`      // Pitch rate in deg/s
	GyroYaw        float64       `json:"gyroYaw"`        // Yaw rate in deg/s
	AccelRoll      float64       `json:"accelRoll"`      // Roll-axis acceleration in m/s²
	AccelPitch     float64       `json:"accelPitch"`     // Pitch-axis acceleration in m/s²
	AccelYaw       float64       `json:"accelYaw"`       // Yaw-axis acceleration in m/s²
	MagRoll        float64       `json:"magRoll"`        // Roll-axis magnetic field in µT
	MagPitch       float64       `json:"magPitch"`       // Pitch-axis magnetic field in µT
	MagYaw         float64       `json:"magYaw"`         // Yaw-axis magnetic field in µT
	GPSTime        string        `json:"gpsTime"`        // GPS wall clock, HH:MM:SS
	GPSAltitude    float64       `json:"gpsAltitude"`    // GPS altitude in meters
	Latitude       float64       `json:"latitude"`       // Vehicle latitude in degrees
	Longitude      float64       `json:"longitude"`      // Vehicle longitude in degrees
	Satellites     int           `json:"satellites"`     // GPS satellites in solution
	Battery        float64       `json:"battery"`        // Battery charge in percent
	LinkStatus     LinkStatus    `json:"linkStatus"`     // Radio link quality
	AutonomyMode   AutonomyMode  `json:"autonomyMode"`   // Autonomy engagement
	GeofenceBreach bool          `json:"geofenceBreach"` // Drone-side geofence flag
	PayloadStatus  PayloadStatus `json:"payloadStatus"`  // Spray payload state
	DetectionFlag  bool          `json:"detectionFlag"`  // Detection present in this record
	DetectionType  DetectionType `json:"detectionType"`  // Detection classification
	DetectionConf  float64       `json:"detectionConf"`  // Detection confidence, 0..1
	DetectionLat   float64       `json:"detectionLat"`   // Detection latitude in degrees
	DetectionLon   float64       `json:"detectionLon"`   // Detection longitude in degrees
	CmdEcho        string        `json:"cmdEcho"`        // Last command acknowledged by the drone
}

// DroneState is the latest accepted packet for a drone plus the ground-side
// receive time.
type DroneState struct {
	Packet
	ReceivedAt time.Time `json:"receivedAt"`
}

// DetectionEvent is a payload detection lifted out of a telemetry record.
type DetectionEvent struct {
	DroneID     int           `json:"droneID"`
	MissionTime string        `json:"missionTime"`
	Type        DetectionType `json:"type"`
	Confidence  float64       `json:"confidence"`
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	ReceivedAt  time.Time     `json:"receivedAt"`
}

// Detection extracts the detection report embedded in p, if the record
// carries one. A record with the flag clear or type NONE has no detection.
func (p Packet) Detection(receivedAt time.Time) (DetectionEvent, bool) {
	if !p.DetectionFlag || p.DetectionType == DetectionNone {
		return DetectionEvent{}, false
	}
	return DetectionEvent{
		DroneID:     p.DroneID,
		MissionTime: p.MissionTime,
		Type:        p.DetectionType,
		Confidence:  p.DetectionConf,
		Latitude:    p.DetectionLat,
		Longitude:   p.DetectionLon,
		ReceivedAt:  receivedAt,
	}, true
}
