package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// clockLayout validates MISSION_TIME and GPS_TIME wall-clock fields.
const clockLayout = "15:04:05"

// ParsePacket decodes one comma-delimited telemetry record. It is pure: on
// any error the returned Packet is the zero value, and the error is one of
// *FieldCountError, *FieldParseError or *FieldRangeError.
func ParsePacket(line string) (Packet, error) {
	fields := strings.Split(line, ",")
	if len(fields) != FieldCount {
		return Packet{}, &FieldCountError{Got: len(fields)}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var p Packet
	var err error

	if p.DroneID, err = parseInt("DRONE_ID", fields[0]); err != nil {
		return Packet{}, err
	}
	p.TeamID = fields[1]
	if p.MissionTime, err = parseClock("MISSION_TIME", fields[2]); err != nil {
		return Packet{}, err
	}
	if p.PacketCount, err = parseCount("PACKET_COUNT", fields[3]); err != nil {
		return Packet{}, err
	}
	if p.Mode, err = parseEnum("MODE", fields[4], ParseMode); err != nil {
		return Packet{}, err
	}
	if p.State, err = parseEnum("STATE", fields[5], ParseFlightState); err != nil {
		return Packet{}, err
	}
	if p.Altitude, err = parseFloat("ALTITUDE", fields[6]); err != nil {
		return Packet{}, err
	}
	if p.Temperature, err = parseFloat("TEMP", fields[7]); err != nil {
		return Packet{}, err
	}
	if p.Pressure, err = parseFloat("PRESSURE", fields[8]); err != nil {
		return Packet{}, err
	}
	if p.Voltage, err = parseFloat("VOLTAGE", fields[9]); err != nil {
		return Packet{}, err
	}
	if p.GyroRoll, err = parseFloat("GYRO_R", fields[10]); err != nil {
		return Packet{}, err
	}
	if p.GyroPitch, err = parseFloat("GYRO_P", fields[11]); err != nil {
		return Packet{}, err
	}
	if p.GyroYaw, err = parseFloat("GYRO_Y", fields[12]); err != nil {
		return Packet{}, err
	}
	if p.AccelRoll, err = parseFloat("ACCEL_R", fields[13]); err != nil {
		return Packet{}, err
	}
	if p.AccelPitch, err = parseFloat("ACCEL_P", fields[14]); err != nil {
		return Packet{}, err
	}
	if p.AccelYaw, err = parseFloat("ACCEL_Y", fields[15]); err != nil {
		return Packet{}, err
	}
	if p.MagRoll, err = parseFloat("MAG_R", fields[16]); err != nil {
		return Packet{}, err
	}
	if p.MagPitch, err = parseFloat("MAG_P", fields[17]); err != nil {
		return Packet{}, err
	}
	if p.MagYaw, err = parseFloat("MAG_Y", fields[18]); err != nil {
		return Packet{}, err
	}
	if p.GPSTime, err = parseClock("GPS_TIME", fields[19]); err != nil {
		return Packet{}, err
	}
	if p.GPSAltitude, err = parseFloat("GPS_ALT", fields[20]); err != nil {
		return Packet{}, err
	}
	if p.Latitude, err = parseFloat("LAT", fields[21]); err != nil {
		return Packet{}, err
	}
	if p.Longitude, err = parseFloat("LON", fields[22]); err != nil {
		return Packet{}, err
	}
	if p.Satellites, err = parseInt("SATS", fields[23]); err != nil {
		return Packet{}, err
	}
	if p.Battery, err = parseFloat("BATTERY", fields[24]); err != nil {
		return Packet{}, err
	}
	if p.LinkStatus, err = parseEnum("LINK_STATUS", fields[25], ParseLinkStatus); err != nil {
		return Packet{}, err
	}
	if p.AutonomyMode, err = parseEnum("AUTONOMY_MODE", fields[26], ParseAutonomyMode); err != nil {
		return Packet{}, err
	}
	if p.GeofenceBreach, err = parseFlag("GEOFENCE_BREACH", fields[27]); err != nil {
		return Packet{}, err
	}
	if p.PayloadStatus, err = parseEnum("PAYLOAD_STATUS", fields[28], ParsePayloadStatus); err != nil {
		return Packet{}, err
	}
	if p.DetectionFlag, err = parseFlag("DETECTION_FLAG", fields[29]); err != nil {
		return Packet{}, err
	}
	if p.DetectionType, err = parseEnum("DETECTION_TYPE", fields[30], ParseDetectionType); err != nil {
		return Packet{}, err
	}
	if p.DetectionConf, err = parseFloat("DETECTION_CONF", fields[31]); err != nil {
		return Packet{}, err
	}
	if p.DetectionLat, err = parseFloat("DETECTION_LAT", fields[32]); err != nil {
		return Packet{}, err
	}
	if p.DetectionLon, err = parseFloat("DETECTION_LON", fields[33]); err != nil {
		return Packet{}, err
	}
	p.CmdEcho = fields[34]

	if err := p.checkRanges(); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// checkRanges rejects structurally valid values outside their physical range.
func (p Packet) checkRanges() error {
	if err := checkRange("LAT", p.Latitude, -90, 90); err != nil {
		return err
	}
	if err := checkRange("LON", p.Longitude, -180, 180); err != nil {
		return err
	}
	if err := checkRange("BATTERY", p.Battery, 0, 100); err != nil {
		return err
	}
	if err := checkRange("DETECTION_CONF", p.DetectionConf, 0, 1); err != nil {
		return err
	}
	if err := checkRange("DETECTION_LAT", p.DetectionLat, -90, 90); err != nil {
		return err
	}
	if err := checkRange("DETECTION_LON", p.DetectionLon, -180, 180); err != nil {
		return err
	}
	if p.Satellites < 0 {
		return &FieldRangeError{Field: "SATS", Value: float64(p.Satellites), Min: 0, Max: math.Inf(1)}
	}
	return nil
}

// Format re-emits p as a canonical wire line. ParsePacket(p.Format())
// reproduces p exactly.
func (p Packet) Format() string {
	fields := []string{
		strconv.Itoa(p.DroneID),
		p.TeamID,
		p.MissionTime,
		strconv.FormatUint(p.PacketCount, 10),
		string(p.Mode),
		string(p.State),
		formatFloat(p.Altitude),
		formatFloat(p.Temperature),
		formatFloat(p.Pressure),
		formatFloat(p.Voltage),
		formatFloat(p.GyroRoll),
		formatFloat(p.GyroPitch),
		formatFloat(p.GyroYaw),
		formatFloat(p.AccelRoll),
		formatFloat(p.AccelPitch),
		formatFloat(p.AccelYaw),
		formatFloat(p.MagRoll),
		formatFloat(p.MagPitch),
		formatFloat(p.MagYaw),
		p.GPSTime,
		formatFloat(p.GPSAltitude),
		formatFloat(p.Latitude),
		formatFloat(p.Longitude),
		strconv.Itoa(p.Satellites),
		formatFloat(p.Battery),
		string(p.LinkStatus),
		string(p.AutonomyMode),
		formatFlag(p.GeofenceBreach),
		string(p.PayloadStatus),
		formatFlag(p.DetectionFlag),
		string(p.DetectionType),
		formatFloat(p.DetectionConf),
		formatFloat(p.DetectionLat),
		formatFloat(p.DetectionLon),
		p.CmdEcho,
	}
	return strings.Join(fields, ",")
}

func parseInt(field, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &FieldParseError{Field: field, Value: value, Err: err}
	}
	return n, nil
}

func parseCount(field, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, &FieldParseError{Field: field, Value: value, Err: err}
	}
	return n, nil
}

func parseFloat(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &FieldParseError{Field: field, Value: value, Err: err}
	}
	return v, nil
}

// parseFlag parses the wire boolean encoding, "0" or "1".
func parseFlag(field, value string) (bool, error) {
	switch value {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, &FieldParseError{Field: field, Value: value, Err: fmt.Errorf("want 0 or 1")}
}

// parseClock validates an HH:MM:SS wall-clock field and returns it verbatim.
func parseClock(field, value string) (string, error) {
	if _, err := time.Parse(clockLayout, value); err != nil {
		return "", &FieldParseError{Field: field, Value: value, Err: err}
	}
	return value, nil
}

func parseEnum[T ~string](field, value string, parse func(string) (T, error)) (T, error) {
	v, err := parse(value)
	if err != nil {
		var zero T
		return zero, &FieldParseError{Field: field, Value: value, Err: err}
	}
	return v, nil
}

func checkRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return &FieldRangeError{Field: field, Value: value, Min: min, Max: max}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
